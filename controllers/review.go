package controllers

import (
	"net/http"

	"grant-review-api/models"
	"grant-review-api/services"

	"github.com/gin-gonic/gin"
)

// SubmitReview records the caller's review for the submission's current
// stage. With draft=true the review stays editable; otherwise it is
// finalized in one step.
func (ctrl *SubmissionController) SubmitReview(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	submissionID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Draft bool `json:"draft"`
		services.ReviewInput
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	submission, err := ctrl.submissions.Get(c.Request.Context(), submissionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	var review *models.Review
	if req.Draft {
		review, err = ctrl.reviews.UpsertDraft(c.Request.Context(), submission, user, req.ReviewInput)
	} else {
		review, err = ctrl.reviews.Submit(c.Request.Context(), submission, user, req.ReviewInput)
	}
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"review":  review,
	})
}

// FinalizeReview flips the caller's draft review to final.
func (ctrl *SubmissionController) FinalizeReview(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	submissionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	reviewID, ok := pathID(c, "review_id")
	if !ok {
		return
	}

	submission, err := ctrl.submissions.Get(c.Request.Context(), submissionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	review, err := ctrl.reviews.Finalize(c.Request.Context(), submission, reviewID, user)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"review":  review,
	})
}

// GetReviews returns the grouped reviewer view for a submission. Staff and
// assigned reviewers only.
func (ctrl *SubmissionController) GetReviews(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	submissionID, ok := pathID(c, "id")
	if !ok {
		return
	}

	submission, err := ctrl.submissions.Get(c.Request.Context(), submissionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if err := services.AuthorizeReviewRead(submission, user); err != nil {
		respondServiceError(c, err)
		return
	}

	block, err := ctrl.reviews.ReviewsFor(c.Request.Context(), submission)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"reviews": block,
	})
}

// GetReviewListing returns the side-by-side comparison table of all
// finalized reviews for the submission's current stage. Staff and assigned
// reviewers only.
func (ctrl *SubmissionController) GetReviewListing(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	submissionID, ok := pathID(c, "id")
	if !ok {
		return
	}

	submission, err := ctrl.submissions.Get(c.Request.Context(), submissionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if err := services.AuthorizeReviewRead(submission, user); err != nil {
		respondServiceError(c, err)
		return
	}

	var reviews []models.Review
	if err := ctrl.db.Preload("Author").
		Where("submission_id = ? AND stage_index = ? AND is_draft = ?",
			submission.SubmissionID, submission.StageIndex, false).
		Order("review_id").
		Find(&reviews).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch reviews"})
		return
	}

	listing, err := services.ListingFor(reviews)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"listing": listing,
		"total":   len(reviews),
	})
}

// IssueDetermination records the decision for the submission's current stage.
func (ctrl *SubmissionController) IssueDetermination(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	submissionID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Outcome string `json:"outcome" binding:"required"`
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	submission, err := ctrl.submissions.Get(c.Request.Context(), submissionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	determination, err := ctrl.determinations.Issue(c.Request.Context(), submission, user, req.Outcome, req.Message)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":       true,
		"determination": determination,
	})
}
