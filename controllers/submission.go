package controllers

import (
	"net/http"

	"grant-review-api/config"
	"grant-review-api/models"
	"grant-review-api/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SubmissionController groups the submission-scoped endpoints: lifecycle,
// transitions, reviews, comments, flags and determinations. All services
// share one dispatcher injected at startup.
type SubmissionController struct {
	db             *gorm.DB
	submissions    *services.SubmissionService
	transitions    *services.TransitionService
	reviews        *services.ReviewService
	activity       *services.ActivityService
	flags          *services.FlagService
	screening      *services.ScreeningService
	determinations *services.DeterminationService
}

// NewSubmissionController wires the submission endpoints to their services.
func NewSubmissionController(db *gorm.DB, dispatcher *services.Dispatcher) *SubmissionController {
	if db == nil {
		db = config.DB
	}
	return &SubmissionController{
		db:             db,
		submissions:    services.NewSubmissionService(db, dispatcher),
		transitions:    services.NewTransitionService(db, dispatcher),
		reviews:        services.NewReviewService(db, dispatcher),
		activity:       services.NewActivityService(db, dispatcher),
		flags:          services.NewFlagService(db, dispatcher),
		screening:      services.NewScreeningService(db, dispatcher),
		determinations: services.NewDeterminationService(db, dispatcher),
	}
}

// ListWorkflows returns every registered workflow definition.
func (ctrl *SubmissionController) ListWorkflows(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"workflows": services.Workflows(),
	})
}

// CreateSubmission registers a new application in the initial phase of the
// chosen workflow.
func (ctrl *SubmissionController) CreateSubmission(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req struct {
		WorkflowName string `json:"workflow_name" binding:"required"`
		Title        string `json:"title" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	submission, err := ctrl.submissions.Create(c.Request.Context(), user, req.WorkflowName, req.Title)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"submission": submission,
	})
}

// ListSubmissions returns the caller's submissions; staff see all of them.
func (ctrl *SubmissionController) ListSubmissions(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	query := ctrl.db.Preload("User.Role").Preload("LeadReviewer").
		Where("deleted_at IS NULL")

	caps := services.CapabilitiesOf(user)
	switch {
	case caps.Has(services.CapStaff):
		// staff see everything
	case caps.Has(services.CapReviewer):
		query = query.Where(
			"submission_id IN (?)",
			ctrl.db.Model(&models.AssignedReviewer{}).
				Select("submission_id").
				Where("reviewer_id = ?", user.UserID),
		)
	default:
		query = query.Where("user_id = ?", user.UserID)
	}

	var submissions []models.Submission
	if err := query.Order("submitted_at DESC").Find(&submissions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch submissions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"submissions": submissions,
		"total":       len(submissions),
	})
}

// GetSubmission returns one submission with its review block and the
// activity entries visible to the caller.
func (ctrl *SubmissionController) GetSubmission(c *gin.Context) {
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
	if err := services.AuthorizeSubmissionRead(submission, user); err != nil {
		respondServiceError(c, err)
		return
	}

	// The review block is restricted; applicants get their submission
	// without it.
	var reviewsBlock *services.ReviewsBlock
	if services.AuthorizeReviewRead(submission, user) == nil {
		reviewsBlock, err = ctrl.reviews.ReviewsFor(c.Request.Context(), submission)
		if err != nil {
			respondServiceError(c, err)
			return
		}
	}

	entries, err := ctrl.activity.VisibleEntries(c.Request.Context(), submission.SubmissionID, user)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	actions, err := ctrl.transitions.AvailableActions(submission, user)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"submission": submission,
		"reviews":    reviewsBlock,
		"activity":   entries,
		"actions":    actions,
	})
}

// GetActions lists the transitions the caller may request right now.
func (ctrl *SubmissionController) GetActions(c *gin.Context) {
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
	if err := services.AuthorizeSubmissionRead(submission, user); err != nil {
		respondServiceError(c, err)
		return
	}

	actions, err := ctrl.transitions.AvailableActions(submission, user)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"phase":   submission.CurrentPhase,
		"actions": actions,
	})
}

// RequestTransition applies a workflow action to the submission.
func (ctrl *SubmissionController) RequestTransition(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	submissionID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Action string `json:"action" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	phase, err := ctrl.transitions.RequestTransition(c.Request.Context(), submissionID, req.Action, user)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Submission moved to " + phase.Display,
		"phase":   phase,
	})
}

// AssignReviewers replaces the reviewer set for a submission.
func (ctrl *SubmissionController) AssignReviewers(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	submissionID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		LeadReviewerID *int `json:"lead_reviewer_id"`
		Reviewers      []struct {
			ReviewerID int     `json:"reviewer_id" binding:"required"`
			Role       *string `json:"role"`
		} `json:"reviewers"`
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

	assignments := make([]models.AssignedReviewer, 0, len(req.Reviewers))
	for _, reviewer := range req.Reviewers {
		assignments = append(assignments, models.AssignedReviewer{
			ReviewerID: reviewer.ReviewerID,
			Role:       reviewer.Role,
		})
	}

	if err := ctrl.submissions.AssignReviewers(c.Request.Context(), submission, user, req.LeadReviewerID, assignments); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Reviewers updated",
	})
}

// Unseal clears the sealed flag on a sealed-round submission.
func (ctrl *SubmissionController) Unseal(c *gin.Context) {
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

	if err := ctrl.submissions.Unseal(c.Request.Context(), submission, user); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Submission unsealed",
	})
}
