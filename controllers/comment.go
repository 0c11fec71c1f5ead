package controllers

import (
	"net/http"

	"grant-review-api/services"

	"github.com/gin-gonic/gin"
)

// GetActivity returns the activity log entries visible to the caller,
// oldest first.
func (ctrl *SubmissionController) GetActivity(c *gin.Context) {
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

	entries, err := ctrl.activity.VisibleEntries(c.Request.Context(), submissionID, user)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"activity": entries,
		"total":    len(entries),
	})
}

// CreateComment adds a comment to the activity log. The caller may pick the
// audiences ("applicant", "reviewer", "partner"); each one is validated
// against the audiences their own role may address, and a single disallowed
// pick rejects the whole comment.
func (ctrl *SubmissionController) CreateComment(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	submissionID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Message   string   `json:"message" binding:"required"`
		VisibleTo []string `json:"visible_to"`
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
	if err := services.AuthorizeSubmissionRead(submission, user); err != nil {
		respondServiceError(c, err)
		return
	}

	targets := make([]services.Capability, 0, len(req.VisibleTo))
	for _, target := range req.VisibleTo {
		targets = append(targets, services.Capability(target))
	}

	entry, err := ctrl.activity.CreateComment(c.Request.Context(), submission, user, req.Message, targets)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"comment": entry,
	})
}
