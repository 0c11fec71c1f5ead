package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListScreeningStatuses returns the configured screening scale.
func (ctrl *SubmissionController) ListScreeningStatuses(c *gin.Context) {
	statuses, err := ctrl.screening.Statuses(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"statuses": statuses,
	})
}

// SetScreeningStatus records the staff screening verdict on a submission.
func (ctrl *SubmissionController) SetScreeningStatus(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	submissionID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		StatusID int `json:"status_id" binding:"required"`
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

	status, err := ctrl.screening.Set(c.Request.Context(), submission, user, req.StatusID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"screening": status,
	})
}
