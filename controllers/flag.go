package controllers

import (
	"net/http"

	"grant-review-api/services"

	"github.com/gin-gonic/gin"
)

// ToggleFlag flips the caller's flag of the given type on a submission and
// reports whether the flag exists afterwards.
func (ctrl *SubmissionController) ToggleFlag(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	submissionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	flagType := c.Param("type")

	submission, err := ctrl.submissions.Get(c.Request.Context(), submissionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if err := services.AuthorizeSubmissionRead(submission, user); err != nil {
		respondServiceError(c, err)
		return
	}

	created, err := ctrl.flags.Toggle(c.Request.Context(), user, submission, flagType)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  created,
	})
}

// GetFlagged lists the ids of submissions the caller flagged with the given
// type.
func (ctrl *SubmissionController) GetFlagged(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	flagType := c.Param("type")

	ids, err := ctrl.flags.FlaggedSubmissionIDs(c.Request.Context(), user.UserID, flagType)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"submissions": ids,
	})
}
