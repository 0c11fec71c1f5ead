package controllers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"grant-review-api/models"
	"grant-review-api/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func currentUser(c *gin.Context) (*models.User, bool) {
	value, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "User context missing"})
		return nil, false
	}
	user, ok := value.(*models.User)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid user context"})
		return nil, false
	}
	return user, true
}

func pathID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

// respondServiceError maps the service error taxonomy onto HTTP statuses.
// Permission problems and validation problems are the caller's to fix;
// configuration errors are ours and get logged loudly.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrDuplicateReview):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrGuardNotSatisfied):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case services.IsConfigurationError(err):
		log.Printf("configuration error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Workflow configuration error"})
	default:
		log.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
