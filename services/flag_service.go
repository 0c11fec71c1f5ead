package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"grant-review-api/config"
	"grant-review-api/models"

	"gorm.io/gorm"
)

// FlagService toggles a user's personal flags on submissions. The toggle is a
// set-membership operation: try to create the row, and when it already exists
// delete it instead. The unique index on (user, submission, type) resolves
// races at the storage layer, so two concurrent toggles can flip the outcome
// but never leave two rows behind.
type FlagService struct {
	db         *gorm.DB
	dispatcher *Dispatcher
}

// NewFlagService constructs a FlagService.
func NewFlagService(db *gorm.DB, dispatcher *Dispatcher) *FlagService {
	if db == nil {
		db = config.DB
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher(db)
	}
	return &FlagService{db: db, dispatcher: dispatcher}
}

// Toggle creates the flag when absent and removes it when present. It returns
// whether the flag exists after the call.
func (s *FlagService) Toggle(ctx context.Context, user *models.User, submission *models.Submission, flagType string) (bool, error) {
	if flagType != models.FlagTypeStaff && flagType != models.FlagTypeUserStar {
		return false, fmt.Errorf("unknown flag type %q: %w", flagType, ErrGuardNotSatisfied)
	}

	flag := models.Flag{
		UserID:       user.UserID,
		SubmissionID: submission.SubmissionID,
		Type:         flagType,
	}
	err := s.db.WithContext(ctx).Create(&flag).Error
	if err == nil {
		if _, emitErr := s.dispatcher.Emit(ctx, Event{
			Kind:       EventFlagToggled,
			Submission: submission,
			Actor:      user,
			Payload:    map[string]string{"flag_type": flagType},
		}); emitErr != nil {
			log.Printf("failed to emit FLAG_TOGGLED for submission %s: %v", submission.SubmissionNumber, emitErr)
		}
		return true, nil
	}

	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, fmt.Errorf("failed to create flag: %w", err)
	}

	// The flag already existed, so this request was a removal.
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND submission_id = ? AND type = ?",
			user.UserID, submission.SubmissionID, flagType).
		Delete(&models.Flag{}).Error; err != nil {
		return false, fmt.Errorf("failed to remove flag: %w", err)
	}
	return false, nil
}

// FlaggedSubmissionIDs returns the ids of submissions the user has flagged
// with the given type.
func (s *FlagService) FlaggedSubmissionIDs(ctx context.Context, userID int, flagType string) ([]int, error) {
	var ids []int
	if err := s.db.WithContext(ctx).Model(&models.Flag{}).
		Where("user_id = ? AND type = ?", userID, flagType).
		Pluck("submission_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}
	return ids, nil
}
