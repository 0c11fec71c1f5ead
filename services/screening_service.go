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

// ScreeningService manages the staff screening verdict on submissions. The
// verdict is an internal triage signal, it is never shown to the applicant
// and does not move the submission through the workflow.
type ScreeningService struct {
	db         *gorm.DB
	dispatcher *Dispatcher
}

// NewScreeningService constructs a ScreeningService.
func NewScreeningService(db *gorm.DB, dispatcher *Dispatcher) *ScreeningService {
	if db == nil {
		db = config.DB
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher(db)
	}
	return &ScreeningService{db: db, dispatcher: dispatcher}
}

// Statuses returns the configured screening scale, yes verdicts first.
func (s *ScreeningService) Statuses(ctx context.Context) ([]models.ScreeningStatus, error) {
	var statuses []models.ScreeningStatus
	if err := s.db.WithContext(ctx).
		Order("yes DESC, title").
		Find(&statuses).Error; err != nil {
		return nil, fmt.Errorf("failed to load screening statuses: %w", err)
	}
	return statuses, nil
}

// Set records the screening verdict on the submission and announces it to
// the review team.
func (s *ScreeningService) Set(ctx context.Context, submission *models.Submission, actor *models.User, statusID int) (*models.ScreeningStatus, error) {
	if !CapabilitiesOf(actor).Has(CapStaff) {
		return nil, fmt.Errorf("only staff may screen submissions: %w", ErrPermissionDenied)
	}

	var status models.ScreeningStatus
	if err := s.db.WithContext(ctx).
		Where("status_id = ?", statusID).
		First(&status).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("screening status %d not found: %w", statusID, gorm.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("failed to load screening status: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&models.Submission{}).
		Where("submission_id = ?", submission.SubmissionID).
		Update("screening_status_id", status.StatusID).Error; err != nil {
		return nil, fmt.Errorf("failed to set screening status: %w", err)
	}
	submission.ScreeningID = &status.StatusID
	submission.Screening = &status

	if _, err := s.dispatcher.Emit(ctx, Event{
		Kind:       EventSubmissionScreened,
		Submission: submission,
		Actor:      actor,
		Payload:    map[string]string{"status": status.Title},
	}); err != nil {
		log.Printf("failed to emit SUBMISSION_SCREENED for %s: %v", submission.SubmissionNumber, err)
	}
	return &status, nil
}
