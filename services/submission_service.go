package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"grant-review-api/config"
	"grant-review-api/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubmissionService creates submissions and manages reviewer assignment and
// the sealed flag. Phase movement stays with the TransitionService.
type SubmissionService struct {
	db         *gorm.DB
	dispatcher *Dispatcher
}

// NewSubmissionService constructs a SubmissionService.
func NewSubmissionService(db *gorm.DB, dispatcher *Dispatcher) *SubmissionService {
	if db == nil {
		db = config.DB
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher(db)
	}
	return &SubmissionService{db: db, dispatcher: dispatcher}
}

// Create registers a new submission in the initial phase of the named
// workflow and announces it. Sealed workflows start sealed.
func (s *SubmissionService) Create(ctx context.Context, applicant *models.User, workflowName, title string) (*models.Submission, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("submission title is required: %w", ErrGuardNotSatisfied)
	}

	workflow, err := GetWorkflow(workflowName)
	if err != nil {
		return nil, err
	}
	initial := workflow.Initial()

	now := time.Now()
	submission := models.Submission{
		SubmissionNumber: uuid.NewString(),
		Title:            title,
		WorkflowName:     workflow.Name,
		CurrentPhase:     initial.Name,
		StageIndex:       initial.StageIndex,
		UserID:           applicant.UserID,
		Sealed:           workflow.Variant == VariantSealed,
		SubmittedAt:      &now,
	}
	if err := s.db.WithContext(ctx).Create(&submission).Error; err != nil {
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}

	if _, err := s.dispatcher.Emit(ctx, Event{
		Kind:       EventNewSubmission,
		Submission: &submission,
		Actor:      applicant,
	}); err != nil {
		log.Printf("failed to emit NEW_SUBMISSION for %s: %v", submission.SubmissionNumber, err)
	}
	return &submission, nil
}

// Get loads a submission by id.
func (s *SubmissionService) Get(ctx context.Context, submissionID int) (*models.Submission, error) {
	var submission models.Submission
	if err := s.db.WithContext(ctx).
		Preload("User.Role").Preload("LeadReviewer").Preload("Reviewers.Reviewer.Role").
		Where("submission_id = ? AND deleted_at IS NULL", submissionID).
		First(&submission).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("submission %d not found: %w", submissionID, gorm.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}
	return &submission, nil
}

// AuthorizeSubmissionRead gates every submission-scoped read. Staff see all
// submissions, an applicant sees their own, and reviewers or partners see the
// ones they are assigned to. The submission must carry its Reviewers
// preloaded, as Get does.
func AuthorizeSubmissionRead(submission *models.Submission, user *models.User) error {
	if CapabilitiesOf(user).Has(CapStaff) || submission.UserID == user.UserID {
		return nil
	}
	for _, assignment := range submission.Reviewers {
		if assignment.ReviewerID == user.UserID {
			return nil
		}
	}
	return fmt.Errorf("submission %s is not visible to this user: %w",
		submission.SubmissionNumber, ErrPermissionDenied)
}

// AuthorizeReviewRead gates the review block and the side-by-side listing.
// Reviewer identities, scores and recommendations are restricted to staff and
// the assigned reviewers; the applicant never sees them.
func AuthorizeReviewRead(submission *models.Submission, user *models.User) error {
	if CapabilitiesOf(user).Has(CapStaff) {
		return nil
	}
	for _, assignment := range submission.Reviewers {
		if assignment.ReviewerID == user.UserID {
			return nil
		}
	}
	return fmt.Errorf("reviews on submission %s are restricted to staff and assigned reviewers: %w",
		submission.SubmissionNumber, ErrPermissionDenied)
}

// AssignReviewers replaces the submission's reviewer set and optionally the
// lead reviewer, then announces the change to the review team.
func (s *SubmissionService) AssignReviewers(ctx context.Context, submission *models.Submission, actor *models.User, leadReviewerID *int, reviewers []models.AssignedReviewer) error {
	if !CapabilitiesOf(actor).Has(CapStaff) {
		return fmt.Errorf("only staff may assign reviewers: %w", ErrPermissionDenied)
	}

	// Delete-and-reinsert must be atomic: a failure halfway through would
	// otherwise leave the reviewer set partially replaced.
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("submission_id = ?", submission.SubmissionID).
			Delete(&models.AssignedReviewer{}).Error; err != nil {
			return fmt.Errorf("failed to clear reviewer assignments: %w", err)
		}
		for i := range reviewers {
			reviewers[i].AssignmentID = 0
			reviewers[i].SubmissionID = submission.SubmissionID
			if err := tx.Create(&reviewers[i]).Error; err != nil {
				return fmt.Errorf("failed to assign reviewer %d: %w", reviewers[i].ReviewerID, err)
			}
		}

		if err := tx.Model(&models.Submission{}).
			Where("submission_id = ?", submission.SubmissionID).
			Update("lead_reviewer_id", leadReviewerID).Error; err != nil {
			return fmt.Errorf("failed to set lead reviewer: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	submission.LeadReviewerID = leadReviewerID

	if _, err := s.dispatcher.Emit(ctx, Event{
		Kind:       EventReviewersUpdated,
		Submission: submission,
		Actor:      actor,
	}); err != nil {
		log.Printf("failed to emit REVIEWERS_UPDATED for %s: %v", submission.SubmissionNumber, err)
	}
	return nil
}

// Unseal clears the sealed flag so a sealed-round submission can move again.
// Admin only; not a phase transition.
func (s *SubmissionService) Unseal(ctx context.Context, submission *models.Submission, actor *models.User) error {
	if !CapabilitiesOf(actor).Has(CapAdmin) {
		return fmt.Errorf("only admins may unseal submissions: %w", ErrPermissionDenied)
	}
	if !submission.Sealed {
		return nil
	}

	if err := s.db.WithContext(ctx).Model(&models.Submission{}).
		Where("submission_id = ?", submission.SubmissionID).
		Update("sealed", false).Error; err != nil {
		return fmt.Errorf("failed to unseal submission: %w", err)
	}
	submission.Sealed = false

	if _, err := s.dispatcher.Emit(ctx, Event{
		Kind:       EventSubmissionUnsealed,
		Submission: submission,
		Actor:      actor,
	}); err != nil {
		log.Printf("failed to emit SUBMISSION_UNSEALED for %s: %v", submission.SubmissionNumber, err)
	}
	return nil
}
