package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"grant-review-api/config"
	"grant-review-api/models"

	"gorm.io/gorm"
)

const transitionLockTimeout = 5 // seconds

// TransitionService is the only writer of a submission's current phase. It
// validates the requested action against the workflow definition, checks the
// actor's capabilities and the destination guard, applies the change and
// announces it.
type TransitionService struct {
	db         *gorm.DB
	dispatcher *Dispatcher
}

// NewTransitionService constructs a TransitionService.
func NewTransitionService(db *gorm.DB, dispatcher *Dispatcher) *TransitionService {
	if db == nil {
		db = config.DB
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher(db)
	}
	return &TransitionService{db: db, dispatcher: dispatcher}
}

// RequestTransition moves the submission along the workflow according to the
// named action. Concurrent transition requests against the same submission
// are serialized through a per-submission database lock, and the phase write
// itself is conditional on the phase that was read, so a stale read can never
// overwrite a newer one. The PHASE_CHANGED event is emitted only after the
// state change is committed and the lock released.
func (s *TransitionService) RequestTransition(ctx context.Context, submissionID int, actionName string, actor *models.User) (*Phase, error) {
	var (
		submission  models.Submission
		current     *Phase
		destination *Phase
	)

	// MySQL named locks are session-scoped: the whole acquire-check-write
	// sequence must run on one connection, or the release could land on a
	// different pooled connection and leave the lock stranded.
	err := s.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		run := conn.Session(&gorm.Session{})

		release, err := acquireSubmissionLock(run, submissionID)
		if err != nil {
			return err
		}
		defer func() {
			if err := release(); err != nil {
				log.Printf("failed to release transition lock for submission %d: %v", submissionID, err)
			}
		}()

		if err := run.Where("submission_id = ? AND deleted_at IS NULL", submissionID).
			First(&submission).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("submission %d not found: %w", submissionID, gorm.ErrRecordNotFound)
			}
			return fmt.Errorf("failed to load submission: %w", err)
		}

		caps := CapabilitiesOf(actor)
		if !caps.Has(CapStaff) && submission.UserID != actor.UserID {
			return fmt.Errorf("submission %s is not visible to this user: %w",
				submission.SubmissionNumber, ErrPermissionDenied)
		}

		current, destination, err = validateTransition(&submission, actionName, caps)
		if err != nil {
			return err
		}

		if destination.RequiredReviews > 0 && destination.Name != current.Name {
			var count int64
			if err := run.Model(&models.Review{}).
				Where("submission_id = ? AND stage_index = ? AND is_draft = ?",
					submission.SubmissionID, submission.StageIndex, false).
				Count(&count).Error; err != nil {
				return fmt.Errorf("failed to count reviews: %w", err)
			}
			if count < int64(destination.RequiredReviews) {
				return fmt.Errorf("requires %d finalized reviews, have %d: %w",
					destination.RequiredReviews, count, ErrGuardNotSatisfied)
			}
		}

		now := time.Now()
		result := run.Model(&models.Submission{}).
			Where("submission_id = ? AND current_phase = ?", submission.SubmissionID, current.Name).
			Updates(map[string]interface{}{
				"current_phase": destination.Name,
				"stage_index":   destination.StageIndex,
				"locked":        false,
				"updated_at":    now,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update submission: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("submission was changed concurrently: %w", ErrGuardNotSatisfied)
		}

		history := models.PhaseHistory{
			SubmissionID: submission.SubmissionID,
			OldPhase:     current.Name,
			NewPhase:     destination.Name,
			Action:       actionName,
			ChangedBy:    actor.UserID,
		}
		if err := run.Create(&history).Error; err != nil {
			// The phase change is already durable; a missing history row is a
			// logging defect, not a reason to fail the request.
			log.Printf("failed to record phase history for submission %d: %v", submission.SubmissionID, err)
		}

		submission.CurrentPhase = destination.Name
		submission.StageIndex = destination.StageIndex
		submission.Locked = false
		submission.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.dispatcher.Emit(ctx, Event{
		Kind:       EventPhaseChanged,
		Submission: &submission,
		Actor:      actor,
		Payload: map[string]string{
			"old_phase": current.Display,
			"new_phase": destination.Display,
			"action":    actionName,
		},
	}); err != nil {
		log.Printf("failed to emit PHASE_CHANGED for submission %s: %v", submission.SubmissionNumber, err)
	}

	return destination, nil
}

// validateTransition resolves the workflow, checks the action exists on the
// current phase, the actor is permitted, and the sealed guard holds. It
// returns the current and destination phases on success. No state is touched.
func validateTransition(submission *models.Submission, actionName string, caps CapabilitySet) (*Phase, *Phase, error) {
	workflow, err := GetWorkflow(submission.WorkflowName)
	if err != nil {
		return nil, nil, err
	}
	current, err := workflow.Phase(submission.CurrentPhase)
	if err != nil {
		return nil, nil, err
	}

	action, ok := current.Action(actionName)
	if !ok {
		return nil, nil, fmt.Errorf("action %q is not available in phase %q: %w",
			actionName, current.Name, ErrGuardNotSatisfied)
	}
	if !action.Permitted(caps) {
		return nil, nil, fmt.Errorf("action %q on phase %q: %w",
			actionName, current.Name, ErrPermissionDenied)
	}

	destination, err := workflow.Phase(action.Target)
	if err != nil {
		return nil, nil, err
	}

	if workflow.Variant == VariantSealed && submission.Sealed && destination.Name != current.Name {
		return nil, nil, fmt.Errorf("cannot advance a sealed submission: %w", ErrGuardNotSatisfied)
	}

	return current, destination, nil
}

// AvailableActions returns the actions the actor may request on the
// submission in its current phase.
func (s *TransitionService) AvailableActions(submission *models.Submission, actor *models.User) ([]Action, error) {
	workflow, err := GetWorkflow(submission.WorkflowName)
	if err != nil {
		return nil, err
	}
	phase, err := workflow.Phase(submission.CurrentPhase)
	if err != nil {
		return nil, err
	}
	return workflow.ActionsFor(phase, CapabilitiesOf(actor)), nil
}

// acquireSubmissionLock takes the per-submission named lock on the given
// session and returns the release func. The release verifies the lock was
// actually held; RELEASE_LOCK returning anything but 1 means the session
// lost it.
func acquireSubmissionLock(db *gorm.DB, submissionID int) (func() error, error) {
	lockName := fmt.Sprintf("submission_transition_%d", submissionID)

	var ok int
	if err := db.Raw("SELECT GET_LOCK(?, ?)", lockName, transitionLockTimeout).
		Scan(&ok).Error; err != nil {
		return nil, fmt.Errorf("failed to acquire transition lock: %w", err)
	}
	if ok != 1 {
		return nil, fmt.Errorf("another transition is in progress: %w", ErrGuardNotSatisfied)
	}

	return func() error {
		var released int
		if err := db.Raw("SELECT RELEASE_LOCK(?)", lockName).
			Scan(&released).Error; err != nil {
			return err
		}
		if released != 1 {
			return fmt.Errorf("lock %s was not held by this session", lockName)
		}
		return nil
	}, nil
}
