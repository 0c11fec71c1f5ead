package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"grant-review-api/config"
	"grant-review-api/models"

	"gorm.io/gorm"
)

// DeterminationService records the decision issued for a submission at its
// current stage. Like reviews, determinations occupy one slot per
// (submission, stage) and finalize exactly once.
type DeterminationService struct {
	db         *gorm.DB
	dispatcher *Dispatcher
}

// NewDeterminationService constructs a DeterminationService.
func NewDeterminationService(db *gorm.DB, dispatcher *Dispatcher) *DeterminationService {
	if db == nil {
		db = config.DB
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher(db)
	}
	return &DeterminationService{db: db, dispatcher: dispatcher}
}

// Issue records a determination and emits DETERMINATION_ISSUED. Only staff
// may determine; a second determination for the same stage is rejected.
func (s *DeterminationService) Issue(ctx context.Context, submission *models.Submission, author *models.User, outcome, message string) (*models.Determination, error) {
	if !CapabilitiesOf(author).Has(CapStaff) {
		return nil, fmt.Errorf("only staff may issue determinations: %w", ErrPermissionDenied)
	}
	outcome = strings.ToLower(strings.TrimSpace(outcome))
	if !models.ValidOutcome(outcome) {
		return nil, fmt.Errorf("unknown outcome %q: %w", outcome, ErrGuardNotSatisfied)
	}

	determination := models.Determination{
		SubmissionID: submission.SubmissionID,
		StageIndex:   submission.StageIndex,
		AuthorID:     author.UserID,
		Outcome:      outcome,
		Message:      strings.TrimSpace(message),
	}
	if err := s.db.WithContext(ctx).Create(&determination).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("a determination was already issued for this stage: %w", ErrGuardNotSatisfied)
		}
		return nil, fmt.Errorf("failed to record determination: %w", err)
	}

	if _, err := s.dispatcher.Emit(ctx, Event{
		Kind:       EventDeterminationIssued,
		Submission: submission,
		Actor:      author,
		Payload:    map[string]string{"outcome": outcome},
	}); err != nil {
		log.Printf("failed to emit DETERMINATION_ISSUED for submission %s: %v", submission.SubmissionNumber, err)
	}

	return &determination, nil
}

// ForSubmission returns the determinations issued for a submission, newest
// stage first.
func (s *DeterminationService) ForSubmission(ctx context.Context, submissionID int) ([]models.Determination, error) {
	var determinations []models.Determination
	if err := s.db.WithContext(ctx).Preload("Author").
		Where("submission_id = ?", submissionID).
		Order("stage_index DESC").
		Find(&determinations).Error; err != nil {
		return nil, fmt.Errorf("failed to load determinations: %w", err)
	}
	return determinations, nil
}
