package services

import (
	"context"
	"fmt"
	"strings"

	"grant-review-api/config"
	"grant-review-api/models"

	"gorm.io/gorm"
)

// ActivityService reads the activity log back under the visibility rules and
// creates comments. Entries are never modified after the dispatcher writes
// them; visibility is enforced purely at read time.
type ActivityService struct {
	db         *gorm.DB
	dispatcher *Dispatcher
}

// NewActivityService constructs an ActivityService.
func NewActivityService(db *gorm.DB, dispatcher *Dispatcher) *ActivityService {
	if db == nil {
		db = config.DB
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher(db)
	}
	return &ActivityService{db: db, dispatcher: dispatcher}
}

// VisibleEntries returns the submission's activity entries the viewer may
// see, oldest first. Staff see every entry; other viewers are filtered by
// the flag matching their role.
func (s *ActivityService) VisibleEntries(ctx context.Context, submissionID int, viewer *models.User) ([]models.ActivityEntry, error) {
	query := s.db.WithContext(ctx).Preload("User").
		Where("submission_id = ?", submissionID).
		Order("created_at ASC, activity_id ASC")

	if lane, filtered := PrimaryViewerRole(CapabilitiesOf(viewer)); filtered {
		column, err := visibilityColumn(lane)
		if err != nil {
			return nil, err
		}
		query = query.Where(column+" = ?", true)
	}

	var entries []models.ActivityEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load activity entries: %w", err)
	}
	return entries, nil
}

func visibilityColumn(lane Capability) (string, error) {
	switch lane {
	case CapApplicant:
		return "visible_to_applicants", nil
	case CapReviewer:
		return "visible_to_reviewers", nil
	case CapPartner:
		return "visible_to_partners", nil
	}
	return "", newConfigurationError("no visibility column for viewer role %q", lane)
}

// allowedCommentTargets returns the visibility audiences a comment author may
// address, keyed by their capabilities. Staff may address everyone; partners
// may talk to applicants and other partners; reviewers and applicants stay in
// their own lane.
func allowedCommentTargets(caps CapabilitySet) []Capability {
	switch {
	case caps.Has(CapStaff):
		return []Capability{CapApplicant, CapReviewer, CapPartner}
	case caps.Has(CapPartner):
		return []Capability{CapApplicant, CapPartner}
	case caps.Has(CapReviewer):
		return []Capability{CapReviewer}
	default:
		return []Capability{CapApplicant}
	}
}

// defaultCommentTargets picks the preselected audience when the author names
// none: team-visible for staff, applicant-visible for everyone else.
func defaultCommentTargets(caps CapabilitySet) []Capability {
	if caps.Has(CapStaff) {
		return []Capability{CapReviewer}
	}
	return []Capability{CapApplicant}
}

// CreateComment validates every requested visibility target against the
// author's allowed set before anything is written, then records the comment
// as a NEW_COMMENT activity entry. A single disallowed target rejects the
// whole comment.
func (s *ActivityService) CreateComment(ctx context.Context, submission *models.Submission, author *models.User, message string, targets []Capability) (*models.ActivityEntry, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("comment message is required: %w", ErrGuardNotSatisfied)
	}

	caps := CapabilitiesOf(author)
	if len(targets) == 0 {
		targets = defaultCommentTargets(caps)
	}

	allowed := allowedCommentTargets(caps)
	visibility := Visibility{}
	for _, target := range targets {
		if !containsCapability(allowed, target) {
			return nil, fmt.Errorf("visibility %q is not permitted for this user: %w", target, ErrPermissionDenied)
		}
		switch target {
		case CapApplicant:
			visibility.Applicants = true
		case CapReviewer:
			visibility.Reviewers = true
		case CapPartner:
			visibility.Partners = true
		default:
			return nil, fmt.Errorf("unknown visibility target %q: %w", target, ErrGuardNotSatisfied)
		}
	}

	return s.dispatcher.Emit(ctx, Event{
		Kind:       EventNewComment,
		Submission: submission,
		Actor:      author,
		Message:    message,
		Visibility: &visibility,
	})
}

func containsCapability(haystack []Capability, needle Capability) bool {
	for _, c := range haystack {
		if c == needle {
			return true
		}
	}
	return false
}
