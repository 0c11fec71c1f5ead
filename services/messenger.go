package services

import (
	"context"
	"fmt"
	"log"

	"grant-review-api/config"
	"grant-review-api/models"

	"gorm.io/gorm"
)

// EventKind enumerates the workflow events the dispatcher knows how to
// announce.
type EventKind string

const (
	EventNewSubmission       EventKind = "NEW_SUBMISSION"
	EventNewReview           EventKind = "NEW_REVIEW"
	EventPhaseChanged        EventKind = "PHASE_CHANGED"
	EventNewComment          EventKind = "NEW_COMMENT"
	EventDeterminationIssued EventKind = "DETERMINATION_ISSUED"
	EventFlagToggled         EventKind = "FLAG_TOGGLED"
	EventReviewersUpdated    EventKind = "REVIEWERS_UPDATED"
	EventSubmissionUnsealed  EventKind = "SUBMISSION_UNSEALED"
	EventSubmissionScreened  EventKind = "SUBMISSION_SCREENED"
)

// Visibility is the set of audiences an activity entry is shown to. Staff
// always see every entry; these flags gate applicants, reviewers and
// partners.
type Visibility struct {
	Applicants bool `json:"applicants"`
	Reviewers  bool `json:"reviewers"`
	Partners   bool `json:"partners"`
}

// Narrow intersects two visibility sets. Callers of Emit may narrow the
// default policy for an event kind but can never widen it.
func (v Visibility) Narrow(other Visibility) Visibility {
	return Visibility{
		Applicants: v.Applicants && other.Applicants,
		Reviewers:  v.Reviewers && other.Reviewers,
		Partners:   v.Partners && other.Partners,
	}
}

// defaultVisibility is the per-kind visibility policy applied to the activity
// log entry each event produces.
var defaultVisibility = map[EventKind]Visibility{
	EventNewSubmission:       {Applicants: true, Reviewers: true, Partners: true},
	EventNewReview:           {Reviewers: true},
	EventPhaseChanged:        {Applicants: true, Reviewers: true, Partners: true},
	EventNewComment:          {Applicants: true, Reviewers: true, Partners: true},
	EventDeterminationIssued: {Applicants: true, Reviewers: true, Partners: true},
	EventFlagToggled:         {Reviewers: true},
	EventReviewersUpdated:    {Reviewers: true},
	EventSubmissionUnsealed:  {Reviewers: true},
	// Screening is a staff triage signal; nobody else sees it.
	EventSubmissionScreened: {},
}

// Event is one workflow occurrence handed to the dispatcher.
type Event struct {
	Kind       EventKind
	Submission *models.Submission
	Actor      *models.User
	// Message overrides or completes the templated body (e.g. the comment
	// text for NEW_COMMENT).
	Message string
	// Visibility, when set, narrows the default policy for the kind.
	Visibility *Visibility
	// Payload carries template values such as old_phase/new_phase.
	Payload map[string]string
}

// DeliveryAdapter forwards an already-recorded event to one external channel
// (email, in-app notification, ...). Adapters are best-effort: a failure is
// logged and never affects the durable activity entry.
type DeliveryAdapter interface {
	Deliver(ctx context.Context, event Event, entry *models.ActivityEntry) error
}

// Dispatcher assembles a message for each workflow event, records the
// immutable activity log entry, and fans the event out to the delivery
// adapters. There is one dispatcher per process, passed explicitly into
// every service that emits events.
type Dispatcher struct {
	db       *gorm.DB
	adapters []DeliveryAdapter
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(db *gorm.DB, adapters ...DeliveryAdapter) *Dispatcher {
	if db == nil {
		db = config.DB
	}
	return &Dispatcher{db: db, adapters: adapters}
}

// Emit records the event in the activity log and forwards it to the delivery
// channels. The activity entry is the durable record: its write failing is
// returned to the caller, while channel failures are logged and swallowed.
func (d *Dispatcher) Emit(ctx context.Context, event Event) (*models.ActivityEntry, error) {
	if event.Submission == nil || event.Actor == nil {
		return nil, fmt.Errorf("event %s requires a submission and an actor", event.Kind)
	}

	visibility, ok := defaultVisibility[event.Kind]
	if !ok {
		return nil, newConfigurationError("no visibility policy for event kind %q", event.Kind)
	}
	if event.Visibility != nil {
		visibility = visibility.Narrow(*event.Visibility)
	}

	entry := models.ActivityEntry{
		SubmissionID:        event.Submission.SubmissionID,
		UserID:              event.Actor.UserID,
		Kind:                string(event.Kind),
		Message:             messageFor(event),
		VisibleToApplicants: visibility.Applicants,
		VisibleToReviewers:  visibility.Reviewers,
		VisibleToPartners:   visibility.Partners,
	}
	if err := d.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("failed to record activity entry: %w", err)
	}

	// Delivery keeps running even if the request that caused the event is
	// cancelled; the durable record already exists.
	deliveryCtx := persistentContext(ctx)
	for _, adapter := range d.adapters {
		if err := adapter.Deliver(deliveryCtx, event, &entry); err != nil {
			log.Printf("delivery failed for %s on submission %s: %v", event.Kind, event.Submission.SubmissionNumber, err)
		}
	}

	return &entry, nil
}

func messageFor(event Event) string {
	actor := event.Actor.FullName()
	switch event.Kind {
	case EventNewSubmission:
		return fmt.Sprintf("%s submitted %q", actor, event.Submission.Title)
	case EventNewReview:
		return fmt.Sprintf("%s submitted a review", actor)
	case EventPhaseChanged:
		oldPhase := event.Payload["old_phase"]
		newPhase := event.Payload["new_phase"]
		if oldPhase == newPhase {
			return fmt.Sprintf("%s returned the submission to %s", actor, newPhase)
		}
		return fmt.Sprintf("%s progressed the submission from %s to %s", actor, oldPhase, newPhase)
	case EventNewComment:
		return event.Message
	case EventDeterminationIssued:
		return fmt.Sprintf("%s issued a determination: %s", actor, event.Payload["outcome"])
	case EventFlagToggled:
		return fmt.Sprintf("%s flagged the submission (%s)", actor, event.Payload["flag_type"])
	case EventReviewersUpdated:
		return fmt.Sprintf("%s updated the reviewers", actor)
	case EventSubmissionUnsealed:
		return fmt.Sprintf("%s unsealed the submission", actor)
	case EventSubmissionScreened:
		return fmt.Sprintf("%s screened the submission as %s", actor, event.Payload["status"])
	}
	return event.Message
}

func persistentContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
