package services

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"grant-review-api/models"
)

func TestVisibilityNarrowNeverWidens(t *testing.T) {
	policy := Visibility{Reviewers: true}
	requested := Visibility{Applicants: true, Reviewers: true, Partners: true}

	got := policy.Narrow(requested)
	if got.Applicants || got.Partners {
		t.Fatalf("narrowing must not widen the policy, got %+v", got)
	}
	if !got.Reviewers {
		t.Fatalf("reviewers allowed by both sides must survive, got %+v", got)
	}

	empty := policy.Narrow(Visibility{})
	if empty.Applicants || empty.Reviewers || empty.Partners {
		t.Fatalf("narrowing with nothing requested must yield nothing, got %+v", empty)
	}
}

func TestEveryEventKindHasVisibilityPolicy(t *testing.T) {
	kinds := []EventKind{
		EventNewSubmission, EventNewReview, EventPhaseChanged, EventNewComment,
		EventDeterminationIssued, EventFlagToggled, EventReviewersUpdated, EventSubmissionUnsealed,
		EventSubmissionScreened,
	}
	for _, kind := range kinds {
		if _, ok := defaultVisibility[kind]; !ok {
			t.Fatalf("event kind %s has no visibility policy", kind)
		}
	}
}

func TestEmitRejectsUnknownKind(t *testing.T) {
	gormDB, state, cleanup := newScriptedGormDB(t, nil)
	defer cleanup()

	dispatcher := NewDispatcher(gormDB)
	_, err := dispatcher.Emit(context.Background(), Event{
		Kind:       EventKind("SURPRISE"),
		Submission: &models.Submission{SubmissionID: 7},
		Actor:      userWithRole(1, "staff"),
	})
	if !IsConfigurationError(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	// No statement may have reached the database.
	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

type recordingAdapter struct {
	calls int
	err   error
}

func (a *recordingAdapter) Deliver(ctx context.Context, event Event, entry *models.ActivityEntry) error {
	a.calls++
	return a.err
}

func TestEmitSwallowsAdapterFailures(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("INSERT INTO `activity_entries`"),
			result:  scriptedResult{lastInsertID: 1, rowsAffected: 1},
		},
	}

	gormDB, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	failing := &recordingAdapter{err: errors.New("smtp unreachable")}
	healthy := &recordingAdapter{}
	dispatcher := NewDispatcher(gormDB, failing, healthy)

	entry, err := dispatcher.Emit(context.Background(), Event{
		Kind:       EventPhaseChanged,
		Submission: &models.Submission{SubmissionID: 7, SubmissionNumber: "SUB-7"},
		Actor:      userWithRole(1, "staff"),
		Payload:    map[string]string{"old_phase": "Received", "new_phase": "Internal Review"},
	})
	if err != nil {
		t.Fatalf("adapter failure must not fail the emit: %v", err)
	}
	if entry == nil {
		t.Fatal("expected a recorded activity entry")
	}
	if failing.calls != 1 || healthy.calls != 1 {
		t.Fatalf("every adapter must be attempted, got %d and %d", failing.calls, healthy.calls)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestEmitNarrowsRequestedVisibility(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("INSERT INTO `activity_entries`"),
			result:  scriptedResult{lastInsertID: 1, rowsAffected: 1},
		},
	}

	gormDB, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	var seen *models.ActivityEntry
	capture := &captureAdapter{entry: &seen}
	dispatcher := NewDispatcher(gormDB, capture)

	// NEW_REVIEW defaults to reviewers only; requesting applicants too must
	// not widen it.
	_, err := dispatcher.Emit(context.Background(), Event{
		Kind:       EventNewReview,
		Submission: &models.Submission{SubmissionID: 7, SubmissionNumber: "SUB-7"},
		Actor:      userWithRole(3, "reviewer"),
		Visibility: &Visibility{Applicants: true, Reviewers: true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen == nil {
		t.Fatal("expected the adapter to observe the entry")
	}
	if seen.VisibleToApplicants {
		t.Fatal("applicant visibility must not be widened beyond the policy")
	}
	if !seen.VisibleToReviewers {
		t.Fatal("reviewer visibility allowed by the policy must survive")
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

type captureAdapter struct {
	entry **models.ActivityEntry
}

func (a *captureAdapter) Deliver(ctx context.Context, event Event, entry *models.ActivityEntry) error {
	*a.entry = entry
	return nil
}

func TestMessageForSelfTransition(t *testing.T) {
	actor := userWithRole(1, "staff")
	event := Event{
		Kind:       EventPhaseChanged,
		Submission: &models.Submission{SubmissionID: 7},
		Actor:      actor,
		Payload:    map[string]string{"old_phase": "Received", "new_phase": "Received"},
	}
	if got := messageFor(event); got != "Test staff returned the submission to Received" {
		t.Fatalf("unexpected message: %q", got)
	}

	event.Payload["new_phase"] = "Internal Review"
	if got := messageFor(event); got != "Test staff progressed the submission from Received to Internal Review" {
		t.Fatalf("unexpected message: %q", got)
	}
}
