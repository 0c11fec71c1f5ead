package services

import (
	"context"
	"errors"
	"regexp"
	"testing"

	gomysql "github.com/go-sql-driver/mysql"

	"grant-review-api/models"
)

func TestIssueDeterminationStaffOnly(t *testing.T) {
	gormDB, state, cleanup := newScriptedGormDB(t, nil)
	defer cleanup()

	service := NewDeterminationService(gormDB, NewDispatcher(gormDB))
	reviewer := userWithRole(3, "reviewer")
	submission := submissionInPhase(7, WorkflowSingleStage, "determination")

	_, err := service.Issue(context.Background(), submission, reviewer, models.OutcomeAccepted, "")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission error, got %v", err)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestIssueDeterminationUnknownOutcome(t *testing.T) {
	gormDB, state, cleanup := newScriptedGormDB(t, nil)
	defer cleanup()

	service := NewDeterminationService(gormDB, NewDispatcher(gormDB))
	staff := userWithRole(1, "staff")
	submission := submissionInPhase(7, WorkflowSingleStage, "determination")

	_, err := service.Issue(context.Background(), submission, staff, "undecided", "")
	if !errors.Is(err, ErrGuardNotSatisfied) {
		t.Fatalf("expected guard error, got %v", err)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestIssueDeterminationOncePerStage(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("INSERT INTO `determinations`"),
			err:     &gomysql.MySQLError{Number: 1062, Message: "Duplicate entry"},
		},
	}

	gormDB, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	service := NewDeterminationService(gormDB, NewDispatcher(gormDB))
	staff := userWithRole(1, "staff")
	submission := submissionInPhase(7, WorkflowSingleStage, "determination")

	_, err := service.Issue(context.Background(), submission, staff, models.OutcomeRejected, "insufficient budget detail")
	if !errors.Is(err, ErrGuardNotSatisfied) {
		t.Fatalf("expected guard error for duplicate determination, got %v", err)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestIssueDeterminationRecordsAndAnnounces(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("INSERT INTO `determinations`"),
			result:  scriptedResult{lastInsertID: 1, rowsAffected: 1},
		},
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("INSERT INTO `activity_entries`"),
			result:  scriptedResult{lastInsertID: 1, rowsAffected: 1},
		},
	}

	gormDB, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	service := NewDeterminationService(gormDB, NewDispatcher(gormDB))
	staff := userWithRole(1, "staff")
	submission := submissionInPhase(7, WorkflowSingleStage, "determination")

	determination, err := service.Issue(context.Background(), submission, staff, " Accepted ", "good fit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if determination.Outcome != models.OutcomeAccepted {
		t.Fatalf("expected normalized outcome, got %q", determination.Outcome)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}
