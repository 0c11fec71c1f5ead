package services

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"

	gomysql "github.com/go-sql-driver/mysql"

	"grant-review-api/models"
)

func TestToggleUnknownFlagType(t *testing.T) {
	gormDB, state, cleanup := newScriptedGormDB(t, nil)
	defer cleanup()

	service := NewFlagService(gormDB, NewDispatcher(gormDB))
	user := userWithRole(5, "staff")
	submission := submissionInPhase(7, WorkflowSingleStage, "received")

	_, err := service.Toggle(context.Background(), user, submission, "favorite")
	if !errors.Is(err, ErrGuardNotSatisfied) {
		t.Fatalf("expected guard error, got %v", err)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestToggleCreatesFlag(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("INSERT INTO `flags`"),
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

	service := NewFlagService(gormDB, NewDispatcher(gormDB))
	user := userWithRole(5, "staff")
	submission := submissionInPhase(7, WorkflowSingleStage, "received")

	created, err := service.Toggle(context.Background(), user, submission, models.FlagTypeStaff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("first toggle must create the flag")
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestToggleRemovesExistingFlag(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("INSERT INTO `flags`"),
			err:     &gomysql.MySQLError{Number: 1062, Message: "Duplicate entry"},
		},
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("DELETE FROM `flags`"),
			args:    []driver.Value{int64(5), int64(7), models.FlagTypeUserStar},
			result:  scriptedResult{rowsAffected: 1},
		},
	}

	gormDB, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	service := NewFlagService(gormDB, NewDispatcher(gormDB))
	user := userWithRole(5, "applicant")
	submission := submissionInPhase(7, WorkflowSingleStage, "received")

	created, err := service.Toggle(context.Background(), user, submission, models.FlagTypeUserStar)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatal("second toggle must remove the flag")
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}
