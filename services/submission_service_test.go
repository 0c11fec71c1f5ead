package services

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"

	"grant-review-api/models"
)

func TestAuthorizeSubmissionRead(t *testing.T) {
	submission := &models.Submission{
		SubmissionID:     7,
		SubmissionNumber: "SUB-7",
		UserID:           2,
		Reviewers: []models.AssignedReviewer{
			{ReviewerID: 5},
		},
	}

	cases := []struct {
		name    string
		user    *models.User
		allowed bool
	}{
		{"staff", userWithRole(9, "staff"), true},
		{"owner", userWithRole(2, "applicant"), true},
		{"assigned reviewer", userWithRole(5, "reviewer"), true},
		{"other applicant", userWithRole(3, "applicant"), false},
		{"unassigned reviewer", userWithRole(6, "reviewer"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := AuthorizeSubmissionRead(submission, tc.user)
			if tc.allowed && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.allowed && !errors.Is(err, ErrPermissionDenied) {
				t.Fatalf("expected permission error, got %v", err)
			}
		})
	}
}

func TestAuthorizeReviewRead(t *testing.T) {
	submission := &models.Submission{
		SubmissionID:     7,
		SubmissionNumber: "SUB-7",
		UserID:           2,
		Reviewers: []models.AssignedReviewer{
			{ReviewerID: 5},
		},
	}

	if err := AuthorizeReviewRead(submission, userWithRole(9, "staff")); err != nil {
		t.Fatalf("staff must read reviews, got %v", err)
	}
	if err := AuthorizeReviewRead(submission, userWithRole(5, "reviewer")); err != nil {
		t.Fatalf("assigned reviewer must read reviews, got %v", err)
	}

	// The applicant owns the submission but never sees reviewer identities
	// or scores.
	err := AuthorizeReviewRead(submission, userWithRole(2, "applicant"))
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission error for the applicant, got %v", err)
	}
}

func TestAssignReviewersStaffOnly(t *testing.T) {
	gormDB, state, cleanup := newScriptedGormDB(t, nil)
	defer cleanup()

	service := NewSubmissionService(gormDB, NewDispatcher(gormDB))
	submission := submissionInPhase(7, WorkflowSingleStage, "received")

	err := service.AssignReviewers(context.Background(), submission, userWithRole(5, "reviewer"), nil, nil)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestAssignReviewersReplacesSet(t *testing.T) {
	staff := userWithRole(9, "staff")
	lead := intPtr(5)

	steps := []*queryStep{
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("DELETE FROM `assigned_reviewers`"),
			args:    []driver.Value{int64(7)},
			result:  scriptedResult{rowsAffected: 2},
		},
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("INSERT INTO `assigned_reviewers`"),
			result:  scriptedResult{lastInsertID: 11, rowsAffected: 1},
		},
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("INSERT INTO `assigned_reviewers`"),
			result:  scriptedResult{lastInsertID: 12, rowsAffected: 1},
		},
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("UPDATE `submissions` SET"),
			result:  scriptedResult{rowsAffected: 1},
		},
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("INSERT INTO `activity_entries`"),
			result:  scriptedResult{lastInsertID: 1, rowsAffected: 1},
		},
	}

	gormDB, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	service := NewSubmissionService(gormDB, NewDispatcher(gormDB))
	submission := submissionInPhase(7, WorkflowSingleStage, "internal_review")

	err := service.AssignReviewers(context.Background(), submission, staff, lead, []models.AssignedReviewer{
		{ReviewerID: 5, Role: strPtr("Lead")},
		{ReviewerID: 6},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if submission.LeadReviewerID == nil || *submission.LeadReviewerID != 5 {
		t.Fatalf("expected lead reviewer 5, got %v", submission.LeadReviewerID)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestAssignReviewersStopsOnFailedInsert(t *testing.T) {
	staff := userWithRole(9, "staff")

	steps := []*queryStep{
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("DELETE FROM `assigned_reviewers`"),
			args:    []driver.Value{int64(7)},
			result:  scriptedResult{rowsAffected: 1},
		},
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("INSERT INTO `assigned_reviewers`"),
			err:     errors.New("connection reset"),
		},
	}

	gormDB, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	service := NewSubmissionService(gormDB, NewDispatcher(gormDB))
	submission := submissionInPhase(7, WorkflowSingleStage, "internal_review")

	err := service.AssignReviewers(context.Background(), submission, staff, nil, []models.AssignedReviewer{
		{ReviewerID: 5},
		{ReviewerID: 6},
	})
	if err == nil {
		t.Fatal("expected an error from the failed insert")
	}

	// The second insert, the lead update and the announcement must not run;
	// the surrounding transaction rolls the delete back.
	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}
