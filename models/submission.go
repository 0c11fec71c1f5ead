package models

import "time"

// Submission is a grant application moving through a workflow. The current
// phase is only ever changed by the transition service; nothing else may
// write current_phase or stage_index.
type Submission struct {
	SubmissionID     int        `gorm:"primaryKey;column:submission_id" json:"submission_id"`
	SubmissionNumber string     `gorm:"column:submission_number;unique" json:"submission_number"`
	Title            string     `gorm:"column:title" json:"title"`
	WorkflowName     string     `gorm:"column:workflow_name" json:"workflow_name"`
	CurrentPhase     string     `gorm:"column:current_phase" json:"current_phase"`
	StageIndex       int        `gorm:"column:stage_index" json:"stage_index"`
	UserID           int        `gorm:"column:user_id" json:"user_id"`
	LeadReviewerID   *int       `gorm:"column:lead_reviewer_id" json:"lead_reviewer_id,omitempty"`
	ScreeningID      *int       `gorm:"column:screening_status_id" json:"screening_status_id,omitempty"`
	Sealed           bool       `gorm:"column:sealed" json:"sealed"`
	Locked           bool       `gorm:"column:locked" json:"locked"`
	SubmittedAt      *time.Time `gorm:"column:submitted_at" json:"submitted_at,omitempty"`
	CreatedAt        time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt        *time.Time `gorm:"column:deleted_at" json:"deleted_at,omitempty"`

	// Relations
	User         User               `gorm:"foreignKey:UserID" json:"user,omitempty"`
	LeadReviewer *User              `gorm:"foreignKey:LeadReviewerID" json:"lead_reviewer,omitempty"`
	Screening    *ScreeningStatus   `gorm:"foreignKey:ScreeningID;references:StatusID" json:"screening,omitempty"`
	Reviewers    []AssignedReviewer `gorm:"foreignKey:SubmissionID" json:"reviewers,omitempty"`
}

// AssignedReviewer links a reviewer to a submission, optionally under a named
// role (e.g. "Lead", "Security"). A reviewer is assigned at most once.
type AssignedReviewer struct {
	AssignmentID int       `gorm:"primaryKey;column:assignment_id" json:"assignment_id"`
	SubmissionID int       `gorm:"column:submission_id;uniqueIndex:uq_assignment" json:"submission_id"`
	ReviewerID   int       `gorm:"column:reviewer_id;uniqueIndex:uq_assignment" json:"reviewer_id"`
	Role         *string   `gorm:"column:role" json:"role,omitempty"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`

	Reviewer User `gorm:"foreignKey:ReviewerID" json:"reviewer,omitempty"`
}

// PhaseHistory tracks historical phase changes for submissions.
type PhaseHistory struct {
	HistoryID    int       `gorm:"primaryKey;column:history_id" json:"history_id"`
	SubmissionID int       `gorm:"column:submission_id" json:"submission_id"`
	OldPhase     string    `gorm:"column:old_phase" json:"old_phase"`
	NewPhase     string    `gorm:"column:new_phase" json:"new_phase"`
	Action       string    `gorm:"column:action" json:"action"`
	ChangedBy    int       `gorm:"column:changed_by" json:"changed_by"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName overrides
func (Submission) TableName() string {
	return "submissions"
}

func (AssignedReviewer) TableName() string {
	return "assigned_reviewers"
}

func (PhaseHistory) TableName() string {
	return "phase_history"
}
