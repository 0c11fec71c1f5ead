package models

import "time"

// Determination outcomes stored in determinations.outcome.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeMoreInfo = "more_info"
)

// Determination records the decision issued for a submission at a stage.
// One slot per (submission, stage), same scheme as reviews.
type Determination struct {
	DeterminationID int       `gorm:"primaryKey;column:determination_id" json:"determination_id"`
	SubmissionID    int       `gorm:"column:submission_id;uniqueIndex:uq_determination" json:"submission_id"`
	StageIndex      int       `gorm:"column:stage_index;uniqueIndex:uq_determination" json:"stage_index"`
	AuthorID        int       `gorm:"column:author_id" json:"author_id"`
	Outcome         string    `gorm:"column:outcome" json:"outcome"`
	Message         string    `gorm:"column:message" json:"message"`
	IsDraft         bool      `gorm:"column:is_draft" json:"is_draft"`
	CreatedAt       time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at" json:"updated_at"`

	Author *User `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
}

func (Determination) TableName() string {
	return "determinations"
}

// ValidOutcome reports whether the outcome value is one of the known set.
func ValidOutcome(outcome string) bool {
	switch outcome {
	case OutcomeAccepted, OutcomeRejected, OutcomeMoreInfo:
		return true
	}
	return false
}
