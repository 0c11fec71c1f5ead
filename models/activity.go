package models

import "time"

// ActivityEntry is the immutable log of everything that happened to a
// submission. Rows are append-only: they are written once by the dispatcher
// and never updated or deleted, and the visibility flags are fixed at write
// time.
type ActivityEntry struct {
	ActivityID          int       `gorm:"primaryKey;column:activity_id" json:"activity_id"`
	SubmissionID        int       `gorm:"column:submission_id" json:"submission_id"`
	UserID              int       `gorm:"column:user_id" json:"user_id"`
	Kind                string    `gorm:"column:kind" json:"kind"`
	Message             string    `gorm:"column:message" json:"message"`
	VisibleToApplicants bool      `gorm:"column:visible_to_applicants" json:"visible_to_applicants"`
	VisibleToReviewers  bool      `gorm:"column:visible_to_reviewers" json:"visible_to_reviewers"`
	VisibleToPartners   bool      `gorm:"column:visible_to_partners" json:"visible_to_partners"`
	CreatedAt           time.Time `gorm:"column:created_at" json:"created_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (ActivityEntry) TableName() string {
	return "activity_entries"
}
