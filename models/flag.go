package models

import "time"

// Flag types stored in flags.type.
const (
	FlagTypeStaff    = "staff"
	FlagTypeUserStar = "user_star"
)

// Flag is a user's personal toggle on a submission. The unique index keeps at
// most one row per (user, submission, type); toggling races resolve to either
// the row existing or not, never to two rows.
type Flag struct {
	FlagID       int       `gorm:"primaryKey;column:flag_id" json:"flag_id"`
	UserID       int       `gorm:"column:user_id;uniqueIndex:uq_flag" json:"user_id"`
	SubmissionID int       `gorm:"column:submission_id;uniqueIndex:uq_flag" json:"submission_id"`
	Type         string    `gorm:"column:type;uniqueIndex:uq_flag" json:"type"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Flag) TableName() string {
	return "flags"
}
