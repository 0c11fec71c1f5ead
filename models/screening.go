package models

import "time"

// ScreeningStatus is one entry of the staff screening scale. Screening
// happens before any review: staff mark incoming submissions with a yes/no
// verdict so the promising ones can be sorted from the rest.
type ScreeningStatus struct {
	StatusID  int       `gorm:"primaryKey;column:status_id" json:"status_id"`
	Title     string    `gorm:"column:title;unique" json:"title"`
	Yes       bool      `gorm:"column:yes" json:"yes"`
	Default   bool      `gorm:"column:is_default" json:"default"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (ScreeningStatus) TableName() string {
	return "screening_statuses"
}
