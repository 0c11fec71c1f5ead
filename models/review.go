package models

import (
	"encoding/json"
	"sort"
	"time"
)

// Recommendation values stored in reviews.recommendation.
const (
	RecommendationNo    = "no"
	RecommendationMaybe = "maybe"
	RecommendationYes   = "yes"
)

// Review is one reviewer's assessment of a submission at a given stage.
// The unique index keeps a single slot per (submission, author, stage): a
// draft occupies the slot and is finalized in place, so a competing insert
// surfaces as a duplicate key error instead of a second review.
type Review struct {
	ReviewID       int       `gorm:"primaryKey;column:review_id" json:"review_id"`
	SubmissionID   int       `gorm:"column:submission_id;uniqueIndex:uq_review_slot" json:"submission_id"`
	AuthorID       int       `gorm:"column:author_id;uniqueIndex:uq_review_slot" json:"author_id"`
	StageIndex     int       `gorm:"column:stage_index;uniqueIndex:uq_review_slot" json:"stage_index"`
	Score          *int      `gorm:"column:score" json:"score,omitempty"`
	Recommendation string    `gorm:"column:recommendation" json:"recommendation"`
	Answers        string    `gorm:"column:answers" json:"-"`
	IsDraft        bool      `gorm:"column:is_draft" json:"is_draft"`
	ForLatest      bool      `gorm:"column:for_latest" json:"for_latest"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at" json:"updated_at"`

	Author *User `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
}

func (Review) TableName() string {
	return "reviews"
}

// ReviewAnswer is one structured answer inside reviews.answers.
type ReviewAnswer struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// FieldAnswer pairs a field id with its answer for display purposes.
type FieldAnswer struct {
	FieldID string
	Answer  ReviewAnswer
}

// AnswerMap decodes the stored answer set. An empty answers column decodes to
// an empty map.
func (r *Review) AnswerMap() (map[string]ReviewAnswer, error) {
	answers := make(map[string]ReviewAnswer)
	if r.Answers == "" {
		return answers, nil
	}
	if err := json.Unmarshal([]byte(r.Answers), &answers); err != nil {
		return nil, err
	}
	return answers, nil
}

// FieldAnswers builds a fresh ordered sequence of (field, answer) pairs.
// Each render pass reconstructs the sequence, so consumers never share
// iteration state.
func (r *Review) FieldAnswers() ([]FieldAnswer, error) {
	answers, err := r.AnswerMap()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(answers))
	for id := range answers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	pairs := make([]FieldAnswer, 0, len(ids))
	for _, id := range ids {
		pairs = append(pairs, FieldAnswer{FieldID: id, Answer: answers[id]})
	}
	return pairs, nil
}

// SetAnswers encodes the answer set into the answers column.
func (r *Review) SetAnswers(answers map[string]ReviewAnswer) error {
	if len(answers) == 0 {
		r.Answers = ""
		return nil
	}
	encoded, err := json.Marshal(answers)
	if err != nil {
		return err
	}
	r.Answers = string(encoded)
	return nil
}
