package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"grant-review-api/config"
	"grant-review-api/models"

	"gorm.io/gorm"
)

// ReviewService manages reviewer assessments: draft upkeep, finalization and
// the grouped views consumed by transition guards and the review listing.
type ReviewService struct {
	db         *gorm.DB
	dispatcher *Dispatcher
}

// NewReviewService constructs a ReviewService.
func NewReviewService(db *gorm.DB, dispatcher *Dispatcher) *ReviewService {
	if db == nil {
		db = config.DB
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher(db)
	}
	return &ReviewService{db: db, dispatcher: dispatcher}
}

// ReviewInput carries the fields a reviewer fills in.
type ReviewInput struct {
	Score          *int                           `json:"score"`
	Recommendation string                         `json:"recommendation"`
	Answers        map[string]models.ReviewAnswer `json:"answers"`
}

func (in *ReviewInput) validate() error {
	switch in.Recommendation {
	case models.RecommendationNo, models.RecommendationMaybe, models.RecommendationYes:
	default:
		return fmt.Errorf("unknown recommendation %q: %w", in.Recommendation, ErrGuardNotSatisfied)
	}
	if in.Score != nil && (*in.Score < 0 || *in.Score > 5) {
		return fmt.Errorf("score must be between 0 and 5: %w", ErrGuardNotSatisfied)
	}
	return nil
}

// UpsertDraft creates or updates the author's draft review for the
// submission's current stage. Drafts stay mutable until finalized; a
// finalized review can no longer be edited.
func (s *ReviewService) UpsertDraft(ctx context.Context, submission *models.Submission, author *models.User, input ReviewInput) (*models.Review, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	if err := s.requireAssigned(ctx, submission, author); err != nil {
		return nil, err
	}

	var existing models.Review
	err := s.db.WithContext(ctx).
		Where("submission_id = ? AND author_id = ? AND stage_index = ?",
			submission.SubmissionID, author.UserID, submission.StageIndex).
		First(&existing).Error
	switch {
	case err == nil:
		if !existing.IsDraft {
			return nil, fmt.Errorf("review already finalized: %w", ErrDuplicateReview)
		}
		if err := applyReviewInput(&existing, input); err != nil {
			return nil, err
		}
		if err := s.db.WithContext(ctx).Model(&models.Review{}).
			Where("review_id = ? AND author_id = ?", existing.ReviewID, author.UserID).
			Updates(map[string]interface{}{
				"score":          existing.Score,
				"recommendation": existing.Recommendation,
				"answers":        existing.Answers,
			}).Error; err != nil {
			return nil, fmt.Errorf("failed to update draft review: %w", err)
		}
		return &existing, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		review := models.Review{
			SubmissionID: submission.SubmissionID,
			AuthorID:     author.UserID,
			StageIndex:   submission.StageIndex,
			IsDraft:      true,
			ForLatest:    true,
		}
		if err := applyReviewInput(&review, input); err != nil {
			return nil, err
		}
		if err := s.db.WithContext(ctx).Create(&review).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, fmt.Errorf("concurrent review submission: %w", ErrDuplicateReview)
			}
			return nil, fmt.Errorf("failed to create draft review: %w", err)
		}
		return &review, nil
	default:
		return nil, fmt.Errorf("failed to load review: %w", err)
	}
}

// Submit records a finalized review in one step: an existing draft of the
// author is finalized with the given input, otherwise a new non-draft review
// is created. A second finalized review for the same slot is rejected.
func (s *ReviewService) Submit(ctx context.Context, submission *models.Submission, author *models.User, input ReviewInput) (*models.Review, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	if err := s.requireAssigned(ctx, submission, author); err != nil {
		return nil, err
	}

	var existing models.Review
	err := s.db.WithContext(ctx).
		Where("submission_id = ? AND author_id = ? AND stage_index = ?",
			submission.SubmissionID, author.UserID, submission.StageIndex).
		First(&existing).Error
	switch {
	case err == nil:
		if !existing.IsDraft {
			return nil, fmt.Errorf("review already finalized: %w", ErrDuplicateReview)
		}
		if err := applyReviewInput(&existing, input); err != nil {
			return nil, err
		}
		return s.finalize(ctx, submission, &existing, author)
	case errors.Is(err, gorm.ErrRecordNotFound):
		review := models.Review{
			SubmissionID: submission.SubmissionID,
			AuthorID:     author.UserID,
			StageIndex:   submission.StageIndex,
			IsDraft:      false,
			ForLatest:    true,
		}
		if err := applyReviewInput(&review, input); err != nil {
			return nil, err
		}
		if err := s.db.WithContext(ctx).Create(&review).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, fmt.Errorf("reviewer already holds a review for this stage: %w", ErrDuplicateReview)
			}
			return nil, fmt.Errorf("failed to create review: %w", err)
		}
		s.emitNewReview(ctx, submission, author)
		return &review, nil
	default:
		return nil, fmt.Errorf("failed to load review: %w", err)
	}
}

// Finalize flips the author's draft to final. The transition is one-way and
// happens exactly once; a concurrent double-finalize loses on the conditional
// update and reports a duplicate.
func (s *ReviewService) Finalize(ctx context.Context, submission *models.Submission, reviewID int, author *models.User) (*models.Review, error) {
	var review models.Review
	if err := s.db.WithContext(ctx).
		Where("review_id = ? AND submission_id = ?", reviewID, submission.SubmissionID).
		First(&review).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("review %d not found: %w", reviewID, gorm.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("failed to load review: %w", err)
	}
	if review.AuthorID != author.UserID {
		return nil, fmt.Errorf("only the author may finalize a review: %w", ErrPermissionDenied)
	}
	return s.finalize(ctx, submission, &review, author)
}

func (s *ReviewService) finalize(ctx context.Context, submission *models.Submission, review *models.Review, author *models.User) (*models.Review, error) {
	if !review.IsDraft {
		return nil, fmt.Errorf("review already finalized: %w", ErrDuplicateReview)
	}
	result := s.db.WithContext(ctx).Model(&models.Review{}).
		Where("review_id = ? AND is_draft = ?", review.ReviewID, true).
		Updates(map[string]interface{}{
			"is_draft":       false,
			"score":          review.Score,
			"recommendation": review.Recommendation,
			"answers":        review.Answers,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to finalize review: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("review was finalized concurrently: %w", ErrDuplicateReview)
	}
	review.IsDraft = false
	s.emitNewReview(ctx, submission, author)
	return review, nil
}

func (s *ReviewService) emitNewReview(ctx context.Context, submission *models.Submission, author *models.User) {
	if _, err := s.dispatcher.Emit(ctx, Event{
		Kind:       EventNewReview,
		Submission: submission,
		Actor:      author,
	}); err != nil {
		log.Printf("failed to emit NEW_REVIEW for submission %s: %v", submission.SubmissionNumber, err)
	}
}

func (s *ReviewService) requireAssigned(ctx context.Context, submission *models.Submission, author *models.User) error {
	caps := CapabilitiesOf(author)
	if caps.Has(CapStaff) {
		return nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.AssignedReviewer{}).
		Where("submission_id = ? AND reviewer_id = ?", submission.SubmissionID, author.UserID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check reviewer assignment: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("user is not assigned to review this submission: %w", ErrPermissionDenied)
	}
	return nil
}

func applyReviewInput(review *models.Review, input ReviewInput) error {
	review.Score = input.Score
	review.Recommendation = input.Recommendation
	return review.SetAnswers(input.Answers)
}

// NonDraftCount returns the number of finalized reviews for a submission at
// the given stage.
func (s *ReviewService) NonDraftCount(ctx context.Context, submissionID, stageIndex int) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Review{}).
		Where("submission_id = ? AND stage_index = ? AND is_draft = ?", submissionID, stageIndex, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count reviews: %w", err)
	}
	return count, nil
}

// GuardReviewCountMet reports whether the submission has at least minimum
// finalized reviews at its current stage.
func (s *ReviewService) GuardReviewCountMet(ctx context.Context, submission *models.Submission, minimum int) (bool, error) {
	if minimum <= 0 {
		return true, nil
	}
	count, err := s.NonDraftCount(ctx, submission.SubmissionID, submission.StageIndex)
	if err != nil {
		return false, err
	}
	return count >= int64(minimum), nil
}

// ReviewerSlot pairs an assigned reviewer with their review, if any.
type ReviewerSlot struct {
	Reviewer models.User    `json:"reviewer"`
	Role     *string        `json:"role,omitempty"`
	Review   *models.Review `json:"review,omitempty"`
}

// ReviewsBlock partitions a submission's assigned reviewers by classification
// crossed with whether they have delivered a finalized review yet.
type ReviewsBlock struct {
	RoleReviewed        []ReviewerSlot `json:"role_reviewed"`
	RoleNotReviewed     []ReviewerSlot `json:"role_not_reviewed"`
	StaffReviewed       []ReviewerSlot `json:"staff_reviewed"`
	StaffNotReviewed    []ReviewerSlot `json:"staff_not_reviewed"`
	ExternalReviewed    []ReviewerSlot `json:"external_reviewed"`
	ExternalNotReviewed []ReviewerSlot `json:"external_not_reviewed"`
	NoTopReviews        bool           `json:"no_top_reviews"`
}

// ReviewsFor groups the submission's finalized reviews for its current stage
// by reviewer classification. The grouping is recomputed on every read;
// reviews are cheap to enumerate next to how often the page renders.
func (s *ReviewService) ReviewsFor(ctx context.Context, submission *models.Submission) (*ReviewsBlock, error) {
	var assigned []models.AssignedReviewer
	if err := s.db.WithContext(ctx).Preload("Reviewer.Role").
		Where("submission_id = ?", submission.SubmissionID).
		Order("role, reviewer_id").
		Find(&assigned).Error; err != nil {
		return nil, fmt.Errorf("failed to load assigned reviewers: %w", err)
	}

	var reviews []models.Review
	if err := s.db.WithContext(ctx).Preload("Author").
		Where("submission_id = ? AND stage_index = ? AND is_draft = ?",
			submission.SubmissionID, submission.StageIndex, false).
		Find(&reviews).Error; err != nil {
		return nil, fmt.Errorf("failed to load reviews: %w", err)
	}

	return buildReviewsBlock(assigned, reviews), nil
}

// buildReviewsBlock computes the deterministic grouping key per assigned
// reviewer: a named role wins over staff status; without either, the
// reviewer is external.
func buildReviewsBlock(assigned []models.AssignedReviewer, reviews []models.Review) *ReviewsBlock {
	byAuthor := make(map[int]*models.Review, len(reviews))
	for i := range reviews {
		byAuthor[reviews[i].AuthorID] = &reviews[i]
	}

	block := &ReviewsBlock{NoTopReviews: true}
	for _, assignment := range assigned {
		review := byAuthor[assignment.ReviewerID]
		slot := ReviewerSlot{
			Reviewer: assignment.Reviewer,
			Role:     assignment.Role,
			Review:   review,
		}
		switch {
		case assignment.Role != nil:
			block.NoTopReviews = false
			if review != nil {
				block.RoleReviewed = append(block.RoleReviewed, slot)
			} else {
				block.RoleNotReviewed = append(block.RoleNotReviewed, slot)
			}
		case assignment.Reviewer.IsStaff():
			block.NoTopReviews = false
			if review != nil {
				block.StaffReviewed = append(block.StaffReviewed, slot)
			} else {
				block.StaffNotReviewed = append(block.StaffNotReviewed, slot)
			}
		default:
			if review != nil {
				block.ExternalReviewed = append(block.ExternalReviewed, slot)
			} else {
				block.ExternalNotReviewed = append(block.ExternalNotReviewed, slot)
			}
		}
	}
	return block
}

// ListingColumn is one row of the side-by-side review comparison table: a
// question and one answer per finalized review.
type ListingColumn struct {
	Question string   `json:"question"`
	Answers  []string `json:"answers"`
}

// ListingFor builds the comparison table for a set of finalized reviews.
// Header rows (author, score, recommendation, revision) come first, then one
// row per answer field. Each review's field sequence is rebuilt fresh for
// the render pass.
func ListingFor(reviews []models.Review) ([]ListingColumn, error) {
	responses := len(reviews)
	authors := ListingColumn{Question: "", Answers: make([]string, 0, responses)}
	scores := ListingColumn{Question: "Overall Score", Answers: make([]string, 0, responses)}
	recommendations := ListingColumn{Question: "Recommendation", Answers: make([]string, 0, responses)}
	revisions := ListingColumn{Question: "Revision", Answers: make([]string, 0, responses)}

	fieldRows := make(map[string]*ListingColumn)
	fieldOrder := make([]string, 0)

	for i, review := range reviews {
		author := ""
		if review.Author != nil {
			author = review.Author.FullName()
		}
		authors.Answers = append(authors.Answers, author)

		score := "-"
		if review.Score != nil {
			score = strconv.Itoa(*review.Score)
		}
		scores.Answers = append(scores.Answers, score)
		recommendations.Answers = append(recommendations.Answers, review.Recommendation)

		revision := "Current"
		if !review.ForLatest {
			revision = "Outdated"
		}
		revisions.Answers = append(revisions.Answers, revision)

		pairs, err := review.FieldAnswers()
		if err != nil {
			return nil, fmt.Errorf("failed to decode answers for review %d: %w", review.ReviewID, err)
		}
		for _, pair := range pairs {
			row, ok := fieldRows[pair.FieldID]
			if !ok {
				row = &ListingColumn{
					Question: pair.Answer.Label,
					Answers:  make([]string, responses),
				}
				fieldRows[pair.FieldID] = row
				fieldOrder = append(fieldOrder, pair.FieldID)
			}
			row.Answers[i] = pair.Answer.Value
		}
	}

	listing := []ListingColumn{authors, scores, recommendations, revisions}
	for _, fieldID := range fieldOrder {
		listing = append(listing, *fieldRows[fieldID])
	}
	return listing, nil
}
