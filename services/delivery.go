package services

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"grant-review-api/config"
	"grant-review-api/models"

	"gorm.io/gorm"
)

// EmailAdapter delivers workflow events by email. Only events that concern a
// person directly produce mail; the activity log remains the full record.
type EmailAdapter struct {
	db *gorm.DB
}

func NewEmailAdapter(db *gorm.DB) *EmailAdapter {
	if db == nil {
		db = config.DB
	}
	return &EmailAdapter{db: db}
}

func (a *EmailAdapter) Deliver(ctx context.Context, event Event, entry *models.ActivityEntry) error {
	recipients, err := a.recipientsFor(ctx, event)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		return nil
	}

	subject := fmt.Sprintf("[%s] %s", event.Submission.SubmissionNumber, subjectFor(event.Kind))
	html := buildEmailHTML(subject, entry.Message)
	return config.SendMail(recipients, subject, html)
}

func (a *EmailAdapter) recipientsFor(ctx context.Context, event Event) ([]string, error) {
	switch event.Kind {
	case EventPhaseChanged, EventDeterminationIssued:
		email, err := a.userEmail(ctx, event.Submission.UserID)
		if err != nil || email == "" {
			return nil, err
		}
		return []string{email}, nil
	case EventNewReview:
		if event.Submission.LeadReviewerID == nil {
			return nil, nil
		}
		email, err := a.userEmail(ctx, *event.Submission.LeadReviewerID)
		if err != nil || email == "" {
			return nil, err
		}
		return []string{email}, nil
	}
	return nil, nil
}

func (a *EmailAdapter) userEmail(ctx context.Context, userID int) (string, error) {
	var user models.User
	if err := a.db.WithContext(ctx).
		Select("email").
		Where("user_id = ? AND delete_at IS NULL", userID).
		First(&user).Error; err != nil {
		return "", fmt.Errorf("failed to load recipient %d: %w", userID, err)
	}
	return strings.TrimSpace(user.Email), nil
}

func subjectFor(kind EventKind) string {
	switch kind {
	case EventPhaseChanged:
		return "Your application has progressed"
	case EventDeterminationIssued:
		return "A determination has been issued"
	case EventNewReview:
		return "A new review was submitted"
	}
	return "Application update"
}

func buildEmailHTML(subject, message string) string {
	escapedSubject := template.HTMLEscapeString(subject)
	escapedMessage := template.HTMLEscapeString(strings.TrimSpace(message))
	escapedMessage = strings.ReplaceAll(strings.ReplaceAll(escapedMessage, "\r\n", "\n"), "\r", "\n")
	escapedMessage = strings.ReplaceAll(escapedMessage, "\n", "<br />")

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
</head>
<body style="margin:0;padding:0;background-color:#f9fafb;font-family:'Segoe UI',Tahoma,Arial,sans-serif;">
<div style="max-width:640px;margin:0 auto;padding:24px 20px;">
  <div style="background-color:#ffffff;border:1px solid #e5e7eb;border-radius:12px;padding:24px 24px 28px 24px;">
    <p style="margin:0;font-size:16px;line-height:1.7;color:#111827;word-break:break-word;">%s</p>
  </div>
</div>
</body>
</html>`, escapedSubject, escapedMessage)
}

// NotificationAdapter mirrors workflow events into the in-app notification
// table so users see them on their dashboard. Recipients follow the entry's
// visibility flags.
type NotificationAdapter struct {
	db *gorm.DB
}

func NewNotificationAdapter(db *gorm.DB) *NotificationAdapter {
	if db == nil {
		db = config.DB
	}
	return &NotificationAdapter{db: db}
}

func (a *NotificationAdapter) Deliver(ctx context.Context, event Event, entry *models.ActivityEntry) error {
	recipients := make(map[int]struct{})

	if entry.VisibleToApplicants {
		recipients[event.Submission.UserID] = struct{}{}
	}
	if entry.VisibleToReviewers {
		var assigned []models.AssignedReviewer
		if err := a.db.WithContext(ctx).
			Where("submission_id = ?", event.Submission.SubmissionID).
			Find(&assigned).Error; err != nil {
			return fmt.Errorf("failed to load assigned reviewers: %w", err)
		}
		for _, reviewer := range assigned {
			recipients[reviewer.ReviewerID] = struct{}{}
		}
		if event.Submission.LeadReviewerID != nil {
			recipients[*event.Submission.LeadReviewerID] = struct{}{}
		}
	}
	// The actor already knows; don't notify them about their own action.
	delete(recipients, event.Actor.UserID)

	if len(recipients) == 0 {
		return nil
	}

	submissionID := uint(event.Submission.SubmissionID)
	for userID := range recipients {
		notification := models.Notification{
			UserID:              uint(userID),
			Title:               subjectFor(event.Kind),
			Message:             entry.Message,
			Type:                notificationTypeFor(event.Kind),
			RelatedSubmissionID: &submissionID,
		}
		if err := a.db.WithContext(ctx).Create(&notification).Error; err != nil {
			return fmt.Errorf("failed to create notification for user %d: %w", userID, err)
		}
	}
	return nil
}

func notificationTypeFor(kind EventKind) string {
	switch kind {
	case EventDeterminationIssued:
		return "success"
	case EventFlagToggled:
		return "warning"
	default:
		return "info"
	}
}
