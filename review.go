/*
Copyright 2025 Outbound Labs Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cadence

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/outboundlabs/cadence/internal/notification"
	"github.com/outboundlabs/cadence/model"
)

// Confidence threshold bounds. A stored threshold outside the range is
// treated as unconfigured and falls back to the default, so a bad
// setting can never disable the review gate.
const (
	ConfidenceThresholdDefault = 80
	ConfidenceThresholdMin     = 60
	ConfidenceThresholdMax     = 95
)

// GetConfidenceThreshold resolves the account's review threshold.
func (c *Cadence) GetConfidenceThreshold(ctx context.Context, accountID string) (int, error) {
	settings, err := c.datasource.GetAccountSettings(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return resolveThreshold(settings), nil
}

func resolveThreshold(settings *model.AccountSettings) int {
	if settings.ConfidenceThreshold == nil {
		return ConfidenceThresholdDefault
	}
	threshold := *settings.ConfidenceThreshold
	if threshold < ConfidenceThresholdMin || threshold > ConfidenceThresholdMax {
		return ConfidenceThresholdDefault
	}
	return threshold
}

// ShouldQueueForReview reports whether a message with the given
// confidence score must be held for human review. The comparison is
// strictly below threshold: a score equal to the threshold sends
// without review.
func (c *Cadence) ShouldQueueForReview(ctx context.Context, accountID string, confidence int) (bool, error) {
	threshold, err := c.GetConfidenceThreshold(ctx, accountID)
	if err != nil {
		return false, err
	}
	return confidence < threshold, nil
}

// QueueForReview holds a below-threshold candidate for human review.
// VIP candidates surface at the top of the pending listing.
func (c *Cadence) QueueForReview(ctx context.Context, candidate *model.Candidate) (*model.ReviewItem, error) {
	ctx, span := tracer.Start(ctx, "Queuing Candidate For Review")
	defer span.End()

	item := &model.ReviewItem{
		AccountID:       candidate.AccountID,
		ContactID:       candidate.ContactID,
		ProfileURL:      candidate.ProfileURL,
		EmailAddress:    candidate.EmailAddress,
		ProposedSubject: candidate.Subject,
		ProposedBody:    candidate.Body,
		Confidence:      candidate.Confidence,
		Priority:        candidate.VIP,
	}
	created, err := c.datasource.CreateReviewItem(ctx, item)
	if err != nil {
		return nil, err
	}

	span.AddEvent("Review item created", trace.WithAttributes(
		attribute.String("review.id", created.ReviewID),
		attribute.Int("confidence", created.Confidence)))
	return created, nil
}

// ListPendingReviews returns the account's pending review items, VIP
// first, oldest first within each priority class.
func (c *Cadence) ListPendingReviews(ctx context.Context, accountID string, limit int) ([]*model.ReviewItem, error) {
	return c.datasource.ListPendingReviewItems(ctx, accountID, limit)
}

// ApproveReview approves a pending item and sends the proposed message
// unchanged. The decision is claimed first with a conditional update,
// so two reviewers racing on the same item resolve to exactly one
// winner; delivery failures after the claim are reported but never
// reopen the decision.
func (c *Cadence) ApproveReview(ctx context.Context, accountID, reviewID string) error {
	ctx, span := tracer.Start(ctx, "Approving Review Item")
	defer span.End()

	item, err := c.datasource.GetReviewItem(ctx, accountID, reviewID)
	if err != nil {
		return err
	}

	if err := c.datasource.ClaimReviewDecision(ctx, accountID, reviewID, model.ReviewApproved, ""); err != nil {
		return err
	}
	span.AddEvent("Decision claimed", trace.WithAttributes(
		attribute.String("review.id", reviewID),
		attribute.String("decision", model.ReviewApproved)))

	c.deliverReviewedMessage(ctx, item, item.ProposedSubject, item.ProposedBody, true)
	return nil
}

// EditAndApproveReview approves a pending item with reviewer-edited
// copy. Fields left blank fall back to the original proposal, so a
// reviewer can touch up just the subject or just the body. The
// conversation log marks the message human-authored either way.
func (c *Cadence) EditAndApproveReview(ctx context.Context, accountID, reviewID, subject, body string) error {
	ctx, span := tracer.Start(ctx, "Editing And Approving Review Item")
	defer span.End()

	item, err := c.datasource.GetReviewItem(ctx, accountID, reviewID)
	if err != nil {
		return err
	}
	if subject == "" {
		subject = item.ProposedSubject
	}
	if body == "" {
		body = item.ProposedBody
	}

	if err := c.datasource.ClaimReviewDecision(ctx, accountID, reviewID, model.ReviewEdited, ""); err != nil {
		return err
	}
	span.AddEvent("Decision claimed", trace.WithAttributes(
		attribute.String("review.id", reviewID),
		attribute.String("decision", model.ReviewEdited)))

	c.deliverReviewedMessage(ctx, item, subject, body, false)
	return nil
}

// RejectReview rejects a pending item. The reason is optional and is
// recorded as given, empty included. The contact moves to nurture and
// the rejection is written to the audit log. No message is ever sent
// for a rejected item.
func (c *Cadence) RejectReview(ctx context.Context, accountID, reviewID, reason string) error {
	ctx, span := tracer.Start(ctx, "Rejecting Review Item")
	defer span.End()

	item, err := c.datasource.GetReviewItem(ctx, accountID, reviewID)
	if err != nil {
		return err
	}

	if err := c.datasource.ClaimReviewDecision(ctx, accountID, reviewID, model.ReviewRejected, reason); err != nil {
		return err
	}

	if err := c.datasource.UpdateContactStatus(ctx, accountID, item.ContactID, model.ContactStatusNurture); err != nil {
		notification.NotifyError(fmt.Errorf("failed to move rejected contact %s to nurture: %w", item.ContactID, err))
	}
	if err := c.datasource.RecordAudit(ctx, &model.AuditEntry{
		AccountID: accountID,
		ContactID: item.ContactID,
		Action:    "review_rejected",
		Reason:    reason,
		CreatedAt: time.Now(),
	}); err != nil {
		notification.NotifyError(fmt.Errorf("failed to audit rejection of review %s: %w", reviewID, err))
	}

	span.AddEvent("Review rejected", trace.WithAttributes(
		attribute.String("review.id", reviewID),
		attribute.String("reason", reason)))
	return nil
}

// BulkApprove approves each item independently. One failure never
// aborts the rest; the result maps every item to its outcome.
func (c *Cadence) BulkApprove(ctx context.Context, accountID string, reviewIDs []string) *model.BulkResult {
	ctx, span := tracer.Start(ctx, "Bulk Approving Review Items")
	defer span.End()

	result := &model.BulkResult{Failed: make(map[string]error)}
	for _, reviewID := range reviewIDs {
		if err := c.ApproveReview(ctx, accountID, reviewID); err != nil {
			result.Failed[reviewID] = err
			continue
		}
		result.Succeeded = append(result.Succeeded, reviewID)
	}

	span.AddEvent("Bulk approve finished", trace.WithAttributes(
		attribute.Int("succeeded", len(result.Succeeded)),
		attribute.Int("failed", len(result.Failed))))
	return result
}

// BulkReject rejects each item independently with a shared reason.
func (c *Cadence) BulkReject(ctx context.Context, accountID string, reviewIDs []string, reason string) *model.BulkResult {
	ctx, span := tracer.Start(ctx, "Bulk Rejecting Review Items")
	defer span.End()

	result := &model.BulkResult{Failed: make(map[string]error)}
	for _, reviewID := range reviewIDs {
		if err := c.RejectReview(ctx, accountID, reviewID, reason); err != nil {
			result.Failed[reviewID] = err
			continue
		}
		result.Succeeded = append(result.Succeeded, reviewID)
	}

	span.AddEvent("Bulk reject finished", trace.WithAttributes(
		attribute.Int("succeeded", len(result.Succeeded)),
		attribute.Int("failed", len(result.Failed))))
	return result
}

// deliverReviewedMessage sends an approved item's message. The decision
// is already terminal; a transport failure here is reported and the
// message is not retried through the review queue.
func (c *Cadence) deliverReviewedMessage(ctx context.Context, item *model.ReviewItem, subject, body string, generatedByAI bool) {
	entry := &model.QueueEntry{
		AccountID: item.AccountID,
		ContactID: item.ContactID,
		Channel:   item.Channel(),
		Subject:   subject,
		Body:      body,
		Recipient: item.Recipient(),
	}
	if err := c.SendMessage(ctx, entry, generatedByAI); err != nil {
		notification.NotifyError(fmt.Errorf("delivery failed for approved review %s: %w", item.ReviewID, err))
	}
}
