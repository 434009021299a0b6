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

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/outboundlabs/cadence/config"
	"github.com/outboundlabs/cadence/database"
	"github.com/outboundlabs/cadence/internal/apierror"
	"github.com/outboundlabs/cadence/internal/cache"
	"github.com/outboundlabs/cadence/internal/notification"
	redis_db "github.com/outboundlabs/cadence/internal/redis-db"
	"github.com/outboundlabs/cadence/model"
)

var tracer = otel.Tracer("cadence.engine")

// Cadence is the outbound send governance engine. It owns the daily
// send limiter, the exclusion cache, the warm-up state machine, the
// priority send queue, the confidence gate and the validation queue.
type Cadence struct {
	queue      *Queue
	redis      redis.UniversalClient
	cache      cache.Cache
	datasource database.IDataSource
	transports *TransportRegistry
}

// NewCadence initializes the engine with the provided database
// datasource, a shared Redis connection and the configured delivery
// transports.
func NewCadence(db database.IDataSource) (*Cadence, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)}, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}

	newQueue := NewQueue(configuration)
	newCadence := &Cadence{
		datasource: db,
		queue:      newQueue,
		redis:      redisClient.Client(),
		cache:      cache.NewCacheWithClient(redisClient.Client()),
		transports: NewTransportRegistry(configuration),
	}
	return newCadence, nil
}

// AdmitCandidate runs a generated message through the governance gates
// in order: exclusion, contact warm-up, domain warm-up, confidence. A
// candidate that clears every gate lands in the account's priority send
// queue; one that fails the confidence gate lands in the review queue
// instead.
// The daily send limiter is deliberately NOT consulted here. Admission
// to the buffer is not a send; the limiter only counts at dispatch
// time, after queue residence.
func (c *Cadence) AdmitCandidate(ctx context.Context, candidate *model.Candidate) (*model.QueueEntry, *model.ReviewItem, error) {
	ctx, span := tracer.Start(ctx, "Admitting Candidate")
	defer span.End()

	if err := candidate.Validate(); err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrInvalidInput, "invalid candidate", err)
	}

	excluded, err := c.IsExcluded(ctx, candidate.AccountID, candidate.ContactID)
	if err != nil {
		return nil, nil, err
	}
	if excluded {
		span.AddEvent("Candidate excluded", trace.WithAttributes(
			attribute.String("contact.id", candidate.ContactID)))
		return nil, nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("contact %s is excluded from outreach", candidate.ContactID), nil)
	}

	if err := c.ValidateContactWarmup(ctx, candidate.AccountID, candidate.ContactID); err != nil {
		return nil, nil, err
	}
	if err := c.ValidateDomainWarmup(ctx, candidate.AccountID); err != nil {
		return nil, nil, err
	}

	needsReview, err := c.ShouldQueueForReview(ctx, candidate.AccountID, candidate.Confidence)
	if err != nil {
		return nil, nil, err
	}
	if needsReview {
		item, err := c.QueueForReview(ctx, candidate)
		if err != nil {
			return nil, nil, err
		}
		span.AddEvent("Candidate routed to review queue", trace.WithAttributes(
			attribute.String("review.id", item.ReviewID),
			attribute.Int("candidate.confidence", candidate.Confidence)))
		return nil, item, nil
	}

	entry, position, err := c.EnqueueSend(ctx, candidate)
	if err != nil {
		return nil, nil, err
	}
	span.AddEvent("Candidate admitted to send queue", trace.WithAttributes(
		attribute.String("entry.id", entry.EntryID),
		attribute.Int64("queue.position", position)))
	return entry, nil, nil
}

// DispatchBatch drains up to limit entries from the account's priority
// send queue and hands each admitted one to the dispatch workers. The
// limiter is consulted per entry, immediately before hand-off; queue
// residence time never reserves capacity. When the effective cap is
// exhausted the remaining dequeued entries are pushed back with their
// original priority and a typed error reports why dispatch stopped.
func (c *Cadence) DispatchBatch(ctx context.Context, accountID, identity string, limit int64) (int, error) {
	ctx, span := tracer.Start(ctx, "Dispatching Send Batch")
	defer span.End()

	domainStatus, err := c.GetDomainWarmupStatus(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if domainStatus.StartedAt == nil {
		return 0, apierror.NewNotEligibleError("sending domain warm-up has not started", domainStatus.DaysRemaining)
	}
	effectiveCap := domainStatus.CurrentCap

	entries, err := c.DequeueSends(ctx, accountID, limit)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for i, entry := range entries {
		count, err := c.IncrementSendCount(ctx, accountID, identity)
		if err != nil {
			c.requeueEntries(ctx, entries[i:])
			return dispatched, err
		}
		if count > effectiveCap {
			c.requeueEntries(ctx, entries[i:])
			span.AddEvent("Dispatch stopped at cap", trace.WithAttributes(
				attribute.Int64("send.count", count),
				attribute.Int64("send.cap", effectiveCap)))
			if effectiveCap < DailySendCap {
				return dispatched, apierror.NewNotEligibleError("sending domain still warming up", domainStatus.DaysRemaining)
			}
			return dispatched, apierror.NewCapacityError(count, effectiveCap)
		}

		if err := c.queue.EnqueueDispatch(ctx, entry); err != nil {
			c.requeueEntries(ctx, entries[i:])
			return dispatched, apierror.NewAPIError(apierror.ErrUnavailable, "dispatch queue unavailable", err)
		}
		dispatched++
	}

	span.AddEvent("Batch dispatched", trace.WithAttributes(
		attribute.Int("dispatch.count", dispatched)))
	return dispatched, nil
}

// requeueEntries pushes undispatched entries back into the priority
// queue with their original scores. Failures are reported, not
// returned; the caller already has a primary error to surface.
func (c *Cadence) requeueEntries(ctx context.Context, entries []*model.QueueEntry) {
	for _, entry := range entries {
		if err := c.restoreEntry(ctx, entry); err != nil {
			notification.NotifyError(fmt.Errorf("failed to requeue entry %s: %w", entry.EntryID, err))
		}
	}
}

// SendMessage delivers an outbound message through the channel's
// transport and appends the conversation-log record. Used by the
// dispatch workers and the review approval path.
func (c *Cadence) SendMessage(ctx context.Context, entry *model.QueueEntry, generatedByAI bool) error {
	ctx, span := tracer.Start(ctx, "Sending Outbound Message")
	defer span.End()

	transport, err := c.transports.ForChannel(entry.Channel)
	if err != nil {
		return err
	}

	result, err := transport.Send(ctx, &DeliveryRequest{
		AccountID: entry.AccountID,
		ContactID: entry.ContactID,
		Channel:   entry.Channel,
		Subject:   entry.Subject,
		Body:      entry.Body,
		Recipient: entry.Recipient,
	})
	if err != nil {
		return apierror.NewAPIError(apierror.ErrUnavailable, fmt.Sprintf("%s delivery failed", entry.Channel), err)
	}

	record := &model.ConversationRecord{
		AccountID:         entry.AccountID,
		ContactID:         entry.ContactID,
		Channel:           entry.Channel,
		Subject:           entry.Subject,
		Body:              entry.Body,
		ProviderMessageID: result.ProviderMessageID,
		DeliveryStatus:    result.Status,
		GeneratedByAI:     generatedByAI,
		CreatedAt:         time.Now(),
	}
	if err := c.datasource.RecordConversation(ctx, record); err != nil {
		notification.NotifyError(fmt.Errorf("failed to record conversation for contact %s: %w", entry.ContactID, err))
	}

	if err := c.datasource.UpdateContactStatus(ctx, entry.AccountID, entry.ContactID, model.ContactStatusContacted); err != nil {
		notification.NotifyError(fmt.Errorf("failed to mark contact %s contacted: %w", entry.ContactID, err))
	}

	span.AddEvent("Message delivered", trace.WithAttributes(
		attribute.String("contact.id", entry.ContactID),
		attribute.String("channel", string(entry.Channel))))
	return nil
}
