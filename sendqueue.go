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
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/outboundlabs/cadence/internal/apierror"
	"github.com/outboundlabs/cadence/model"
)

// vipPriorityBoost is subtracted from the enqueue-time score of VIP
// entries. Scores are unix milliseconds; the boost is large enough that
// every VIP entry sorts ahead of every non-VIP entry while VIPs still
// order among themselves by enqueue time.
const vipPriorityBoost int64 = 1e12

// dequeueScript pops the lowest-scored members atomically so two
// dispatchers draining the same account never receive the same entry.
var dequeueScript = redis.NewScript(`
local entries = redis.call('ZRANGE', KEYS[1], 0, tonumber(ARGV[1]) - 1)
if #entries > 0 then
	redis.call('ZREM', KEYS[1], unpack(entries))
end
return entries
`)

func sendQueueKey(accountID string) string {
	return fmt.Sprintf("cadence:sendqueue:%s", accountID)
}

// queueScore derives an entry's sort position from its own fields, so a
// re-enqueued entry always lands back at its original priority.
func queueScore(entry *model.QueueEntry) float64 {
	score := entry.EnqueuedAt.UnixMilli()
	if entry.VIP {
		score -= vipPriorityBoost
	}
	return float64(score)
}

// EnqueueSend buffers a fully admitted candidate in the account's
// priority send queue and returns its zero-based dispatch position.
// VIP entries jump ahead of the non-VIP backlog; within each priority
// class ordering is strictly FIFO.
func (c *Cadence) EnqueueSend(ctx context.Context, candidate *model.Candidate) (*model.QueueEntry, int64, error) {
	ctx, span := tracer.Start(ctx, "Enqueuing Send")
	defer span.End()

	entry := &model.QueueEntry{
		EntryID:    model.GenerateUUIDWithSuffix("ent"),
		AccountID:  candidate.AccountID,
		ContactID:  candidate.ContactID,
		Channel:    candidate.Channel,
		Subject:    candidate.Subject,
		Body:       candidate.Body,
		Recipient:  candidate.Recipient(),
		VIP:        candidate.VIP,
		EnqueuedAt: time.Now(),
	}
	if err := entry.Validate(); err != nil {
		return nil, 0, apierror.NewAPIError(apierror.ErrInvalidInput, "invalid queue entry", err)
	}

	if err := c.restoreEntry(ctx, entry); err != nil {
		return nil, 0, err
	}

	// entry marshaling is deterministic, so this re-marshal names the
	// exact member restoreEntry wrote
	member, err := json.Marshal(entry)
	if err != nil {
		return nil, 0, apierror.NewAPIError(apierror.ErrInternalServer, "failed to serialize queue entry", err)
	}
	position, err := c.redis.ZRank(ctx, sendQueueKey(entry.AccountID), string(member)).Result()
	if err == redis.Nil {
		// a concurrent dispatcher already drained the entry
		position = 0
	} else if err != nil {
		return nil, 0, apierror.NewAPIError(apierror.ErrUnavailable, "send queue unavailable", err)
	}

	span.AddEvent("Entry enqueued", trace.WithAttributes(
		attribute.String("entry.id", entry.EntryID),
		attribute.Bool("entry.vip", entry.VIP),
		attribute.Int64("entry.position", position)))
	return entry, position, nil
}

// restoreEntry writes an entry into the queue at the score derived from
// its own fields. Shared by first-time enqueue and dispatch push-back.
func (c *Cadence) restoreEntry(ctx context.Context, entry *model.QueueEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to serialize queue entry", err)
	}

	err = c.redis.ZAdd(ctx, sendQueueKey(entry.AccountID), redis.Z{
		Score:  queueScore(entry),
		Member: payload,
	}).Err()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrUnavailable, "send queue unavailable", err)
	}
	return nil
}

// DequeueSends atomically removes and returns up to limit entries in
// priority order. Members that fail to deserialize are dropped with a
// warning; one corrupt entry never wedges the queue.
func (c *Cadence) DequeueSends(ctx context.Context, accountID string, limit int64) ([]*model.QueueEntry, error) {
	ctx, span := tracer.Start(ctx, "Dequeuing Sends")
	defer span.End()

	if limit <= 0 {
		limit = 1
	}

	raw, err := dequeueScript.Run(ctx, c.redis, []string{sendQueueKey(accountID)}, limit).StringSlice()
	if err != nil && err != redis.Nil {
		return nil, apierror.NewAPIError(apierror.ErrUnavailable, "send queue unavailable", err)
	}

	entries := make([]*model.QueueEntry, 0, len(raw))
	for _, member := range raw {
		var entry model.QueueEntry
		if err := json.Unmarshal([]byte(member), &entry); err != nil {
			logrus.Warnf("dropping malformed send queue entry for account %s: %v", accountID, err)
			continue
		}
		entries = append(entries, &entry)
	}

	span.AddEvent("Entries dequeued", trace.WithAttributes(
		attribute.String("account.id", accountID),
		attribute.Int("dequeue.count", len(entries))))
	return entries, nil
}

// QueueSize returns the number of entries buffered for the account.
func (c *Cadence) QueueSize(ctx context.Context, accountID string) (int64, error) {
	size, err := c.redis.ZCard(ctx, sendQueueKey(accountID)).Result()
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrUnavailable, "send queue unavailable", err)
	}
	return size, nil
}

// QueuePosition returns the zero-based dispatch position of the first
// entry for the contact, or found=false when the contact has nothing
// queued. Per-account queues are small, so a linear scan is fine.
func (c *Cadence) QueuePosition(ctx context.Context, accountID, contactID string) (int64, bool, error) {
	members, err := c.redis.ZRange(ctx, sendQueueKey(accountID), 0, -1).Result()
	if err != nil {
		return 0, false, apierror.NewAPIError(apierror.ErrUnavailable, "send queue unavailable", err)
	}

	var position int64
	for _, member := range members {
		var entry model.QueueEntry
		if err := json.Unmarshal([]byte(member), &entry); err != nil {
			// malformed members never dispatch, so they hold no position
			continue
		}
		if entry.ContactID == contactID {
			return position, true, nil
		}
		position++
	}
	return 0, false, nil
}

// RemoveFromQueue drops every buffered entry for the contact, e.g.
// after the prospect replies and outreach must stop.
func (c *Cadence) RemoveFromQueue(ctx context.Context, accountID, contactID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "Removing Contact From Send Queue")
	defer span.End()

	members, err := c.redis.ZRange(ctx, sendQueueKey(accountID), 0, -1).Result()
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrUnavailable, "send queue unavailable", err)
	}

	var toRemove []interface{}
	for _, member := range members {
		var entry model.QueueEntry
		if err := json.Unmarshal([]byte(member), &entry); err != nil {
			continue
		}
		if entry.ContactID == contactID {
			toRemove = append(toRemove, member)
		}
	}
	if len(toRemove) == 0 {
		return 0, nil
	}

	removed, err := c.redis.ZRem(ctx, sendQueueKey(accountID), toRemove...).Result()
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrUnavailable, "send queue unavailable", err)
	}

	span.AddEvent("Contact entries removed", trace.WithAttributes(
		attribute.String("contact.id", contactID),
		attribute.Int64("removed.count", removed)))
	return removed, nil
}
