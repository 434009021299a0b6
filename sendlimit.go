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
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/outboundlabs/cadence/internal/apierror"
)

// DailySendCap is the hard per-identity daily outbound message limit.
// It is a deliverability guardrail, not a plan feature, so it is a
// constant rather than an account setting.
const DailySendCap int64 = 20

const sendCounterTTL = 24 * time.Hour

// sendLimitKey scopes a counter to one sending identity on one UTC
// calendar day. A new day means a new key, so counters reset at
// midnight UTC without any cleanup job.
func sendLimitKey(accountID, identity string) string {
	day := time.Now().UTC().Format("2006-01-02")
	return fmt.Sprintf("cadence:sendlimit:%s:%s:%s", accountID, identity, day)
}

// IncrementSendCount atomically bumps today's counter for the identity
// and returns the new count. The TTL is re-armed on every increment.
// The counter records every attempt, admitted or not; admission is the
// caller comparing the returned count against the cap.
func (c *Cadence) IncrementSendCount(ctx context.Context, accountID, identity string) (int64, error) {
	ctx, span := tracer.Start(ctx, "Incrementing Send Count")
	defer span.End()

	key := sendLimitKey(accountID, identity)

	var incr *redis.IntCmd
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, sendCounterTTL)
		return nil
	})
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrUnavailable, "send counter unavailable", err)
	}

	count := incr.Val()
	span.AddEvent("Send count incremented", trace.WithAttributes(
		attribute.String("identity", identity),
		attribute.Int64("send.count", count)))
	return count, nil
}

// GetSendCount returns today's counter for the identity without
// modifying it. A missing key reads as zero.
func (c *Cadence) GetSendCount(ctx context.Context, accountID, identity string) (int64, error) {
	count, err := c.redis.Get(ctx, sendLimitKey(accountID, identity)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrUnavailable, "send counter unavailable", err)
	}
	return count, nil
}

// IsLimitReached reports whether the identity has exhausted today's
// cap.
func (c *Cadence) IsLimitReached(ctx context.Context, accountID, identity string) (bool, error) {
	count, err := c.GetSendCount(ctx, accountID, identity)
	if err != nil {
		return false, err
	}
	return count >= DailySendCap, nil
}

// GetRemainingSends returns how many sends the identity has left today,
// never negative.
func (c *Cadence) GetRemainingSends(ctx context.Context, accountID, identity string) (int64, error) {
	count, err := c.GetSendCount(ctx, accountID, identity)
	if err != nil {
		return 0, err
	}
	remaining := DailySendCap - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// ValidateSendLimit returns a typed capacity error when the identity
// has no sends left today. Callers must invoke this immediately before
// dispatch, never at enqueue time.
func (c *Cadence) ValidateSendLimit(ctx context.Context, accountID, identity string) error {
	count, err := c.GetSendCount(ctx, accountID, identity)
	if err != nil {
		return err
	}
	if count >= DailySendCap {
		return apierror.NewCapacityError(count, DailySendCap)
	}
	return nil
}
