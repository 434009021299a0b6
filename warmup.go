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
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/outboundlabs/cadence/internal/apierror"
	"github.com/outboundlabs/cadence/model"
)

const (
	// Contact warm-up duration bounds. Account settings outside the
	// range are clamped at read time, never rejected.
	WarmupDurationDefault = 7
	WarmupDurationMin     = 1
	WarmupDurationMax     = 30

	// Domain warm-up: a fresh sending domain stays on the reduced cap
	// until the minimum elapsed period has passed.
	DomainWarmupMinDays          = 14
	DomainWarmupReducedCap int64 = 5
)

// actionAllowances is the fixed daily like/comment budget per account
// tier during contact warm-up.
var actionAllowances = map[model.AccountTier]model.ActionAllowance{
	model.TierBasic:    {Likes: 5, Comments: 2},
	model.TierElevated: {Likes: 10, Comments: 5},
}

// ActionAllowanceForTier returns the engagement budget for the tier.
// Unknown tiers get the basic allowance.
func ActionAllowanceForTier(tier model.AccountTier) model.ActionAllowance {
	if allowance, ok := actionAllowances[tier]; ok {
		return allowance
	}
	return actionAllowances[model.TierBasic]
}

// warmupDuration resolves the account's warm-up duration, clamped into
// the allowed range.
func warmupDuration(settings *model.AccountSettings) int {
	days := WarmupDurationDefault
	if settings.WarmupDurationDays != nil {
		days = *settings.WarmupDurationDays
	}
	if days < WarmupDurationMin {
		days = WarmupDurationMin
	}
	if days > WarmupDurationMax {
		days = WarmupDurationMax
	}
	return days
}

// StartWarmup begins (or restarts) the warm-up schedule for a contact.
// Restarting overwrites the existing schedule: counters reset, the
// ready time is recomputed from now.
func (c *Cadence) StartWarmup(ctx context.Context, accountID, contactID string) (*model.WarmupSchedule, error) {
	ctx, span := tracer.Start(ctx, "Starting Contact Warmup")
	defer span.End()

	settings, err := c.datasource.GetAccountSettings(ctx, accountID)
	if err != nil {
		return nil, err
	}
	days := warmupDuration(settings)

	now := time.Now()
	schedule := &model.WarmupSchedule{
		ContactID: contactID,
		AccountID: accountID,
		StartedAt: now,
		ReadyAt:   now.Add(time.Duration(days) * 24 * time.Hour),
		Phase:     model.WarmupInProgress,
	}
	created, err := c.datasource.UpsertWarmupSchedule(ctx, schedule)
	if err != nil {
		return nil, err
	}

	span.AddEvent("Warmup started", trace.WithAttributes(
		attribute.String("contact.id", contactID),
		attribute.Int("warmup.days", days)))
	return created, nil
}

// GetWarmupStatus returns the derived warm-up view for a contact. The
// phase reflects the clock: a schedule persisted as in_progress whose
// ready time has passed reports ready_for_next_stage.
func (c *Cadence) GetWarmupStatus(ctx context.Context, accountID, contactID string) (*model.WarmupStatus, error) {
	schedule, err := c.datasource.GetWarmupSchedule(ctx, accountID, contactID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &model.WarmupStatus{
		ScheduleID:    schedule.ScheduleID,
		ContactID:     schedule.ContactID,
		AccountID:     schedule.AccountID,
		Phase:         schedule.EffectivePhase(now),
		DaysRemaining: schedule.DaysRemaining(now),
		LikesCount:    schedule.LikesCount,
		CommentsCount: schedule.CommentsCount,
	}, nil
}

// CompleteWarmupStage advances a ready schedule to completed. The
// stored phase must be ready_for_next_stage; the background runner is
// expected to have reconciled the clock first.
func (c *Cadence) CompleteWarmupStage(ctx context.Context, accountID, scheduleID string) error {
	return c.datasource.AdvanceWarmupPhase(ctx, accountID, scheduleID, model.WarmupReadyForNextStage, model.WarmupCompleted)
}

// SkipWarmup abandons an in-progress schedule. The contact becomes
// immediately eligible for outreach.
func (c *Cadence) SkipWarmup(ctx context.Context, accountID, scheduleID string) error {
	return c.datasource.AdvanceWarmupPhase(ctx, accountID, scheduleID, model.WarmupInProgress, model.WarmupSkipped)
}

// AdvanceReadySchedules moves schedules whose ready time has passed
// from in_progress to ready_for_next_stage. The derived phase is
// already authoritative for reads; this reconciles the stored phase so
// listings and the exclusion rebuild see the same truth. Safe to run
// repeatedly: a schedule another runner already advanced just conflicts
// and is skipped.
func (c *Cadence) AdvanceReadySchedules(ctx context.Context, accountID string) (int, error) {
	ctx, span := tracer.Start(ctx, "Advancing Ready Warmup Schedules")
	defer span.End()

	contactIDs, err := c.datasource.GetWarmingContactIDs(ctx, accountID)
	if err != nil {
		return 0, err
	}

	advanced := 0
	now := time.Now()
	for _, contactID := range contactIDs {
		schedule, err := c.datasource.GetWarmupSchedule(ctx, accountID, contactID)
		if err != nil {
			continue
		}
		if schedule.EffectivePhase(now) != model.WarmupReadyForNextStage {
			continue
		}
		err = c.datasource.AdvanceWarmupPhase(ctx, accountID, schedule.ScheduleID, model.WarmupInProgress, model.WarmupReadyForNextStage)
		if err != nil {
			continue
		}
		advanced++
	}

	span.AddEvent("Schedules advanced", trace.WithAttributes(
		attribute.Int("advanced.count", advanced)))
	return advanced, nil
}

// RecordWarmupActions books likes/comments performed for a warming
// contact against the account tier's daily allowance.
func (c *Cadence) RecordWarmupActions(ctx context.Context, accountID, contactID string, likes, comments int) error {
	ctx, span := tracer.Start(ctx, "Recording Warmup Actions")
	defer span.End()

	if likes < 0 || comments < 0 {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "action counts cannot be negative", nil)
	}

	schedule, err := c.datasource.GetWarmupSchedule(ctx, accountID, contactID)
	if err != nil {
		return err
	}

	settings, err := c.datasource.GetAccountSettings(ctx, accountID)
	if err != nil {
		return err
	}
	allowance := ActionAllowanceForTier(settings.Tier)
	if schedule.LikesCount+likes > allowance.Likes {
		return apierror.NewAPIError(apierror.ErrCapacityExceeded,
			fmt.Sprintf("daily like allowance reached (%d/%d)", schedule.LikesCount, allowance.Likes), nil)
	}
	if schedule.CommentsCount+comments > allowance.Comments {
		return apierror.NewAPIError(apierror.ErrCapacityExceeded,
			fmt.Sprintf("daily comment allowance reached (%d/%d)", schedule.CommentsCount, allowance.Comments), nil)
	}

	if err := c.datasource.IncrementWarmupActions(ctx, accountID, schedule.ScheduleID, likes, comments); err != nil {
		return err
	}

	span.AddEvent("Actions recorded", trace.WithAttributes(
		attribute.Int("likes", likes),
		attribute.Int("comments", comments)))
	return nil
}

// ValidateContactWarmup returns a typed eligibility error when the
// contact is not yet warm enough to message. A contact with no schedule
// has never entered warm-up and is rejected with the full default
// duration; a skipped schedule counts as eligible because the gate was
// explicitly waived.
func (c *Cadence) ValidateContactWarmup(ctx context.Context, accountID, contactID string) error {
	schedule, err := c.datasource.GetWarmupSchedule(ctx, accountID, contactID)
	if err != nil {
		if apiErr, ok := err.(apierror.APIError); ok && apiErr.Code == apierror.ErrNotFound {
			settings, serr := c.datasource.GetAccountSettings(ctx, accountID)
			if serr != nil {
				return serr
			}
			return apierror.NewNotEligibleError(fmt.Sprintf("contact %s has not started warm-up", contactID), warmupDuration(settings))
		}
		return err
	}

	now := time.Now()
	switch schedule.EffectivePhase(now) {
	case model.WarmupInProgress:
		return apierror.NewNotEligibleError(fmt.Sprintf("contact %s still warming up", contactID), schedule.DaysRemaining(now))
	default:
		return nil
	}
}

// StartDomainWarmup records the start of the sending domain's warm-up
// period for an account. Idempotent: calling it again never moves the
// original start time.
func (c *Cadence) StartDomainWarmup(ctx context.Context, accountID string) (*model.DomainWarmupStatus, error) {
	ctx, span := tracer.Start(ctx, "Starting Domain Warmup")
	defer span.End()

	startedAt, err := c.datasource.StartDomainWarmup(ctx, accountID, time.Now())
	if err != nil {
		return nil, err
	}

	span.AddEvent("Domain warmup recorded", trace.WithAttributes(
		attribute.String("account.id", accountID)))
	return domainStatusFrom(accountID, startedAt), nil
}

// GetDomainWarmupStatus derives the account's domain warm-up view from
// the stored start time. The current cap is recomputed on every read,
// never persisted.
func (c *Cadence) GetDomainWarmupStatus(ctx context.Context, accountID string) (*model.DomainWarmupStatus, error) {
	settings, err := c.datasource.GetAccountSettings(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return domainStatusFrom(accountID, settings.DomainWarmupStartedAt), nil
}

// ValidateDomainWarmup returns a typed eligibility error when the
// account has never started domain warm-up. An account mid warm-up is
// eligible at the reduced cap; the limiter enforces the volume.
func (c *Cadence) ValidateDomainWarmup(ctx context.Context, accountID string) error {
	status, err := c.GetDomainWarmupStatus(ctx, accountID)
	if err != nil {
		return err
	}
	if status.StartedAt == nil {
		return apierror.NewNotEligibleError("sending domain warm-up has not started", status.DaysRemaining)
	}
	return nil
}

func domainStatusFrom(accountID string, startedAt *time.Time) *model.DomainWarmupStatus {
	status := &model.DomainWarmupStatus{
		AccountID:     accountID,
		StartedAt:     startedAt,
		DaysRemaining: DomainWarmupMinDays,
		CurrentCap:    DomainWarmupReducedCap,
	}
	if startedAt == nil {
		return status
	}

	elapsed := int(math.Floor(time.Since(*startedAt).Hours() / 24))
	if elapsed < 0 {
		elapsed = 0
	}
	status.ElapsedDays = elapsed
	status.DaysRemaining = DomainWarmupMinDays - elapsed
	if status.DaysRemaining < 0 {
		status.DaysRemaining = 0
	}
	if elapsed >= DomainWarmupMinDays {
		status.Warmed = true
		status.CurrentCap = DailySendCap
	}
	return status
}
