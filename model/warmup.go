package model

import (
	"math"
	"time"
)

// Warm-up phases. Transitions only move forward (in_progress → ready →
// completed, or in_progress → skipped); a full restart overwrites the
// schedule instead of moving backward.
const (
	WarmupInProgress        = "in_progress"
	WarmupReadyForNextStage = "ready_for_next_stage"
	WarmupCompleted         = "completed"
	WarmupSkipped           = "skipped"
)

// WarmupSchedule is one row per (contact, account). Retained for audit,
// never deleted.
type WarmupSchedule struct {
	ScheduleID    string    `json:"schedule_id"`
	ContactID     string    `json:"contact_id"`
	AccountID     string    `json:"account_id"`
	StartedAt     time.Time `json:"started_at"`
	ReadyAt       time.Time `json:"ready_at"`
	Phase         string    `json:"phase"`
	LikesCount    int       `json:"likes_count"`
	CommentsCount int       `json:"comments_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// DaysRemaining derives the whole days left until ReadyAt, never
// negative.
func (s *WarmupSchedule) DaysRemaining(now time.Time) int {
	remaining := s.ReadyAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}

// EffectivePhase reflects clock truth: a schedule persisted as
// in_progress whose ready time has passed reports ready_for_next_stage
// even before the background runner advances the stored phase.
func (s *WarmupSchedule) EffectivePhase(now time.Time) string {
	if s.Phase == WarmupInProgress && s.DaysRemaining(now) == 0 {
		return WarmupReadyForNextStage
	}
	return s.Phase
}

// WarmupStatus is the derived view returned by status queries.
type WarmupStatus struct {
	ScheduleID    string `json:"schedule_id"`
	ContactID     string `json:"contact_id"`
	AccountID     string `json:"account_id"`
	Phase         string `json:"phase"`
	DaysRemaining int    `json:"days_remaining"`
	LikesCount    int    `json:"likes_count"`
	CommentsCount int    `json:"comments_count"`
}

// ActionAllowance is the fixed daily like/comment budget for warm-up
// engagement actions, keyed by account tier.
type ActionAllowance struct {
	Likes    int `json:"likes"`
	Comments int `json:"comments"`
}

// DomainWarmupStatus is derived per sending account. The current cap is
// always recomputed from elapsed days; it is never persisted, so it
// cannot drift.
type DomainWarmupStatus struct {
	AccountID     string     `json:"account_id"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	ElapsedDays   int        `json:"elapsed_days"`
	DaysRemaining int        `json:"days_remaining"`
	CurrentCap    int64      `json:"current_cap"`
	Warmed        bool       `json:"warmed"`
}
