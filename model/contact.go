package model

import "time"

// Contact statuses the engine moves prospects through. The wider CRM
// owns the full lifecycle; the engine only ever writes the subset below.
const (
	ContactStatusPendingValidation = "pending_validation"
	ContactStatusReadyForOutreach  = "ready_for_outreach"
	ContactStatusContacted         = "contacted"
	ContactStatusNurture           = "nurture"
	ContactStatusConnectionPending = "connection_pending"
)

type Contact struct {
	ContactID    string    `json:"contact_id"`
	AccountID    string    `json:"account_id"`
	FullName     string    `json:"full_name"`
	ProfileURL   string    `json:"profile_url,omitempty"`
	EmailAddress string    `json:"email_address,omitempty"`
	Status       string    `json:"status"`
	VIP          bool      `json:"vip"`
	CreatedAt    time.Time `json:"created_at"`
}

// AccountTier maps to the daily engagement allowance during contact
// warm-up. Pure data, not user-configurable.
type AccountTier string

const (
	TierBasic    AccountTier = "basic"
	TierElevated AccountTier = "elevated"
)

// AccountSettings holds the per-account knobs the engine reads. Nil
// pointers mean "not configured" and fall back to engine defaults at
// read time.
type AccountSettings struct {
	AccountID             string      `json:"account_id"`
	ConfidenceThreshold   *int        `json:"confidence_threshold,omitempty"`
	WarmupDurationDays    *int        `json:"warmup_duration_days,omitempty"`
	Tier                  AccountTier `json:"tier"`
	DomainWarmupStartedAt *time.Time  `json:"domain_warmup_started_at,omitempty"`
}
