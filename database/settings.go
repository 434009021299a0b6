package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/outboundlabs/cadence/internal/apierror"
	"github.com/outboundlabs/cadence/model"
)

// GetAccountSettings loads the per-account configuration row. A missing
// row is not an error: the engine treats absent settings as "use
// defaults", so an empty struct comes back instead.
func (d Datasource) GetAccountSettings(ctx context.Context, accountID string) (*model.AccountSettings, error) {
	settings := &model.AccountSettings{AccountID: accountID, Tier: model.TierBasic}

	var threshold, duration sql.NullInt64
	var tier sql.NullString
	var domainStartedAt sql.NullTime

	err := d.Conn.QueryRowContext(ctx, `
		SELECT confidence_threshold, warmup_duration_days, tier, domain_warmup_started_at
		FROM account_settings
		WHERE account_id = $1
	`, accountID).Scan(&threshold, &duration, &tier, &domainStartedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return settings, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve account settings", err)
	}

	if threshold.Valid {
		v := int(threshold.Int64)
		settings.ConfidenceThreshold = &v
	}
	if duration.Valid {
		v := int(duration.Int64)
		settings.WarmupDurationDays = &v
	}
	if tier.Valid && tier.String != "" {
		settings.Tier = model.AccountTier(tier.String)
	}
	if domainStartedAt.Valid {
		t := domainStartedAt.Time
		settings.DomainWarmupStartedAt = &t
	}
	return settings, nil
}

// StartDomainWarmup records the domain warm-up start timestamp once.
// Calling it again is a no-op that returns the already-stored start, so
// the ramp clock can never be reset by a repeat call.
func (d Datasource) StartDomainWarmup(ctx context.Context, accountID string, startedAt time.Time) (*time.Time, error) {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO account_settings (account_id, domain_warmup_started_at)
		VALUES ($1, $2)
		ON CONFLICT (account_id)
		DO UPDATE SET domain_warmup_started_at = COALESCE(account_settings.domain_warmup_started_at, EXCLUDED.domain_warmup_started_at)
	`, accountID, startedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to start domain warm-up", err)
	}

	var stored sql.NullTime
	err = d.Conn.QueryRowContext(ctx, `
		SELECT domain_warmup_started_at FROM account_settings WHERE account_id = $1
	`, accountID).Scan(&stored)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read domain warm-up start", err)
	}
	if !stored.Valid {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Domain warm-up start missing after insert", nil)
	}
	t := stored.Time
	return &t, nil
}
