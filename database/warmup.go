package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/outboundlabs/cadence/internal/apierror"
	"github.com/outboundlabs/cadence/model"
)

// UpsertWarmupSchedule creates a schedule or, when one already exists
// for the (contact, account) pair, restarts it: the clock and the
// action counters reset, the phase returns to in_progress. Start is
// deliberately idempotent.
func (d Datasource) UpsertWarmupSchedule(ctx context.Context, schedule *model.WarmupSchedule) (*model.WarmupSchedule, error) {
	schedule.ScheduleID = model.GenerateUUIDWithSuffix("wmp")
	schedule.CreatedAt = time.Now()

	err := d.Conn.QueryRowContext(ctx, `
		INSERT INTO warmup_schedules (schedule_id, contact_id, account_id, started_at, ready_at, phase, likes_count, comments_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7)
		ON CONFLICT (contact_id, account_id)
		DO UPDATE SET started_at = EXCLUDED.started_at,
			ready_at = EXCLUDED.ready_at,
			phase = EXCLUDED.phase,
			likes_count = 0,
			comments_count = 0
		RETURNING schedule_id, created_at
	`, schedule.ScheduleID, schedule.ContactID, schedule.AccountID,
		schedule.StartedAt, schedule.ReadyAt, schedule.Phase, schedule.CreatedAt,
	).Scan(&schedule.ScheduleID, &schedule.CreatedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to start warm-up schedule", err)
	}
	return schedule, nil
}

func (d Datasource) GetWarmupSchedule(ctx context.Context, accountID, contactID string) (*model.WarmupSchedule, error) {
	schedule := &model.WarmupSchedule{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT schedule_id, contact_id, account_id, started_at, ready_at, phase, likes_count, comments_count, created_at
		FROM warmup_schedules
		WHERE contact_id = $1 AND account_id = $2
	`, contactID, accountID).Scan(
		&schedule.ScheduleID, &schedule.ContactID, &schedule.AccountID,
		&schedule.StartedAt, &schedule.ReadyAt, &schedule.Phase,
		&schedule.LikesCount, &schedule.CommentsCount, &schedule.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Warm-up schedule not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve warm-up schedule", err)
	}
	return schedule, nil
}

// AdvanceWarmupPhase moves a schedule forward. The update is
// conditional on the current phase, so a stale or repeated call cannot
// move the machine backward or skip a stage.
func (d Datasource) AdvanceWarmupPhase(ctx context.Context, accountID, scheduleID, fromPhase, toPhase string) error {
	if !validWarmupTransition(fromPhase, toPhase) {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "Invalid warm-up phase transition", nil)
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE warmup_schedules
		SET phase = $4
		WHERE schedule_id = $1 AND account_id = $2 AND phase = $3
	`, scheduleID, accountID, fromPhase, toPhase)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to advance warm-up phase", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, "Warm-up schedule not in expected phase", nil)
	}
	return nil
}

func validWarmupTransition(from, to string) bool {
	switch from {
	case model.WarmupInProgress:
		return to == model.WarmupReadyForNextStage || to == model.WarmupSkipped
	case model.WarmupReadyForNextStage:
		return to == model.WarmupCompleted
	default:
		return false
	}
}

// IncrementWarmupActions bumps the like/comment counters recorded by
// the periodic warm-up action runner.
func (d Datasource) IncrementWarmupActions(ctx context.Context, accountID, scheduleID string, likes, comments int) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE warmup_schedules
		SET likes_count = likes_count + $3, comments_count = comments_count + $4
		WHERE schedule_id = $1 AND account_id = $2
	`, scheduleID, accountID, likes, comments)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record warm-up actions", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Warm-up schedule not found", nil)
	}
	return nil
}

// GetWarmingContactIDs returns contacts currently mid-warm-up. One of
// the three exclusion-cache source categories.
func (d Datasource) GetWarmingContactIDs(ctx context.Context, accountID string) ([]string, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT contact_id
		FROM warmup_schedules
		WHERE account_id = $1 AND phase = $2
	`, accountID, model.WarmupInProgress)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to query warming contacts", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan contact id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating warming contacts", err)
	}
	return ids, nil
}
