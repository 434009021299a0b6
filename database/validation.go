package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/outboundlabs/cadence/internal/apierror"
	"github.com/outboundlabs/cadence/model"
)

// AddToValidationQueue inserts a pending validation entry. A duplicate
// (contact, account) insert is resolved transparently: the existing row
// comes back instead of an error, so repeat calls are safe.
func (d Datasource) AddToValidationQueue(ctx context.Context, entry *model.ValidationEntry) (*model.ValidationEntry, error) {
	entry.QueueID = model.GenerateUUIDWithSuffix("vld")
	entry.Status = model.ValidationPending
	entry.CreatedAt = time.Now()

	result, err := d.Conn.ExecContext(ctx, `
		INSERT INTO validation_queue (queue_id, contact_id, account_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (contact_id, account_id) DO NOTHING
	`, entry.QueueID, entry.ContactID, entry.AccountID, entry.Status, entry.CreatedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to add to validation queue", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	if rows > 0 {
		return entry, nil
	}

	// Conflict path: hand back the existing entry.
	existing := &model.ValidationEntry{}
	err = d.Conn.QueryRowContext(ctx, `
		SELECT queue_id, contact_id, account_id, status, created_at
		FROM validation_queue
		WHERE contact_id = $1 AND account_id = $2
	`, entry.ContactID, entry.AccountID).Scan(
		&existing.QueueID, &existing.ContactID, &existing.AccountID, &existing.Status, &existing.CreatedAt,
	)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to fetch existing validation entry", err)
	}
	return existing, nil
}

// UpdateValidationStatus records a human decision on a pending entry
// and returns the updated row.
func (d Datasource) UpdateValidationStatus(ctx context.Context, accountID, queueID, status string) (*model.ValidationEntry, error) {
	if status != model.ValidationApproved && status != model.ValidationRejected {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Invalid validation status", nil)
	}

	entry := &model.ValidationEntry{}
	err := d.Conn.QueryRowContext(ctx, `
		UPDATE validation_queue
		SET status = $3
		WHERE queue_id = $1 AND account_id = $2 AND status = $4
		RETURNING queue_id, contact_id, account_id, status, created_at
	`, queueID, accountID, status, model.ValidationPending).Scan(
		&entry.QueueID, &entry.ContactID, &entry.AccountID, &entry.Status, &entry.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Pending validation entry not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update validation entry", err)
	}
	return entry, nil
}

func (d Datasource) GetPendingValidationQueue(ctx context.Context, accountID string, limit int) ([]*model.ValidationEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT queue_id, contact_id, account_id, status, created_at
		FROM validation_queue
		WHERE account_id = $1 AND status = $2
		ORDER BY created_at ASC
		LIMIT $3
	`, accountID, model.ValidationPending, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list validation queue", err)
	}
	defer rows.Close()

	entries := []*model.ValidationEntry{}
	for rows.Next() {
		entry := &model.ValidationEntry{}
		err = rows.Scan(&entry.QueueID, &entry.ContactID, &entry.AccountID, &entry.Status, &entry.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan validation entry", err)
		}
		entries = append(entries, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating validation queue", err)
	}
	return entries, nil
}
