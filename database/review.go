package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/outboundlabs/cadence/internal/apierror"
	"github.com/outboundlabs/cadence/model"
)

func (d Datasource) CreateReviewItem(ctx context.Context, item *model.ReviewItem) (*model.ReviewItem, error) {
	item.ReviewID = model.GenerateUUIDWithSuffix("rev")
	item.Status = model.ReviewPending
	item.CreatedAt = time.Now()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO review_items (review_id, account_id, contact_id, profile_url, email_address, proposed_subject, proposed_body, confidence, priority, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, item.ReviewID, item.AccountID, item.ContactID, item.ProfileURL, item.EmailAddress,
		item.ProposedSubject, item.ProposedBody, item.Confidence, item.Priority, item.Status, item.CreatedAt)
	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "Review item already exists", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create review item", err)
	}
	return item, nil
}

func (d Datasource) GetReviewItem(ctx context.Context, accountID, reviewID string) (*model.ReviewItem, error) {
	item := &model.ReviewItem{}
	var reason sql.NullString
	var decidedAt sql.NullTime

	err := d.Conn.QueryRowContext(ctx, `
		SELECT review_id, account_id, contact_id, COALESCE(profile_url, ''), COALESCE(email_address, ''),
			COALESCE(proposed_subject, ''), proposed_body, confidence, priority, status, rejection_reason, decided_at, created_at
		FROM review_items
		WHERE review_id = $1 AND account_id = $2
	`, reviewID, accountID).Scan(
		&item.ReviewID, &item.AccountID, &item.ContactID, &item.ProfileURL, &item.EmailAddress,
		&item.ProposedSubject, &item.ProposedBody, &item.Confidence, &item.Priority,
		&item.Status, &reason, &decidedAt, &item.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Review item not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve review item", err)
	}

	if reason.Valid {
		item.RejectionReason = reason.String
	}
	if decidedAt.Valid {
		t := decidedAt.Time
		item.DecidedAt = &t
	}
	return item, nil
}

// ListPendingReviewItems returns the human review queue for an account:
// priority items first, then oldest first within each tier.
func (d Datasource) ListPendingReviewItems(ctx context.Context, accountID string, limit int) ([]*model.ReviewItem, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT review_id, account_id, contact_id, COALESCE(profile_url, ''), COALESCE(email_address, ''),
			COALESCE(proposed_subject, ''), proposed_body, confidence, priority, status, created_at
		FROM review_items
		WHERE account_id = $1 AND status = $2
		ORDER BY priority DESC, created_at ASC
		LIMIT $3
	`, accountID, model.ReviewPending, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list pending review items", err)
	}
	defer rows.Close()

	items := []*model.ReviewItem{}
	for rows.Next() {
		item := &model.ReviewItem{}
		err = rows.Scan(
			&item.ReviewID, &item.AccountID, &item.ContactID, &item.ProfileURL, &item.EmailAddress,
			&item.ProposedSubject, &item.ProposedBody, &item.Confidence, &item.Priority,
			&item.Status, &item.CreatedAt,
		)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan review item", err)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating review items", err)
	}
	return items, nil
}

// ClaimReviewDecision performs the single terminal transition of a
// review item. The update only matches a pending row scoped to the
// owning account; zero rows affected means the item was already decided
// (Conflict) or never existed (NotFound). Concurrent decisions can
// therefore never both succeed.
func (d Datasource) ClaimReviewDecision(ctx context.Context, accountID, reviewID, status, reason string) error {
	if status != model.ReviewApproved && status != model.ReviewEdited && status != model.ReviewRejected {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "Invalid review decision status", nil)
	}

	var reasonArg sql.NullString
	if reason != "" {
		reasonArg = sql.NullString{String: reason, Valid: true}
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE review_items
		SET status = $3, rejection_reason = $4, decided_at = NOW()
		WHERE review_id = $1 AND account_id = $2 AND status = $5
	`, reviewID, accountID, status, reasonArg, model.ReviewPending)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record review decision", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	if rows == 0 {
		var current string
		err = d.Conn.QueryRowContext(ctx, `
			SELECT status FROM review_items WHERE review_id = $1 AND account_id = $2
		`, reviewID, accountID).Scan(&current)
		if err == sql.ErrNoRows {
			return apierror.NewAPIError(apierror.ErrNotFound, "Review item not found", nil)
		}
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read review item status", err)
		}
		return apierror.NewAPIError(apierror.ErrConflict, "Review item already decided: "+current, nil)
	}
	return nil
}
