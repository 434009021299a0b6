package database

import (
	"context"

	"github.com/outboundlabs/cadence/internal/apierror"
	"github.com/outboundlabs/cadence/model"
)

// UpdateContactStatus moves a contact to a new status. The update is
// scoped by both contact and owning account so one tenant can never
// touch another's rows.
func (d Datasource) UpdateContactStatus(ctx context.Context, accountID, contactID, status string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE contacts
		SET status = $3
		WHERE contact_id = $1 AND account_id = $2
	`, contactID, accountID, status)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update contact status", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Contact not found", nil)
	}
	return nil
}

// GetEngagedContactIDs returns contacts that have already been reached
// out to. One of the three exclusion-cache source categories.
func (d Datasource) GetEngagedContactIDs(ctx context.Context, accountID string) ([]string, error) {
	return d.contactIDsByStatus(ctx, accountID, model.ContactStatusContacted)
}

// GetPendingConnectionContactIDs returns contacts with an outstanding
// connection request.
func (d Datasource) GetPendingConnectionContactIDs(ctx context.Context, accountID string) ([]string, error) {
	return d.contactIDsByStatus(ctx, accountID, model.ContactStatusConnectionPending)
}

func (d Datasource) contactIDsByStatus(ctx context.Context, accountID, status string) ([]string, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT contact_id
		FROM contacts
		WHERE account_id = $1 AND status = $2
	`, accountID, status)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to query contacts", err)
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
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating contacts", err)
	}
	return ids, nil
}
