package database

import (
	"context"
	"time"

	"github.com/outboundlabs/cadence/internal/apierror"
	"github.com/outboundlabs/cadence/model"
)

// RecordConversation appends an outbound message to the conversation
// log.
func (d Datasource) RecordConversation(ctx context.Context, record *model.ConversationRecord) error {
	record.MessageID = model.GenerateUUIDWithSuffix("msg")
	record.CreatedAt = time.Now()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO conversation_log (message_id, account_id, contact_id, channel, subject, body, provider_message_id, delivery_status, generated_by_ai, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, record.MessageID, record.AccountID, record.ContactID, string(record.Channel),
		record.Subject, record.Body, record.ProviderMessageID, record.DeliveryStatus,
		record.GeneratedByAI, record.CreatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record conversation", err)
	}
	return nil
}

// RecordAudit appends an audit entry.
func (d Datasource) RecordAudit(ctx context.Context, entry *model.AuditEntry) error {
	entry.AuditID = model.GenerateUUIDWithSuffix("aud")
	entry.CreatedAt = time.Now()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO audit_log (audit_id, account_id, contact_id, action, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.AuditID, entry.AccountID, entry.ContactID, entry.Action, entry.Reason, entry.CreatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record audit entry", err)
	}
	return nil
}
