package model

import "time"

// Review item statuses. pending is the only non-terminal status; a row
// makes exactly one transition out of it.
const (
	ReviewPending  = "pending"
	ReviewApproved = "approved"
	ReviewEdited   = "edited"
	ReviewRejected = "rejected"
)

// ReviewItem is an AI-generated message held for human review because
// its confidence score fell below the account's threshold.
type ReviewItem struct {
	ReviewID        string     `json:"review_id"`
	AccountID       string     `json:"account_id"`
	ContactID       string     `json:"contact_id"`
	ProfileURL      string     `json:"profile_url,omitempty"`
	EmailAddress    string     `json:"email_address,omitempty"`
	ProposedSubject string     `json:"proposed_subject,omitempty"`
	ProposedBody    string     `json:"proposed_body"`
	Confidence      int        `json:"confidence"`
	Priority        bool       `json:"priority"`
	Status          string     `json:"status"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Channel picks the delivery route for an approved item: LinkedIn when
// a profile URL is present, email otherwise.
func (r *ReviewItem) Channel() Channel {
	if r.ProfileURL != "" {
		return ChannelLinkedIn
	}
	return ChannelEmail
}

// Recipient returns the provider-facing address for the item's channel.
func (r *ReviewItem) Recipient() string {
	if r.Channel() == ChannelLinkedIn {
		return r.ProfileURL
	}
	return r.EmailAddress
}

// BulkResult collects per-item outcomes of a bulk review decision. One
// item failing never aborts the rest of the batch.
type BulkResult struct {
	Succeeded []string         `json:"succeeded"`
	Failed    map[string]error `json:"failed,omitempty"`
}

// ValidationEntry is a row in the semi-automatic validation queue: a
// human gate in front of warm-up start.
type ValidationEntry struct {
	QueueID   string    `json:"queue_id"`
	ContactID string    `json:"contact_id"`
	AccountID string    `json:"account_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	ValidationPending  = "pending"
	ValidationApproved = "approved"
	ValidationRejected = "rejected"
)

// ConversationRecord is the outbound conversation-log entry appended
// after every transport hand-off.
type ConversationRecord struct {
	MessageID         string    `json:"message_id"`
	AccountID         string    `json:"account_id"`
	ContactID         string    `json:"contact_id"`
	Channel           Channel   `json:"channel"`
	Subject           string    `json:"subject,omitempty"`
	Body              string    `json:"body"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	DeliveryStatus    string    `json:"delivery_status"`
	GeneratedByAI     bool      `json:"generated_by_ai"`
	CreatedAt         time.Time `json:"created_at"`
}

// AuditEntry records review rejections and other decisions kept for
// compliance.
type AuditEntry struct {
	AuditID   string    `json:"audit_id"`
	AccountID string    `json:"account_id"`
	ContactID string    `json:"contact_id"`
	Action    string    `json:"action"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
