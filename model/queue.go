package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// QueueEntry is a ready-to-send message buffered in an account's
// priority send queue. Entries are immutable once enqueued; they are
// removed on dequeue, never mutated in place.
type QueueEntry struct {
	EntryID    string    `json:"entry_id"`
	AccountID  string    `json:"account_id"`
	ContactID  string    `json:"contact_id"`
	Channel    Channel   `json:"channel"`
	Subject    string    `json:"subject,omitempty"`
	Body       string    `json:"body"`
	Recipient  string    `json:"recipient"`
	VIP        bool      `json:"vip"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func (e QueueEntry) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.AccountID, validation.Required),
		validation.Field(&e.ContactID, validation.Required),
		validation.Field(&e.Channel, validation.Required, validation.In(ChannelLinkedIn, ChannelEmail)),
		validation.Field(&e.Body, validation.Required),
		validation.Field(&e.Recipient, validation.Required),
	)
}

// Candidate is a generated message entering the governance pipeline:
// exclusion check, warm-up gates, confidence gate, then either the
// review queue or the send queue.
type Candidate struct {
	AccountID    string  `json:"account_id"`
	ContactID    string  `json:"contact_id"`
	Channel      Channel `json:"channel"`
	Subject      string  `json:"subject,omitempty"`
	Body         string  `json:"body"`
	ProfileURL   string  `json:"profile_url,omitempty"`
	EmailAddress string  `json:"email_address,omitempty"`
	Confidence   int     `json:"confidence"`
	VIP          bool    `json:"vip"`
}

func (c Candidate) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.AccountID, validation.Required),
		validation.Field(&c.ContactID, validation.Required),
		validation.Field(&c.Channel, validation.Required, validation.In(ChannelLinkedIn, ChannelEmail)),
		validation.Field(&c.Body, validation.Required),
		validation.Field(&c.Confidence, validation.Min(0), validation.Max(100)),
	)
}

// Recipient returns the provider-facing address for the candidate's
// channel.
func (c Candidate) Recipient() string {
	if c.Channel == ChannelLinkedIn {
		return c.ProfileURL
	}
	return c.EmailAddress
}
