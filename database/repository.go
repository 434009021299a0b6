package database

import (
	"context"
	"time"

	"github.com/outboundlabs/cadence/model"
)

// IDataSource groups the engine's relational operations. Every method
// scopes its reads and writes by account id.
type IDataSource interface {
	contact
	settings
	warmup
	review
	validationQueue
	conversation
}

type contact interface {
	UpdateContactStatus(ctx context.Context, accountID, contactID, status string) error
	GetEngagedContactIDs(ctx context.Context, accountID string) ([]string, error)
	GetPendingConnectionContactIDs(ctx context.Context, accountID string) ([]string, error)
}

type settings interface {
	GetAccountSettings(ctx context.Context, accountID string) (*model.AccountSettings, error)
	StartDomainWarmup(ctx context.Context, accountID string, startedAt time.Time) (*time.Time, error)
}

type warmup interface {
	UpsertWarmupSchedule(ctx context.Context, schedule *model.WarmupSchedule) (*model.WarmupSchedule, error)
	GetWarmupSchedule(ctx context.Context, accountID, contactID string) (*model.WarmupSchedule, error)
	AdvanceWarmupPhase(ctx context.Context, accountID, scheduleID, fromPhase, toPhase string) error
	IncrementWarmupActions(ctx context.Context, accountID, scheduleID string, likes, comments int) error
	GetWarmingContactIDs(ctx context.Context, accountID string) ([]string, error)
}

type review interface {
	CreateReviewItem(ctx context.Context, item *model.ReviewItem) (*model.ReviewItem, error)
	GetReviewItem(ctx context.Context, accountID, reviewID string) (*model.ReviewItem, error)
	ListPendingReviewItems(ctx context.Context, accountID string, limit int) ([]*model.ReviewItem, error)
	ClaimReviewDecision(ctx context.Context, accountID, reviewID, status, reason string) error
}

type validationQueue interface {
	AddToValidationQueue(ctx context.Context, entry *model.ValidationEntry) (*model.ValidationEntry, error)
	UpdateValidationStatus(ctx context.Context, accountID, queueID, status string) (*model.ValidationEntry, error)
	GetPendingValidationQueue(ctx context.Context, accountID string, limit int) ([]*model.ValidationEntry, error)
}

type conversation interface {
	RecordConversation(ctx context.Context, record *model.ConversationRecord) error
	RecordAudit(ctx context.Context, entry *model.AuditEntry) error
}
