package repository

import (
	"context"
	"errors"
	"time"

	"github.com/tradorr/tradorr-api/app/models"
	"gorm.io/datatypes"
)

// ErrNotFound is returned by every store when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// UserRepository defines the subscription-related user operations
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	// UpsertSubscription writes the subscription fields, creating the user document when missing.
	UpsertSubscription(ctx context.Context, id string, update models.SubscriptionUpdate) error
	// SetSubscriptionStatus changes only the status field of an existing user.
	SetSubscriptionStatus(ctx context.Context, id, status string) error
	IncrementAnalyzerUsage(ctx context.Context, id string, delta int64) error
	List(ctx context.Context, offset, limit int) ([]models.User, error)
}

// TransactionRepository defines the payment transaction operations
type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	// CreateIfNotExists inserts tx unless a record with the same id exists and reports whether it did.
	CreateIfNotExists(ctx context.Context, tx *models.Transaction) (bool, error)
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	// Transition moves an open transaction to status and returns the stored record.
	// Terminal transactions are returned unchanged. CompletedAt is stamped on completion.
	Transition(ctx context.Context, id, status string, details datatypes.JSON, at time.Time) (*models.Transaction, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Transaction, error)
	LatestByUser(ctx context.Context, userID string) (*models.Transaction, error)
}

// WebhookEventRepository stores webhook deliveries for deduplication
type WebhookEventRepository interface {
	CreateIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkProcessed(ctx context.Context, provider, providerEventID, processingError string) error
}

// Repositories holds all repository instances
type Repositories struct {
	User         UserRepository
	Transaction  TransactionRepository
	WebhookEvent WebhookEventRepository
}
