// Package repositorytest provides in-memory repositories for handler and service tests.
package repositorytest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tradorr/tradorr-api/app/models"
	"github.com/tradorr/tradorr-api/app/repository"
	"gorm.io/datatypes"
)

// Store is a thread-safe in-memory implementation of every repository.
// Set the *Err fields to make the matching operations fail.
type Store struct {
	mu           sync.Mutex
	users        map[string]models.User
	transactions map[string]models.Transaction
	events       map[string]models.BillingWebhookEvent
	nextEventID  uint

	UpsertErr      error
	TransactionErr error
}

func NewStore() *Store {
	return &Store{
		users:        map[string]models.User{},
		transactions: map[string]models.Transaction{},
		events:       map[string]models.BillingWebhookEvent{},
	}
}

// Repositories returns the store wrapped for the repository factory.
func (s *Store) Repositories() *repository.Repositories {
	return &repository.Repositories{
		User:         userRepo{s},
		Transaction:  transactionRepo{s},
		WebhookEvent: webhookEventRepo{s},
	}
}

// PutUser seeds a user.
func (s *Store) PutUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// PutTransaction seeds a transaction.
func (s *Store) PutTransaction(tx models.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[tx.ID] = tx
}

// User returns a copy of the stored user.
func (s *Store) User(id string) (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok
}

// Transaction returns a copy of the stored transaction.
func (s *Store) Transaction(id string) (models.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	return tx, ok
}

// WebhookEvent returns a copy of the stored delivery record.
func (s *Store) WebhookEvent(provider, providerEventID string) (models.BillingWebhookEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[provider+":"+providerEventID]
	return e, ok
}

// WebhookEventCount returns the number of recorded deliveries.
func (s *Store) WebhookEventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type userRepo struct{ s *Store }

func (r userRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r userRepo) UpsertSubscription(_ context.Context, id string, update models.SubscriptionUpdate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.UpsertErr != nil {
		return r.s.UpsertErr
	}
	u, ok := r.s.users[id]
	if !ok {
		u = models.User{ID: id, CreatedAt: time.Now()}
	}
	update.Apply(&u)
	u.UpdatedAt = time.Now()
	r.s.users[id] = u
	return nil
}

func (r userRepo) SetSubscriptionStatus(_ context.Context, id, status string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.SubscriptionStatus = status
	r.s.users[id] = u
	return nil
}

func (r userRepo) IncrementAnalyzerUsage(_ context.Context, id string, delta int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.AnalyzerUsageCount += delta
	r.s.users[id] = u
	return nil
}

func (r userRepo) List(_ context.Context, offset, limit int) ([]models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	users := make([]models.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return page(users, offset, limit), nil
}

type transactionRepo struct{ s *Store }

func (r transactionRepo) Create(_ context.Context, tx *models.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.TransactionErr != nil {
		return r.s.TransactionErr
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	r.s.transactions[tx.ID] = *tx
	return nil
}

func (r transactionRepo) CreateIfNotExists(ctx context.Context, tx *models.Transaction) (bool, error) {
	r.s.mu.Lock()
	_, exists := r.s.transactions[tx.ID]
	r.s.mu.Unlock()
	if exists {
		return false, nil
	}
	return true, r.Create(ctx, tx)
}

func (r transactionRepo) GetByID(_ context.Context, id string) (*models.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tx, ok := r.s.transactions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &tx, nil
}

func (r transactionRepo) Transition(_ context.Context, id, status string, details datatypes.JSON, at time.Time) (*models.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.TransactionErr != nil {
		return nil, r.s.TransactionErr
	}
	tx, ok := r.s.transactions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !models.CanTransition(tx.Status, status) {
		return &tx, nil
	}
	tx.Status = status
	tx.UpdatedAt = at
	if len(details) > 0 {
		tx.PaymentDetails = details
	}
	if status == models.TRANSACTION_COMPLETED {
		completedAt := at
		tx.CompletedAt = &completedAt
	}
	r.s.transactions[id] = tx
	return &tx, nil
}

func (r transactionRepo) ListByUser(_ context.Context, userID string, limit int) ([]models.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	txs := []models.Transaction{}
	for _, tx := range r.s.transactions {
		if tx.UserID == userID {
			txs = append(txs, tx)
		}
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].CreatedAt.After(txs[j].CreatedAt) })
	return page(txs, 0, limit), nil
}

func (r transactionRepo) LatestByUser(ctx context.Context, userID string) (*models.Transaction, error) {
	txs, _ := r.ListByUser(ctx, userID, 1)
	if len(txs) == 0 {
		return nil, repository.ErrNotFound
	}
	return &txs[0], nil
}

type webhookEventRepo struct{ s *Store }

func (r webhookEventRepo) CreateIfNotExists(_ context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := event.Provider + ":" + event.ProviderEventID
	if stored, ok := r.s.events[key]; ok {
		return false, &stored, nil
	}
	r.s.nextEventID++
	event.ID = r.s.nextEventID
	event.CreatedAt = time.Now()
	r.s.events[key] = *event
	stored := *event
	return true, &stored, nil
}

func (r webhookEventRepo) MarkProcessed(_ context.Context, provider, providerEventID, processingError string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := provider + ":" + providerEventID
	e, ok := r.s.events[key]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now()
	e.ProcessedAt = &now
	e.ProcessingError = processingError
	r.s.events[key] = e
	return nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
