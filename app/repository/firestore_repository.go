package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/gofiber/fiber/v2/log"
	"github.com/tradorr/tradorr-api/app/models"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/datatypes"
)

const (
	CollectionUsers         = "users"
	CollectionTransactions  = "transactions"
	CollectionWebhookEvents = "billing_webhook_events"
)

// NewFirestoreRepositories wires the Firestore-backed stores.
func NewFirestoreRepositories(client *firestore.Client) *Repositories {
	return &Repositories{
		User:         &firestoreUserRepository{client: client},
		Transaction:  &firestoreTransactionRepository{client: client},
		WebhookEvent: &firestoreWebhookEventRepository{client: client},
	}
}

func translateFirestoreError(err error) error {
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return err
}

// firestoreUserRepository stores users in the users collection keyed by uid
type firestoreUserRepository struct {
	client *firestore.Client
}

func (r *firestoreUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	snap, err := r.client.Collection(CollectionUsers).Doc(id).Get(ctx)
	if err != nil {
		return nil, translateFirestoreError(err)
	}
	return userFromData(snap.Ref.ID, snap.Data()), nil
}

// userFromData decodes a user document field by field. The web client writes dates as
// ISO strings and leaves optional fields null, so DataTo cannot be used here.
func userFromData(id string, data map[string]interface{}) *models.User {
	user := &models.User{
		ID:                  id,
		Email:               stringField(data, "email"),
		SubscriptionStatus:  stringField(data, "subscriptionStatus"),
		SubscriptionPlan:    stringField(data, "subscriptionPlan"),
		SubscriptionEndDate: timeField(id, data, "subscriptionEndDate"),
		TrialEndDate:        timeField(id, data, "trialEndDate"),
		AnalyzerUsageCount:  intField(data, "analyzerUsageCount"),
	}
	if user.SubscriptionStatus == "" {
		user.SubscriptionStatus = models.SUBSCRIPTION_INACTIVE
	}
	if v, ok := data["isAdmin"].(bool); ok {
		user.IsAdmin = v
	}
	if t := timeField(id, data, "createdAt"); t != nil {
		user.CreatedAt = *t
	}
	if t := timeField(id, data, "updatedAt"); t != nil {
		user.UpdatedAt = *t
	}
	return user
}

func stringField(data map[string]interface{}, key string) string {
	v, _ := data[key].(string)
	return v
}

func intField(data map[string]interface{}, key string) int64 {
	switch v := data[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

// timeField accepts a Firestore timestamp or an RFC 3339 string. Anything else reads as unset.
func timeField(id string, data map[string]interface{}, key string) *time.Time {
	switch v := data[key].(type) {
	case time.Time:
		return &v
	case string:
		if v == "" {
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			log.Warnf("[Firestore] user %s has unreadable %s %q", id, key, v)
			return nil
		}
		return &t
	}
	return nil
}

// UpsertSubscription merges the subscription fields and stamps createdAt when
// the document does not exist yet.
func (r *firestoreUserRepository) UpsertSubscription(ctx context.Context, id string, update models.SubscriptionUpdate) error {
	ref := r.client.Collection(CollectionUsers).Doc(id)
	now := time.Now()
	data := map[string]interface{}{
		"subscriptionStatus": update.Status,
		"updatedAt":          now,
	}
	if update.Status != models.SUBSCRIPTION_INACTIVE {
		data["subscriptionPlan"] = update.Plan
		data["subscriptionEndDate"] = update.EndDate
		data["trialEndDate"] = update.TrialEndDate
	}

	return r.client.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		_, err := t.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
			data["createdAt"] = now
		case err != nil:
			return err
		}
		return t.Set(ref, data, firestore.MergeAll)
	})
}

func (r *firestoreUserRepository) SetSubscriptionStatus(ctx context.Context, id, status string) error {
	_, err := r.client.Collection(CollectionUsers).Doc(id).Update(ctx, []firestore.Update{
		{Path: "subscriptionStatus", Value: status},
		{Path: "updatedAt", Value: time.Now()},
	})
	return translateFirestoreError(err)
}

func (r *firestoreUserRepository) IncrementAnalyzerUsage(ctx context.Context, id string, delta int64) error {
	_, err := r.client.Collection(CollectionUsers).Doc(id).Update(ctx, []firestore.Update{
		{Path: "analyzerUsageCount", Value: firestore.Increment(delta)},
	})
	return translateFirestoreError(err)
}

// List pages users by document id. Ordering by createdAt would drop documents
// without the field and mixes string and timestamp values.
func (r *firestoreUserRepository) List(ctx context.Context, offset, limit int) ([]models.User, error) {
	iter := r.client.Collection(CollectionUsers).OrderBy(firestore.DocumentID, firestore.Asc).
		Offset(offset).Limit(limit).Documents(ctx)
	defer iter.Stop()

	var users []models.User
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		users = append(users, *userFromData(snap.Ref.ID, snap.Data()))
	}
	return users, nil
}

// transactionDoc carries the raw payload as a native map so it stays queryable in the console.
type transactionDoc struct {
	models.Transaction
	Details map[string]interface{} `firestore:"paymentDetails,omitempty"`
}

func (d *transactionDoc) toModel(id string) (*models.Transaction, error) {
	tx := d.Transaction
	tx.ID = id
	if d.Details != nil {
		raw, err := json.Marshal(d.Details)
		if err != nil {
			return nil, err
		}
		tx.PaymentDetails = datatypes.JSON(raw)
	}
	return &tx, nil
}

func decodeDetails(details datatypes.JSON) map[string]interface{} {
	if len(details) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(details, &m); err != nil {
		return map[string]interface{}{"raw": string(details)}
	}
	return m
}

type firestoreTransactionRepository struct {
	client *firestore.Client
}

func (r *firestoreTransactionRepository) data(tx *models.Transaction) map[string]interface{} {
	now := time.Now()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now
	data := map[string]interface{}{
		"userId":      tx.UserID,
		"planId":      tx.PlanID,
		"amount":      tx.Amount,
		"currency":    tx.Currency,
		"status":      tx.Status,
		"provider":    tx.Provider,
		"trial":       tx.Trial,
		"paymentUrl":  tx.PaymentURL,
		"createdAt":   tx.CreatedAt,
		"completedAt": tx.CompletedAt,
		"updatedAt":   tx.UpdatedAt,
	}
	if details := decodeDetails(tx.PaymentDetails); details != nil {
		data["paymentDetails"] = details
	}
	return data
}

func (r *firestoreTransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	_, err := r.client.Collection(CollectionTransactions).Doc(tx.ID).Set(ctx, r.data(tx))
	return err
}

func (r *firestoreTransactionRepository) CreateIfNotExists(ctx context.Context, tx *models.Transaction) (bool, error) {
	_, err := r.client.Collection(CollectionTransactions).Doc(tx.ID).Create(ctx, r.data(tx))
	if status.Code(err) == codes.AlreadyExists {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *firestoreTransactionRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	snap, err := r.client.Collection(CollectionTransactions).Doc(id).Get(ctx)
	if err != nil {
		return nil, translateFirestoreError(err)
	}
	return snapToTransaction(snap)
}

func snapToTransaction(snap *firestore.DocumentSnapshot) (*models.Transaction, error) {
	var doc transactionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, err
	}
	return doc.toModel(snap.Ref.ID)
}

// Transition reads and writes inside one Firestore transaction so the status never regresses.
func (r *firestoreTransactionRepository) Transition(ctx context.Context, id, newStatus string, details datatypes.JSON, at time.Time) (*models.Transaction, error) {
	ref := r.client.Collection(CollectionTransactions).Doc(id)
	var result *models.Transaction

	err := r.client.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		snap, err := t.Get(ref)
		if err != nil {
			return translateFirestoreError(err)
		}
		current, err := snapToTransaction(snap)
		if err != nil {
			return err
		}
		if !models.CanTransition(current.Status, newStatus) {
			result = current
			return nil
		}

		updates := []firestore.Update{
			{Path: "status", Value: newStatus},
			{Path: "updatedAt", Value: at},
		}
		current.Status = newStatus
		current.UpdatedAt = at
		if m := decodeDetails(details); m != nil {
			updates = append(updates, firestore.Update{Path: "paymentDetails", Value: m})
			current.PaymentDetails = details
		}
		if newStatus == models.TRANSACTION_COMPLETED {
			updates = append(updates, firestore.Update{Path: "completedAt", Value: at})
			completedAt := at
			current.CompletedAt = &completedAt
		}
		result = current
		return t.Update(ref, updates)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *firestoreTransactionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	iter := r.client.Collection(CollectionTransactions).
		Where("userId", "==", userID).
		OrderBy("createdAt", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	txs := []models.Transaction{}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		tx, err := snapToTransaction(snap)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, nil
}

func (r *firestoreTransactionRepository) LatestByUser(ctx context.Context, userID string) (*models.Transaction, error) {
	txs, err := r.ListByUser(ctx, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, ErrNotFound
	}
	return &txs[0], nil
}

type firestoreWebhookEventRepository struct {
	client *firestore.Client
}

// webhookEventDocID builds a document id from the dedup key. Slashes are not allowed in ids.
func webhookEventDocID(provider, providerEventID string) string {
	return provider + ":" + strings.ReplaceAll(providerEventID, "/", "_")
}

func (r *firestoreWebhookEventRepository) CreateIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	ref := r.client.Collection(CollectionWebhookEvents).Doc(webhookEventDocID(event.Provider, event.ProviderEventID))
	now := time.Now()
	event.CreatedAt = now
	event.UpdatedAt = now

	_, err := ref.Create(ctx, event)
	if err == nil {
		return true, event, nil
	}
	if status.Code(err) != codes.AlreadyExists {
		return false, nil, err
	}

	snap, err := ref.Get(ctx)
	if err != nil {
		return false, nil, translateFirestoreError(err)
	}
	var stored models.BillingWebhookEvent
	if err := snap.DataTo(&stored); err != nil {
		return false, nil, err
	}
	return false, &stored, nil
}

func (r *firestoreWebhookEventRepository) MarkProcessed(ctx context.Context, provider, providerEventID, processingError string) error {
	now := time.Now()
	_, err := r.client.Collection(CollectionWebhookEvents).Doc(webhookEventDocID(provider, providerEventID)).Update(ctx, []firestore.Update{
		{Path: "processedAt", Value: now},
		{Path: "processingError", Value: processingError},
		{Path: "updatedAt", Value: now},
	})
	return translateFirestoreError(err)
}
