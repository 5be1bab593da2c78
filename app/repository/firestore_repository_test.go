package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradorr/tradorr-api/app/models"
)

func TestUserFromDataAcceptsClientWrittenDocument(t *testing.T) {
	user := userFromData("u1", map[string]interface{}{
		"email":               "trader@example.com",
		"createdAt":           "2025-01-01T00:00:00.000Z",
		"subscriptionStatus":  "active",
		"subscriptionPlan":    "pro",
		"subscriptionEndDate": "2025-02-01T12:30:00.000Z",
		"trialEndDate":        nil,
		"isAdmin":             false,
		"analyzerUsageCount":  float64(2),
	})

	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "trader@example.com", user.Email)
	assert.Equal(t, models.SUBSCRIPTION_ACTIVE, user.SubscriptionStatus)
	assert.Equal(t, "pro", user.SubscriptionPlan)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), user.CreatedAt.UTC())
	require.NotNil(t, user.SubscriptionEndDate)
	assert.Equal(t, time.Date(2025, 2, 1, 12, 30, 0, 0, time.UTC), user.SubscriptionEndDate.UTC())
	assert.Nil(t, user.TrialEndDate)
	assert.Equal(t, int64(2), user.AnalyzerUsageCount)
}

func TestUserFromDataAcceptsTimestamps(t *testing.T) {
	end := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	user := userFromData("u2", map[string]interface{}{
		"subscriptionStatus": "trial",
		"trialEndDate":       end,
		"analyzerUsageCount": int64(5),
		"isAdmin":            true,
	})

	require.NotNil(t, user.TrialEndDate)
	assert.Equal(t, end, *user.TrialEndDate)
	assert.True(t, user.CreatedAt.IsZero())
	assert.Equal(t, int64(5), user.AnalyzerUsageCount)
	assert.True(t, user.IsAdmin)
}

func TestUserFromDataDefaults(t *testing.T) {
	user := userFromData("u3", map[string]interface{}{
		"subscriptionPlan": nil,
		"createdAt":        "yesterday",
	})

	assert.Equal(t, models.SUBSCRIPTION_INACTIVE, user.SubscriptionStatus)
	assert.Empty(t, user.SubscriptionPlan)
	assert.True(t, user.CreatedAt.IsZero())
}

// newEmulatorClient connects to the Firestore emulator, skipping when none is configured.
func newEmulatorClient(t *testing.T) *firestore.Client {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("Skipping Firestore test, FIRESTORE_EMULATOR_HOST is not set")
	}
	client, err := firestore.NewClient(context.Background(), "tradorr-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestFirestoreUserRepository_ClientWrittenUser(t *testing.T) {
	client := newEmulatorClient(t)
	repos := NewFirestoreRepositories(client)
	ctx := context.Background()
	id := "user-" + uuid.NewString()

	_, err := client.Collection(CollectionUsers).Doc(id).Set(ctx, map[string]interface{}{
		"email":               "trader@example.com",
		"createdAt":           "2025-01-01T00:00:00.000Z",
		"subscriptionStatus":  "inactive",
		"subscriptionPlan":    nil,
		"subscriptionEndDate": nil,
		"trialEndDate":        nil,
		"isAdmin":             false,
	})
	require.NoError(t, err)

	user, err := repos.User.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.SUBSCRIPTION_INACTIVE, user.SubscriptionStatus)
	assert.Equal(t, 2025, user.CreatedAt.Year())

	end := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
	require.NoError(t, repos.User.UpsertSubscription(ctx, id, models.SubscriptionUpdate{
		Status:  models.SUBSCRIPTION_ACTIVE,
		Plan:    "pro",
		EndDate: &end,
	}))

	user, err = repos.User.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.SUBSCRIPTION_ACTIVE, user.SubscriptionStatus)
	assert.Equal(t, "trader@example.com", user.Email)
	assert.Equal(t, 2025, user.CreatedAt.Year(), "createdAt of an existing user is kept")
	require.NotNil(t, user.SubscriptionEndDate)
	assert.True(t, end.Equal(*user.SubscriptionEndDate))
}

func TestFirestoreUserRepository_UpsertCreatesListedUser(t *testing.T) {
	client := newEmulatorClient(t)
	repos := NewFirestoreRepositories(client)
	ctx := context.Background()
	id := "user-" + uuid.NewString()

	require.NoError(t, repos.User.UpsertSubscription(ctx, id, models.SubscriptionUpdate{Status: models.SUBSCRIPTION_ACTIVE, Plan: "pro"}))

	user, err := repos.User.GetByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, user.CreatedAt.IsZero())

	users, err := repos.User.List(ctx, 0, 1000)
	require.NoError(t, err)
	var found bool
	for _, u := range users {
		if u.ID == id {
			found = true
		}
	}
	assert.True(t, found, "users created by a webhook appear in the admin list")
}

func TestFirestoreUserRepository_MissingUser(t *testing.T) {
	client := newEmulatorClient(t)
	repos := NewFirestoreRepositories(client)
	ctx := context.Background()

	_, err := repos.User.GetByID(ctx, "missing-"+uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repos.User.IncrementAnalyzerUsage(ctx, "missing-"+uuid.NewString(), 1), ErrNotFound)
}

func TestFirestoreTransactionRepository_TransitionIsMonotonic(t *testing.T) {
	client := newEmulatorClient(t)
	repos := NewFirestoreRepositories(client)
	ctx := context.Background()
	id := "tx-" + uuid.NewString()

	require.NoError(t, repos.Transaction.Create(ctx, &models.Transaction{
		ID: id, UserID: "u1", PlanID: "pro", Amount: "499", Currency: "INR",
		Status: models.TRANSACTION_PENDING, Provider: "razorpay",
	}))

	at := time.Now().UTC().Truncate(time.Millisecond)
	tx, err := repos.Transaction.Transition(ctx, id, models.TRANSACTION_COMPLETED, []byte(`{"id":"pay_1"}`), at)
	require.NoError(t, err)
	assert.Equal(t, models.TRANSACTION_COMPLETED, tx.Status)
	require.NotNil(t, tx.CompletedAt)

	tx, err = repos.Transaction.Transition(ctx, id, models.TRANSACTION_FAILED, nil, at.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.TRANSACTION_COMPLETED, tx.Status)

	stored, err := repos.Transaction.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.TRANSACTION_COMPLETED, stored.Status)
	assert.JSONEq(t, `{"id":"pay_1"}`, string(stored.PaymentDetails))
}

func TestFirestoreWebhookEventRepository_Dedup(t *testing.T) {
	client := newEmulatorClient(t)
	repos := NewFirestoreRepositories(client)
	ctx := context.Background()
	eventID := "evt_" + uuid.NewString()

	created, _, err := repos.WebhookEvent.CreateIfNotExists(ctx, &models.BillingWebhookEvent{
		Provider: "stripe", ProviderEventID: eventID, EventType: "payment_intent.succeeded", PayloadJSON: "{}", SignatureValid: true,
	})
	require.NoError(t, err)
	assert.True(t, created)
	require.NoError(t, repos.WebhookEvent.MarkProcessed(ctx, "stripe", eventID, ""))

	created, stored, err := repos.WebhookEvent.CreateIfNotExists(ctx, &models.BillingWebhookEvent{
		Provider: "stripe", ProviderEventID: eventID, EventType: "payment_intent.succeeded", PayloadJSON: "{}", SignatureValid: true,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, stored.IsHandled())
}
