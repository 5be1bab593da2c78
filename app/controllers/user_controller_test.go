package controllers

import (
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/tradorr/tradorr-api/app/models"
	"github.com/tradorr/tradorr-api/app/repository/repositorytest"
	"github.com/tradorr/tradorr-api/internal/pkg/metrics/counter"
)

func newUserApp(t *testing.T) (*fiber.App, *repositorytest.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := repositorytest.NewStore()
	usage := counter.NewAnalyzerUsage(client, store.Repositories().User, 2)
	usage.SetClock(func() time.Time { return testNow })
	uc := NewUserController(store.Repositories(), usage)
	uc.now = func() time.Time { return testNow }

	app := fiber.New()
	app.Get("/api/users/:userId/subscription", uc.HandleSubscription)
	app.Post("/api/users/:userId/analyzer-usage", uc.HandleAnalyzerUsage)
	return app, store
}

func TestSubscriptionUnknownUserIsInactive(t *testing.T) {
	app, _ := newUserApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/api/users/ghost/subscription", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "ghost", body["userId"])
	assert.Equal(t, models.SUBSCRIPTION_INACTIVE, body["subscriptionStatus"])
	assert.Equal(t, false, body["isActive"])
}

func TestSubscriptionReportsTrialWindow(t *testing.T) {
	app, store := newUserApp(t)
	trialEnd := testNow.Add(24 * time.Hour)
	store.PutUser(models.User{ID: "u1", SubscriptionStatus: models.SUBSCRIPTION_TRIAL, SubscriptionPlan: "pro", TrialEndDate: &trialEnd, AnalyzerUsageCount: 1})

	_, body := doJSON(t, app, http.MethodGet, "/api/users/u1/subscription", "", nil)
	assert.Equal(t, true, body["isActive"])
	assert.Equal(t, "pro", body["subscriptionPlan"])
	assert.Equal(t, float64(1), body["analyzerUsageCount"])

	expired := testNow.Add(-time.Hour)
	store.PutUser(models.User{ID: "u1", SubscriptionStatus: models.SUBSCRIPTION_TRIAL, TrialEndDate: &expired})
	_, body = doJSON(t, app, http.MethodGet, "/api/users/u1/subscription", "", nil)
	assert.Equal(t, false, body["isActive"])
}

func TestAnalyzerUsageGate(t *testing.T) {
	app, store := newUserApp(t)
	store.PutUser(models.User{ID: "u1"})

	for i := 1; i <= 2; i++ {
		resp, body := doJSON(t, app, http.MethodPost, "/api/users/u1/analyzer-usage", "", nil)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["allowed"])
		assert.Equal(t, float64(i), body["usageCount"])
	}

	resp, body := doJSON(t, app, http.MethodPost, "/api/users/u1/analyzer-usage", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["allowed"])
	assert.Equal(t, float64(2), body["limit"])

	// pending counts show up before they are flushed
	_, body = doJSON(t, app, http.MethodGet, "/api/users/u1/subscription", "", nil)
	assert.Equal(t, float64(2), body["analyzerUsageCount"])
}

func TestAnalyzerUsageUnknownUser(t *testing.T) {
	app, _ := newUserApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/api/users/ghost/analyzer-usage", "", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "User not found", body["error"])
}
