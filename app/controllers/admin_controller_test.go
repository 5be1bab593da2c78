package controllers

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradorr/tradorr-api/app/models"
	"github.com/tradorr/tradorr-api/app/repository/repositorytest"
)

func newAdminApp(t *testing.T) (*fiber.App, *repositorytest.Store) {
	t.Helper()
	store := repositorytest.NewStore()
	ac := NewAdminController(store.Repositories())

	app := fiber.New()
	app.Get("/api/admin/users", ac.HandleUsers)
	app.Patch("/api/admin/users/:userId/subscription", ac.HandleUserSubscriptionUpdate)
	return app, store
}

func TestAdminUsersList(t *testing.T) {
	app, store := newAdminApp(t)

	_, body := doJSON(t, app, http.MethodGet, "/api/admin/users", "", nil)
	assert.Equal(t, []interface{}{}, body["users"])

	store.PutUser(models.User{ID: "a"})
	store.PutUser(models.User{ID: "b"})
	store.PutUser(models.User{ID: "c"})

	resp, body := doJSON(t, app, http.MethodGet, "/api/admin/users?offset=1&limit=1", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	users, ok := body["users"].([]interface{})
	require.True(t, ok)
	assert.Len(t, users, 1)
	assert.Equal(t, float64(1), body["limit"])

	_, body = doJSON(t, app, http.MethodGet, "/api/admin/users?limit=5000", "", nil)
	assert.Equal(t, float64(defaultAdminPageSize), body["limit"])
}

func TestAdminSubscriptionUpdate(t *testing.T) {
	app, store := newAdminApp(t)
	store.PutUser(models.User{ID: "u1", SubscriptionStatus: models.SUBSCRIPTION_INACTIVE})

	resp, body := doJSON(t, app, http.MethodPatch, "/api/admin/users/u1/subscription", `{"status":"active"}`, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "active", body["status"])
	user, _ := store.User("u1")
	assert.Equal(t, models.SUBSCRIPTION_ACTIVE, user.SubscriptionStatus)

	resp, body = doJSON(t, app, http.MethodPatch, "/api/admin/users/u1/subscription", `{"status":"gold"}`, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "status must be one of: inactive trial active", body["error"])

	resp, body = doJSON(t, app, http.MethodPatch, "/api/admin/users/ghost/subscription", `{"status":"trial"}`, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "User not found", body["error"])
}
