package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/tradorr/tradorr-api/app/models"
	"github.com/tradorr/tradorr-api/app/repository"
)

const (
	defaultAdminPageSize = 50
	maxAdminPageSize     = 200
)

// AdminController handles admin-related HTTP requests using repository pattern
type AdminController struct {
	repos *repository.Repositories
}

// NewAdminController creates a new admin controller with repository dependencies
func NewAdminController(repos *repository.Repositories) *AdminController {
	return &AdminController{
		repos: repos,
	}
}

// HandleUsers lists users for the admin panel
func (ac *AdminController) HandleUsers(c *fiber.Ctx) error {
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	limit := c.QueryInt("limit", defaultAdminPageSize)
	if limit <= 0 || limit > maxAdminPageSize {
		limit = defaultAdminPageSize
	}

	users, err := ac.repos.User.List(c.UserContext(), offset, limit)
	if err != nil {
		log.Errorf("[Admin] user list failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "Failed to load users")
	}
	if users == nil {
		users = []models.User{}
	}
	return c.JSON(fiber.Map{"users": users, "offset": offset, "limit": limit})
}

type subscriptionStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=inactive trial active"`
}

// HandleUserSubscriptionUpdate toggles the subscription status of a user
func (ac *AdminController) HandleUserSubscriptionUpdate(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("userId"))
	if userID == "" {
		return jsonError(c, fiber.StatusBadRequest, "userId is required")
	}

	var req subscriptionStatusRequest
	if ok, err := parseAndValidate(c, &req); !ok {
		return err
	}

	err := ac.repos.User.SetSubscriptionStatus(c.UserContext(), userID, req.Status)
	if errors.Is(err, repository.ErrNotFound) {
		return jsonError(c, fiber.StatusNotFound, "User not found")
	}
	if err != nil {
		log.Errorf("[Admin] status update for %s failed: %v", userID, err)
		return jsonError(c, fiber.StatusInternalServerError, "Failed to update subscription")
	}

	log.Infof("[Admin] subscription of user %s set to %s", userID, req.Status)
	return c.JSON(fiber.Map{"userId": userID, "status": req.Status})
}
