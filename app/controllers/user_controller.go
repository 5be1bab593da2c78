package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/tradorr/tradorr-api/app/models"
	"github.com/tradorr/tradorr-api/app/repository"
	"github.com/tradorr/tradorr-api/internal/pkg/metrics/counter"
)

// UserController exposes the subscription view and the analyzer usage gate.
type UserController struct {
	repos *repository.Repositories
	usage *counter.AnalyzerUsage
	now   func() time.Time
}

func NewUserController(repos *repository.Repositories, usage *counter.AnalyzerUsage) *UserController {
	return &UserController{
		repos: repos,
		usage: usage,
		now:   time.Now,
	}
}

// subscriptionView is the read model the frontend subscription context consumes.
type subscriptionView struct {
	UserID              string     `json:"userId"`
	SubscriptionStatus  string     `json:"subscriptionStatus"`
	SubscriptionPlan    string     `json:"subscriptionPlan"`
	SubscriptionEndDate *time.Time `json:"subscriptionEndDate"`
	TrialEndDate        *time.Time `json:"trialEndDate"`
	IsActive            bool       `json:"isActive"`
	AnalyzerUsageCount  int64      `json:"analyzerUsageCount"`
}

// HandleSubscription returns the subscription of a user. Unknown users are inactive.
func (uc *UserController) HandleSubscription(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("userId"))
	if userID == "" {
		return jsonError(c, fiber.StatusBadRequest, "userId is required")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	user, err := uc.repos.User.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		user = &models.User{ID: userID, SubscriptionStatus: models.SUBSCRIPTION_INACTIVE}
	} else if err != nil {
		log.Errorf("[API] subscription lookup for %s failed: %v", userID, err)
		return jsonError(c, fiber.StatusInternalServerError, "Failed to load subscription")
	}

	usage := user.AnalyzerUsageCount
	if uc.usage != nil {
		if pending, perr := uc.usage.Pending(ctx, userID); perr == nil {
			usage += pending
		}
	}

	return c.JSON(subscriptionView{
		UserID:              user.ID,
		SubscriptionStatus:  user.SubscriptionStatus,
		SubscriptionPlan:    user.SubscriptionPlan,
		SubscriptionEndDate: user.SubscriptionEndDate,
		TrialEndDate:        user.TrialEndDate,
		IsActive:            user.IsSubscriptionActive(uc.now()),
		AnalyzerUsageCount:  usage,
	})
}

// HandleAnalyzerUsage consumes one analysis for the user.
func (uc *UserController) HandleAnalyzerUsage(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("userId"))
	if userID == "" {
		return jsonError(c, fiber.StatusBadRequest, "userId is required")
	}
	if uc.usage == nil {
		return jsonError(c, fiber.StatusServiceUnavailable, "Analyzer usage tracking unavailable")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	result, err := uc.usage.Consume(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return jsonError(c, fiber.StatusNotFound, "User not found")
	}
	if err != nil {
		log.Errorf("[API] analyzer usage for %s failed: %v", userID, err)
		return jsonError(c, fiber.StatusInternalServerError, "Failed to record analyzer usage")
	}
	return c.JSON(result)
}
