package counter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/tradorr/tradorr-api/app/repository"
	"github.com/tradorr/tradorr-api/internal/pkg/cache"
	"github.com/tradorr/tradorr-api/internal/pkg/env"
	"github.com/tradorr/tradorr-api/internal/pkg/metrics"
)

const (
	analyzerUsageKey = "analyzer:counters:usage"

	DefaultAnalyzerFreeLimit = 3
)

// UsageResult is the outcome of one analyzer request.
type UsageResult struct {
	Allowed    bool  `json:"allowed"`
	UsageCount int64 `json:"usageCount"`
	Limit      int64 `json:"limit"`
}

// AnalyzerUsage counts analyzer requests per user in Redis and
// periodically folds them into the user store.
type AnalyzerUsage struct {
	client *redis.Client
	users  repository.UserRepository
	limit  int64
	now    func() time.Time
}

func NewAnalyzerUsage(client *redis.Client, users repository.UserRepository, limit int64) *AnalyzerUsage {
	if limit <= 0 {
		limit = DefaultAnalyzerFreeLimit
	}
	return &AnalyzerUsage{client: client, users: users, limit: limit, now: time.Now}
}

// NewAnalyzerUsageFromEnv uses the shared cache client and ANALYZER_FREE_LIMIT.
func NewAnalyzerUsageFromEnv(users repository.UserRepository) *AnalyzerUsage {
	return NewAnalyzerUsage(cache.GetClient(), users, int64(env.GetEnvInt("ANALYZER_FREE_LIMIT", DefaultAnalyzerFreeLimit)))
}

// SetClock replaces time.Now.
func (a *AnalyzerUsage) SetClock(now func() time.Time) {
	a.now = now
}

// Limit returns the number of free analyses.
func (a *AnalyzerUsage) Limit() int64 {
	return a.limit
}

// Consume records one analyzer request. Users without a current paid or trial
// subscription are denied once the free limit is used up; denied requests are
// not counted. Subscriber requests are counted as well.
func (a *AnalyzerUsage) Consume(ctx context.Context, userID string) (*UsageResult, error) {
	user, err := a.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	pending, err := a.client.HIncrBy(ctx, analyzerUsageKey, userID, 1).Result()
	if err != nil {
		return nil, fmt.Errorf("count analyzer usage: %w", err)
	}
	total := user.AnalyzerUsageCount + pending

	if !user.IsSubscriptionActive(a.now()) && total > a.limit {
		if err := a.client.HIncrBy(ctx, analyzerUsageKey, userID, -1).Err(); err != nil {
			log.Warnf("[Analyzer] failed to roll back usage for user %s: %v", userID, err)
		}
		metrics.AnalyzerRequests.WithLabelValues("denied").Inc()
		return &UsageResult{Allowed: false, UsageCount: total - 1, Limit: a.limit}, nil
	}

	metrics.AnalyzerRequests.WithLabelValues("allowed").Inc()
	return &UsageResult{Allowed: true, UsageCount: total, Limit: a.limit}, nil
}

// Pending returns the not yet flushed count of a user.
func (a *AnalyzerUsage) Pending(ctx context.Context, userID string) (int64, error) {
	n, err := a.client.HGet(ctx, analyzerUsageKey, userID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Flush drains the Redis hash and applies the increments to the user store.
// Uses RENAME to a temporary key so in-flight increments land in a fresh hash.
// Increments that fail to apply are pushed back for the next flush.
func (a *AnalyzerUsage) Flush(ctx context.Context) error {
	tmpKey := fmt.Sprintf("%s:tmp:%d", analyzerUsageKey, time.Now().UnixNano())
	if err := a.client.Rename(ctx, analyzerUsageKey, tmpKey).Err(); err != nil {
		// Nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") || errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	defer a.client.Del(ctx, tmpKey)

	data, err := a.client.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}

	var firstErr error
	for userID, v := range data {
		inc, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil || inc == 0 {
			continue
		}
		err := a.users.IncrementAnalyzerUsage(ctx, userID, inc)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			log.Warnf("[Analyzer] dropping %d uses of unknown user %s", inc, userID)
		case err != nil:
			if rerr := a.client.HIncrBy(ctx, analyzerUsageKey, userID, inc).Err(); rerr != nil {
				log.Errorf("[Analyzer] lost %d uses of user %s: %v", inc, userID, rerr)
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
