package jobqueue

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tradorr/tradorr-api/internal/pkg/billing"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()

	mr, client := newTestRedis(t)
	return NewQueueWithClient(client, 1), mr
}

type fakeReconciler struct {
	mu    sync.Mutex
	ids   []string
	errFn func(id string) error
}

func (f *fakeReconciler) ReconcileTransaction(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	if f.errFn != nil {
		return f.errFn(id)
	}
	return nil
}

func (f *fakeReconciler) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

type fakeArchiver struct {
	mu   sync.Mutex
	reqs []billing.ArchiveRequest
	err  error
}

func (f *fakeArchiver) ArchiveWebhook(_ context.Context, req billing.ArchiveRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.err
}

type countingFlusher struct {
	mu    sync.Mutex
	count int
}

func (f *countingFlusher) Flush(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	return nil
}

func (f *countingFlusher) flushes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}
