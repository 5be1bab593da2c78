package jobqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/tradorr/tradorr-api/internal/pkg/billing"
)

// errPermanent marks failures a retry cannot fix.
var errPermanent = errors.New("permanent job failure")

func (q *Queue) processReconcileJob(ctx context.Context, job *Job) error {
	payload, err := ReconcileJobPayloadFromMap(job.Payload)
	if err != nil || payload.TransactionID == "" {
		return fmt.Errorf("%w: invalid reconcile payload", errPermanent)
	}
	if q.reconciler == nil {
		return fmt.Errorf("no reconciler configured")
	}

	err = q.reconciler.ReconcileTransaction(ctx, payload.TransactionID)
	switch {
	case errors.Is(err, billing.ErrTransactionNotFound):
		return fmt.Errorf("%w: %v", errPermanent, err)
	case err != nil:
		return err
	}

	log.Infof("[JobQueue] Reconciled transaction %s for user %s", payload.TransactionID, payload.UserID)
	return nil
}

func (q *Queue) processArchiveJob(ctx context.Context, job *Job) error {
	payload, err := ArchiveJobPayloadFromMap(job.Payload)
	if err != nil || payload.Provider == "" {
		return fmt.Errorf("%w: invalid archive payload", errPermanent)
	}
	if q.archiver == nil {
		return fmt.Errorf("%w: archive storage not configured", errPermanent)
	}
	return q.archiver.ArchiveWebhook(ctx, payload.ArchiveRequest())
}
