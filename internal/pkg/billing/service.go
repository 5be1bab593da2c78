package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"

	"github.com/tradorr/tradorr-api/app/models"
	"github.com/tradorr/tradorr-api/app/repository"
	"github.com/tradorr/tradorr-api/internal/pkg/env"
	"github.com/tradorr/tradorr-api/internal/pkg/metrics"
)

// PaymentInitiator creates a checkout at a payment provider.
type PaymentInitiator interface {
	Provider() string
	Initiate(ctx context.Context, req PaymentRequest) (*Checkout, error)
}

// FollowUpScheduler hands work to background workers.
type FollowUpScheduler interface {
	ScheduleReconcile(ctx context.Context, req ReconcileRequest) error
	ScheduleArchive(ctx context.Context, req ArchiveRequest) error
}

type webhookRegistration struct {
	adapter WebhookAdapter
	secret  string
}

// Service verifies webhooks, keeps transactions monotonic and reconciles user subscriptions.
type Service struct {
	users        repository.UserRepository
	transactions repository.TransactionRepository
	events       repository.WebhookEventRepository

	webhooks  map[string]webhookRegistration
	scheduler FollowUpScheduler
	archive   bool
	now       func() time.Time
}

// NewService creates a billing service from injected repositories.
func NewService(repos *repository.Repositories) *Service {
	return &Service{
		users:        repos.User,
		transactions: repos.Transaction,
		events:       repos.WebhookEvent,
		webhooks:     map[string]webhookRegistration{},
		now:          time.Now,
	}
}

// NewServiceFromEnv registers every provider webhook with its secret from the environment.
func NewServiceFromEnv(repos *repository.Repositories) *Service {
	s := NewService(repos)
	s.RegisterWebhook(StripeWebhook{}, webhookSecretFromEnv("STRIPE_WEBHOOK_SECRET"))
	s.RegisterWebhook(RazorpayWebhook{}, webhookSecretFromEnv("RAZORPAY_WEBHOOK_SECRET"))
	s.RegisterWebhook(NOWPaymentsWebhook{}, webhookSecretFromEnv("NOWPAY_IPN_SECRET"))
	s.RegisterWebhook(CoinbaseWebhook{}, webhookSecretFromEnv("COINBASE_COMMERCE_WEBHOOK_SECRET"))
	s.archive = env.GetEnv("WEBHOOK_ARCHIVE_ENABLED", "false") == "true"
	return s
}

// RegisterWebhook installs a provider adapter. The secret is used byte for byte as the HMAC key.
func (s *Service) RegisterWebhook(adapter WebhookAdapter, secret string) {
	s.webhooks[adapter.Provider()] = webhookRegistration{adapter: adapter, secret: secret}
}

// webhookSecretFromEnv trims the whitespace .env files and secret mounts tend to add.
// This is the only place a webhook secret is trimmed.
func webhookSecretFromEnv(key string) string {
	return strings.TrimSpace(env.GetEnv(key, ""))
}

// SetScheduler enables background reconcile retries and payload archiving.
func (s *Service) SetScheduler(scheduler FollowUpScheduler, archive bool) {
	s.scheduler = scheduler
	s.archive = archive
}

// SetClock replaces time.Now.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SignatureHeader returns the header a provider signs its webhooks in.
func (s *Service) SignatureHeader(provider string) string {
	if reg, ok := s.webhooks[provider]; ok {
		return reg.adapter.SignatureHeader()
	}
	return ""
}

// InitiatePayment creates the vendor checkout and records a pending transaction for it.
func (s *Service) InitiatePayment(ctx context.Context, initiator PaymentInitiator, req PaymentRequest) (*Checkout, error) {
	provider := initiator.Provider()
	checkout, err := initiator.Initiate(ctx, req)
	if err != nil {
		metrics.PaymentInitiations.WithLabelValues(provider, "error").Inc()
		log.Errorf("[Billing] %s payment initiation failed for user %s: %v", provider, req.UserID, err)
		return nil, err
	}

	currency := checkout.Currency
	if currency == "" {
		currency = req.Currency
	}
	tx := &models.Transaction{
		ID:         checkout.TransactionID,
		UserID:     req.UserID,
		PlanID:     req.PlanID,
		Amount:     formatAmount(req.Amount),
		Currency:   strings.ToUpper(currency),
		Status:     models.TRANSACTION_PENDING,
		Provider:   provider,
		Trial:      req.Trial,
		PaymentURL: checkout.PaymentURL,
		CreatedAt:  s.now(),
	}
	if err := s.transactions.Create(ctx, tx); err != nil {
		metrics.PaymentInitiations.WithLabelValues(provider, "error").Inc()
		log.Errorf("[Billing] failed to store pending %s transaction %s: %v", provider, tx.ID, err)
		return nil, fmt.Errorf("store pending transaction: %w", err)
	}

	metrics.PaymentInitiations.WithLabelValues(provider, "created").Inc()
	return checkout, nil
}

// HandleWebhook runs verify, dedup, classify and apply for one delivery.
// Invalid signatures never reach the transaction or user stores.
func (s *Service) HandleWebhook(ctx context.Context, d WebhookDelivery) (*WebhookResult, error) {
	reg, ok := s.webhooks[d.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, d.Provider)
	}
	if reg.secret == "" {
		metrics.WebhookEvents.WithLabelValues(d.Provider, "not_configured").Inc()
		return nil, fmt.Errorf("%w: %s", ErrWebhookNotConfigured, d.Provider)
	}
	if strings.TrimSpace(d.Signature) == "" {
		metrics.WebhookEvents.WithLabelValues(d.Provider, "invalid_signature").Inc()
		s.recordRejected(ctx, d, ErrMissingSignature)
		return nil, ErrMissingSignature
	}
	if !reg.adapter.Verify(d.Payload, d.Signature, reg.secret) {
		metrics.WebhookEvents.WithLabelValues(d.Provider, "invalid_signature").Inc()
		log.Warnf("[Billing] %s webhook signature mismatch", d.Provider)
		s.recordRejected(ctx, d, ErrInvalidSignature)
		return nil, ErrInvalidSignature
	}

	ev, err := reg.adapter.Classify(d.Payload)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(d.Provider, "invalid_payload").Inc()
		s.recordRejected(ctx, d, err)
		return nil, err
	}
	if d.EventID != "" {
		ev.EventID = d.EventID
	}

	created, stored, err := s.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        d.Provider,
		ProviderEventID: ev.EventID,
		EventType:       ev.EventType,
		PayloadJSON:     string(d.Payload),
		SignatureValid:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("record webhook event: %w", err)
	}
	ev.EventID = stored.ProviderEventID
	if !created && stored.IsHandled() {
		metrics.WebhookEvents.WithLabelValues(d.Provider, "duplicate").Inc()
		log.Infof("[Billing] duplicate %s webhook %s acknowledged", d.Provider, ev.EventID)
		return &WebhookResult{Event: ev, Duplicate: true}, nil
	}

	applyErr := s.ApplyOutcome(ctx, ev, datatypes.JSON(d.Payload))
	if err := s.MarkWebhookProcessed(ctx, d.Provider, ev.EventID, applyErr); err != nil {
		log.Errorf("[Billing] failed to mark %s webhook %s processed: %v", d.Provider, ev.EventID, err)
	}
	if applyErr != nil {
		metrics.WebhookEvents.WithLabelValues(d.Provider, "error").Inc()
		return &WebhookResult{Event: ev}, applyErr
	}

	s.scheduleArchive(ctx, d.Provider, ev.EventID, d.Payload)
	metrics.WebhookEvents.WithLabelValues(d.Provider, string(ev.Outcome)).Inc()
	return &WebhookResult{Event: ev}, nil
}

// recordRejected keeps a trace of deliveries that failed verification or parsing.
// They live under their own "rejected:" key so they never touch the dedup record
// of a genuine delivery, and a repeated rejection leaves the first trace as is.
func (s *Service) recordRejected(ctx context.Context, d WebhookDelivery, reason error) {
	created, stored, err := s.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        d.Provider,
		ProviderEventID: rejectedEventID(d.Payload),
		EventType:       "rejected",
		PayloadJSON:     string(d.Payload),
		SignatureValid:  errors.Is(reason, ErrInvalidPayload),
	})
	if err != nil {
		log.Errorf("[Billing] failed to record rejected %s webhook: %v", d.Provider, err)
		return
	}
	if !created {
		return
	}
	if err := s.MarkWebhookProcessed(ctx, d.Provider, stored.ProviderEventID, reason); err != nil {
		log.Errorf("[Billing] failed to mark rejected %s webhook: %v", d.Provider, err)
	}
}

func (s *Service) scheduleArchive(ctx context.Context, provider, eventID string, payload []byte) {
	if !s.archive || s.scheduler == nil {
		return
	}
	err := s.scheduler.ScheduleArchive(ctx, ArchiveRequest{
		Provider:   provider,
		EventID:    eventID,
		Payload:    string(payload),
		ReceivedAt: s.now(),
	})
	if err != nil {
		log.Warnf("[Billing] failed to schedule archive of %s webhook %s: %v", provider, eventID, err)
	}
}

// ApplyOutcome writes a classified event to the transaction and user stores.
func (s *Service) ApplyOutcome(ctx context.Context, ev *ClassifiedEvent, details datatypes.JSON) error {
	switch ev.Outcome {
	case OutcomePaymentConfirmed:
		return s.confirmPayment(ctx, ev, details)
	case OutcomePaymentFailed:
		if ev.TransactionID == "" {
			log.Warnf("[Billing] %s failure event %s without transaction id", ev.Provider, ev.EventID)
			return nil
		}
		if ev.Retryable {
			s.recordPassthrough(ctx, ev)
			log.Infof("[Billing] %s attempt on %s failed, transaction stays open", ev.Provider, ev.TransactionID)
			return nil
		}
		tx, err := s.settle(ctx, ev, models.TRANSACTION_FAILED, details)
		if errors.Is(err, ErrTransactionNotFound) {
			log.Warnf("[Billing] %s failure for unknown transaction %s ignored", ev.Provider, ev.TransactionID)
			return nil
		}
		if err != nil {
			return err
		}
		log.Infof("[Billing] %s transaction %s is %s", ev.Provider, tx.ID, tx.Status)
		return nil
	case OutcomeSubscriptionCancelled:
		if ev.UserID == "" {
			return fmt.Errorf("%w: cancellation without userId", ErrInvalidPayload)
		}
		if err := s.users.UpsertSubscription(ctx, ev.UserID, models.SubscriptionUpdate{Status: models.SUBSCRIPTION_INACTIVE}); err != nil {
			return fmt.Errorf("cancel subscription of %s: %w", ev.UserID, err)
		}
		log.Infof("[Billing] subscription of user %s cancelled via %s", ev.UserID, ev.Provider)
		return nil
	default:
		s.recordPassthrough(ctx, ev)
		log.Infof("[Billing] unhandled %s event %q acknowledged", ev.Provider, ev.EventType)
		return nil
	}
}

// recordPassthrough stores an intermediate provider status on an open transaction.
func (s *Service) recordPassthrough(ctx context.Context, ev *ClassifiedEvent) {
	if ev.TransactionID == "" || ev.ProviderStatus == "" {
		return
	}
	_, err := s.transactions.Transition(ctx, ev.TransactionID, ev.ProviderStatus, nil, s.now())
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		log.Warnf("[Billing] failed to store %s status %q on %s: %v", ev.Provider, ev.ProviderStatus, ev.TransactionID, err)
	}
}

func (s *Service) confirmPayment(ctx context.Context, ev *ClassifiedEvent, details datatypes.JSON) error {
	var tx *models.Transaction
	if ev.TransactionID != "" {
		var err error
		tx, err = s.settle(ctx, ev, models.TRANSACTION_COMPLETED, details)
		if err != nil {
			return err
		}
		if tx.Status != models.TRANSACTION_COMPLETED {
			log.Warnf("[Billing] %s confirmation for transaction %s already %s, left unchanged", ev.Provider, tx.ID, tx.Status)
			return nil
		}
	}

	userID, planID, trial := ev.UserID, ev.PlanID, ev.Trial
	base := s.now()
	if tx != nil {
		if userID == "" {
			userID = tx.UserID
		}
		if planID == "" {
			planID = tx.PlanID
		}
		trial = trial || tx.Trial
		if tx.CompletedAt != nil {
			base = *tx.CompletedAt
		}
	}
	if userID == "" {
		return fmt.Errorf("%w: confirmation without userId", ErrInvalidPayload)
	}

	if err := s.users.UpsertSubscription(ctx, userID, SubscriptionFor(planID, trial, base)); err != nil {
		log.Errorf("[Billing] subscription update for user %s failed: %v", userID, err)
		if tx != nil && s.scheduler != nil {
			if serr := s.scheduler.ScheduleReconcile(ctx, ReconcileRequest{TransactionID: tx.ID, UserID: userID}); serr != nil {
				log.Errorf("[Billing] failed to schedule reconcile for %s: %v", tx.ID, serr)
			}
		}
		return fmt.Errorf("update subscription of %s: %w", userID, err)
	}
	log.Infof("[Billing] user %s subscribed to %s via %s (trial=%t)", userID, planID, ev.Provider, trial)
	return nil
}

// settle moves the event's transaction to status, creating it when the provider
// reports a payment we never saw initiated.
func (s *Service) settle(ctx context.Context, ev *ClassifiedEvent, status string, details datatypes.JSON) (*models.Transaction, error) {
	now := s.now()
	tx, err := s.transactions.Transition(ctx, ev.TransactionID, status, details, now)
	if err == nil {
		return tx, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("update transaction %s: %w", ev.TransactionID, err)
	}
	if ev.UserID == "" {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, ev.TransactionID)
	}

	record := &models.Transaction{
		ID:             ev.TransactionID,
		UserID:         ev.UserID,
		PlanID:         ev.PlanID,
		Amount:         ev.Amount,
		Currency:       strings.ToUpper(ev.Currency),
		Status:         status,
		Provider:       ev.Provider,
		Trial:          ev.Trial,
		PaymentDetails: details,
		CreatedAt:      now,
	}
	if status == models.TRANSACTION_COMPLETED {
		record.CompletedAt = &now
	}
	created, err := s.transactions.CreateIfNotExists(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("create transaction %s: %w", ev.TransactionID, err)
	}
	if created {
		return record, nil
	}
	// a concurrent delivery created it first
	tx, err = s.transactions.Transition(ctx, ev.TransactionID, status, details, now)
	if err != nil {
		return nil, fmt.Errorf("update transaction %s: %w", ev.TransactionID, err)
	}
	return tx, nil
}

// ReconcileTransaction re-applies a completed transaction to its user.
// Used by the background worker after a failed subscription write.
func (s *Service) ReconcileTransaction(ctx context.Context, transactionID string) error {
	tx, err := s.transactions.GetByID(ctx, transactionID)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrTransactionNotFound, transactionID)
	}
	if err != nil {
		return err
	}
	if tx.Status != models.TRANSACTION_COMPLETED {
		return nil
	}
	base := s.now()
	if tx.CompletedAt != nil {
		base = *tx.CompletedAt
	}
	return s.users.UpsertSubscription(ctx, tx.UserID, SubscriptionFor(tx.PlanID, tx.Trial, base))
}

// SubscriptionFor computes the subscription granted by a payment completed at base.
func SubscriptionFor(planID string, trial bool, base time.Time) models.SubscriptionUpdate {
	end := base.Add(SubscriptionPeriod)
	update := models.SubscriptionUpdate{
		Status:  models.SUBSCRIPTION_ACTIVE,
		Plan:    planID,
		EndDate: &end,
	}
	if trial {
		trialEnd := base.Add(TrialPeriod)
		update.Status = models.SUBSCRIPTION_TRIAL
		update.TrialEndDate = &trialEnd
	}
	return update
}

// LatestTransaction returns the newest transaction of a user.
func (s *Service) LatestTransaction(ctx context.Context, userID string) (*models.Transaction, error) {
	tx, err := s.transactions.LatestByUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrTransactionNotFound
	}
	return tx, err
}

// Transactions returns up to limit transactions of a user, newest first.
func (s *Service) Transactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	return s.transactions.ListByUser(ctx, userID, limit)
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		eventID = "hash:" + payloadHash([]byte(in.PayloadJSON))
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.events.CreateIfNotExists(ctx, event)
}

func payloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func rejectedEventID(payload []byte) string {
	return "rejected:" + payloadHash(payload)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, provider, providerEventID string, processingErr error) error {
	if providerEventID == "" {
		return errors.New("provider_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.events.MarkProcessed(ctx, provider, providerEventID, errMsg)
}
