package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/forumly/forumcore/internal/domain/enums"
	"github.com/forumly/forumcore/internal/domain/faults"
	"github.com/forumly/forumcore/internal/domain/model"
	"github.com/forumly/forumcore/internal/domain/rules"
	"github.com/forumly/forumcore/internal/infra/metrics"
	"github.com/forumly/forumcore/internal/services/rate"
)

type IntentStore interface {
	Create(ctx context.Context, intent model.MembershipIntent) error
	Get(ctx context.Context, intentID string) (model.MembershipIntent, error)
	Save(ctx context.Context, intent model.MembershipIntent) error
	ReleaseSlot(ctx context.Context, userID, intentID string) error
}

// EntitlementStore reads and writes the remote user record. Get may serve a
// cached snapshot; Refresh always reads through.
type EntitlementStore interface {
	Get(ctx context.Context, userID string) (model.User, error)
	Refresh(ctx context.Context, userID string) (model.User, error)
	WriteMembership(ctx context.Context, record model.EntitlementRecord) error
}

type Gateway interface {
	CreatePaymentIntent(ctx context.Context, amount decimal.Decimal) (string, error)
	CreatePaymentMethod(ctx context.Context, details model.PaymentDetails) (string, error)
	ConfirmPayment(ctx context.Context, secret string, methodID string) (model.PaymentResult, error)
	LookupPayment(ctx context.Context, secret string) (model.PaymentResult, error)
}

type ReconcileQueue interface {
	Enqueue(ctx context.Context, item model.PendingReconciliation) error
	Complete(ctx context.Context, intentID string) error
	RecordFailure(ctx context.Context, intentID string, lastError string, nextAttemptAt time.Time) error
	Get(ctx context.Context, intentID string) (model.PendingReconciliation, error)
	ListByUser(ctx context.Context, userID string) ([]model.PendingReconciliation, error)
}

type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type RateLimiter interface {
	Allow(ctx context.Context, action rate.Action, userID string) (int64, bool, error)
}

// SettleTimeout bounds the writes that follow a gateway charge, which run
// detached from the caller's context.
type Config struct {
	Badge         string
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	SettleTimeout time.Duration
}

type Service struct {
	intents      IntentStore
	entitlements EntitlementStore
	gateway      Gateway
	queue        ReconcileQueue
	locker       Locker
	limiter      RateLimiter
	cfg          Config
	logger       *zap.Logger
	now          func() time.Time
	newID        func() string
}

type Dependencies struct {
	Intents      IntentStore
	Entitlements EntitlementStore
	Gateway      Gateway
	Queue        ReconcileQueue
	Locker       Locker
	Limiter      RateLimiter
	Config       Config
	Logger       *zap.Logger
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if strings.TrimSpace(cfg.Badge) == "" {
		cfg.Badge = enums.BadgeGold
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 30 * time.Second
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = time.Hour
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = 30 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		intents:      deps.Intents,
		entitlements: deps.Entitlements,
		gateway:      deps.Gateway,
		queue:        deps.Queue,
		locker:       deps.Locker,
		limiter:      deps.Limiter,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// BeginIntent opens a membership intent for userID and asks the gateway for
// a payment secret. The already-member check uses the cached snapshot. An
// earlier charge still in the reconcile outbox blocks a new intent.
func (s *Service) BeginIntent(ctx context.Context, userID string, amount decimal.Decimal) (model.MembershipIntent, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return model.MembershipIntent{}, faults.ErrInvalidInput
	}
	if err := rules.ValidAmount(amount); err != nil {
		return model.MembershipIntent{}, err
	}
	if err := s.allow(ctx, rate.ActionIntent, userID); err != nil {
		return model.MembershipIntent{}, err
	}

	user, err := s.entitlements.Get(ctx, userID)
	if err != nil {
		return model.MembershipIntent{}, fmt.Errorf("load entitlement snapshot: %w", err)
	}
	if user.Entitlement.IsMember {
		return model.MembershipIntent{}, faults.ErrAlreadyMember
	}
	if err := s.ensureNothingSettling(ctx, userID); err != nil {
		return model.MembershipIntent{}, err
	}

	now := s.now().UTC()
	intent := model.MembershipIntent{
		ID:        s.newID(),
		UserID:    userID,
		Amount:    amount,
		State:     enums.IntentStateCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.intents.Create(ctx, intent); err != nil {
		return model.MembershipIntent{}, err
	}

	secret, err := s.gateway.CreatePaymentIntent(ctx, amount)
	if err != nil {
		return s.fail(ctx, intent, gatewayFailureEvent(err, rules.EventGatewayUnavailable), err)
	}

	intent.GatewaySecret = secret
	if _, err := s.transition(&intent, rules.EventSecretIssued); err != nil {
		return intent, err
	}
	if err := s.intents.Save(ctx, intent); err != nil {
		return intent, err
	}
	return intent, nil
}

// ensureNothingSettling refuses a new intent while a charge for userID waits
// in the reconcile outbox. With the outbox unreachable the intent slot is
// the only guard left.
func (s *Service) ensureNothingSettling(ctx context.Context, userID string) error {
	pending, err := s.queue.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Warn("list pending reconciliations before new intent", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	if len(pending) > 0 {
		return fmt.Errorf("%w: payment for intent %s is still settling", faults.ErrIntentInProgress, pending[0].IntentID)
	}
	return nil
}

// Confirm charges the card for intentID. The already-member guard is
// re-checked against a fresh snapshot before any gateway call.
func (s *Service) Confirm(ctx context.Context, intentID string, actorID string, details model.PaymentDetails) (model.MembershipIntent, error) {
	intent, err := s.Intent(ctx, intentID, actorID)
	if err != nil {
		return model.MembershipIntent{}, err
	}

	var out model.MembershipIntent
	err = s.withUserLock(ctx, intent.UserID, func(ctx context.Context) error {
		var confirmErr error
		out, confirmErr = s.confirmLocked(ctx, intent.ID, details)
		return confirmErr
	})
	return out, err
}

func (s *Service) confirmLocked(ctx context.Context, intentID string, details model.PaymentDetails) (model.MembershipIntent, error) {
	intent, err := s.intents.Get(ctx, intentID)
	if err != nil {
		return model.MembershipIntent{}, err
	}
	if !intent.State.Chargeable() {
		return intent, fmt.Errorf("%w: confirm on %s", faults.ErrInvalidTransition, intent.State)
	}

	user, err := s.entitlements.Refresh(ctx, intent.UserID)
	if err != nil {
		return intent, fmt.Errorf("refresh entitlement snapshot: %w", err)
	}
	if user.Entitlement.IsMember {
		return s.fail(ctx, intent, rules.EventMemberDetected, faults.ErrAlreadyMember)
	}

	if strings.TrimSpace(details.BillingName) == "" {
		details.BillingName = user.DisplayName
	}

	// From here on the card may be charged, so the caller going away must not
	// cut the flow short. The gateway client bounds each call on its own.
	detached := context.WithoutCancel(ctx)
	result, event, cause := s.charge(detached, intent, details)

	settleCtx, cancel := context.WithTimeout(detached, s.cfg.SettleTimeout)
	defer cancel()
	switch event {
	case "":
	case rules.EventOutcomeUnknown:
		return s.awaitVerification(settleCtx, intent, cause)
	default:
		return s.fail(settleCtx, intent, event, cause)
	}

	confirmedAt := s.now().UTC().Truncate(time.Millisecond)
	intent.PaymentID = result.PaymentID
	intent.ConfirmedAt = &confirmedAt
	return s.markConfirmed(settleCtx, intent)
}

// charge tokenizes the card and confirms the payment. An empty event means
// the payment was captured. An ambiguous confirm is checked with a lookup,
// and EventOutcomeUnknown is returned when that cannot settle it either.
func (s *Service) charge(ctx context.Context, intent model.MembershipIntent, details model.PaymentDetails) (model.PaymentResult, rules.IntentEvent, error) {
	methodID, err := s.gateway.CreatePaymentMethod(ctx, details)
	if err != nil {
		return model.PaymentResult{}, gatewayFailureEvent(err, rules.EventPaymentMethodRejected), err
	}

	result, err := s.gateway.ConfirmPayment(ctx, intent.GatewaySecret, methodID)
	if err != nil && isAmbiguous(err) {
		looked, lookupErr := s.gateway.LookupPayment(ctx, intent.GatewaySecret)
		switch {
		case lookupErr != nil:
			return model.PaymentResult{}, rules.EventOutcomeUnknown, fmt.Errorf("%w (lookup: %v)", err, lookupErr)
		case looked.InFlight():
			return looked, rules.EventOutcomeUnknown, err
		case looked.Succeeded():
			result, err = looked, nil
		}
	}
	if err != nil {
		return result, gatewayFailureEvent(err, rules.EventPaymentDeclined), err
	}
	if result.InFlight() {
		return result, rules.EventOutcomeUnknown, fmt.Errorf("payment status %q", result.Status)
	}
	if !result.Succeeded() {
		return result, rules.EventPaymentDeclined, faults.NewGatewayError(faults.ErrPaymentDeclined, "", fmt.Errorf("payment status %q", result.Status))
	}
	return result, "", nil
}

// awaitVerification parks an intent whose charge the gateway could not
// report on. It keeps the slot and is queued for a gateway lookup.
func (s *Service) awaitVerification(ctx context.Context, intent model.MembershipIntent, cause error) (model.MembershipIntent, error) {
	tr, err := s.transition(&intent, rules.EventOutcomeUnknown)
	if err != nil {
		return intent, err
	}
	intent.FailureText = cause.Error()

	log := s.reconcileLogger(intent)
	log.Error("payment outcome unknown, queued for gateway verification", zap.Error(cause))
	metrics.ReconcileAttempts.WithLabelValues("unverified").Inc()

	if err := s.intents.Save(ctx, intent); err != nil {
		log.Error("save verifying intent", zap.Error(err))
	}
	if tr.Has(rules.EffectEnqueueVerify) {
		item := pendingFor(intent)
		item.NextAttemptAt = s.now().UTC().Add(s.cfg.BaseBackoff)
		if err := s.queue.Enqueue(ctx, item); err != nil {
			log.Error("enqueue payment verification", zap.Error(err))
		}
	}
	return intent, fmt.Errorf("%w: %w", faults.ErrPaymentUnverified, cause)
}

// markConfirmed records a captured payment and queues its entitlement write.
// Persistence failures are logged; the intent is Confirmed regardless.
func (s *Service) markConfirmed(ctx context.Context, intent model.MembershipIntent) (model.MembershipIntent, error) {
	tr, err := s.transition(&intent, rules.EventPaymentSucceeded)
	if err != nil {
		return intent, err
	}
	intent.FailureText = ""

	if err := s.intents.Save(ctx, intent); err != nil {
		s.reconcileLogger(intent).Error("save confirmed intent", zap.Error(err))
	}
	if tr.Has(rules.EffectEnqueueReconcile) {
		if err := s.queue.Enqueue(ctx, pendingFor(intent)); err != nil {
			s.reconcileLogger(intent).Error("enqueue reconciliation for captured payment", zap.Error(err))
		}
	}
	return intent, nil
}

// Reconcile records the entitlement for a confirmed intent. Repeated calls
// converge on the same record.
func (s *Service) Reconcile(ctx context.Context, intentID string) (model.EntitlementRecord, error) {
	intent, err := s.loadForReconcile(ctx, intentID)
	if err != nil {
		return model.EntitlementRecord{}, err
	}

	var out model.EntitlementRecord
	err = s.withUserLock(ctx, intent.UserID, func(ctx context.Context) error {
		var reconcileErr error
		out, reconcileErr = s.reconcileLocked(ctx, intentID)
		return reconcileErr
	})
	return out, err
}

func (s *Service) reconcileLocked(ctx context.Context, intentID string) (model.EntitlementRecord, error) {
	intent, err := s.loadForReconcile(ctx, intentID)
	if err != nil {
		return model.EntitlementRecord{}, err
	}
	switch {
	case intent.State == enums.IntentStateReconciled && intent.Entitlement != nil:
		// An earlier run may have landed the entitlement but lost the dequeue.
		s.clearQueued(ctx, intent)
		return *intent.Entitlement, nil
	case intent.State == enums.IntentStateFailed:
		s.clearQueued(ctx, intent)
	case intent.State == enums.IntentStateVerifying:
		if intent, err = s.verifyPayment(ctx, intent); err != nil {
			return model.EntitlementRecord{}, err
		}
	}
	if intent.State != enums.IntentStateConfirmed || intent.ConfirmedAt == nil {
		return model.EntitlementRecord{}, fmt.Errorf("%w: reconcile on %s", faults.ErrInvalidTransition, intent.State)
	}

	paidAt := *intent.ConfirmedAt
	record := model.EntitlementRecord{
		UserID:     intent.UserID,
		IsMember:   true,
		Badge:      s.cfg.Badge,
		PaidAt:     &paidAt,
		PaidAmount: intent.Amount,
	}

	user, err := s.entitlements.Refresh(ctx, intent.UserID)
	if err != nil {
		return model.EntitlementRecord{}, s.reconcileFailed(ctx, intent, err)
	}
	if user.Entitlement.IsMember {
		if sameMembership(user.Entitlement, record) {
			return s.finishReconcile(ctx, intent, record)
		}
		s.reconcileLogger(intent).Error("captured payment for a user who is already a member, manual review required",
			zap.String("badge", user.Entitlement.Badge),
			zap.String("paid_amount", user.Entitlement.PaidAmount.String()),
		)
		s.recordQueueFailure(ctx, intent, faults.ErrAlreadyMember.Error(), s.cfg.MaxBackoff)
		metrics.ReconcileAttempts.WithLabelValues("already_member").Inc()
		return model.EntitlementRecord{}, faults.ErrAlreadyMember
	}

	if err := s.entitlements.WriteMembership(ctx, record); err != nil {
		return model.EntitlementRecord{}, s.reconcileFailed(ctx, intent, err)
	}
	return s.finishReconcile(ctx, intent, record)
}

func (s *Service) finishReconcile(ctx context.Context, intent model.MembershipIntent, record model.EntitlementRecord) (model.EntitlementRecord, error) {
	reconciledAt := s.now().UTC()
	intent.ReconciledAt = &reconciledAt
	intent.Entitlement = &record
	intent.FailureText = ""
	tr, err := s.transition(&intent, rules.EventEntitlementRecorded)
	if err != nil {
		return model.EntitlementRecord{}, err
	}

	if err := s.intents.Save(ctx, intent); err != nil {
		s.reconcileLogger(intent).Warn("save reconciled intent", zap.Error(err))
	}
	if tr.Has(rules.EffectClearReconcile) {
		s.clearQueued(ctx, intent)
	}
	if tr.Has(rules.EffectReleaseSlot) {
		if err := s.intents.ReleaseSlot(ctx, intent.UserID, intent.ID); err != nil {
			s.logger.Warn("release intent slot", zap.String("intent_id", intent.ID), zap.Error(err))
		}
	}

	metrics.ReconcileAttempts.WithLabelValues("ok").Inc()
	s.logger.Info("membership reconciled",
		zap.String("intent_id", intent.ID),
		zap.String("user_id", intent.UserID),
		zap.String("amount", intent.Amount.String()),
	)
	return record, nil
}

// verifyPayment settles a Verifying intent from the gateway's record of the
// charge. A capture moves it to Confirmed. A payment the gateway finished
// without capturing fails it and frees the slot.
func (s *Service) verifyPayment(ctx context.Context, intent model.MembershipIntent) (model.MembershipIntent, error) {
	log := s.reconcileLogger(intent)
	result, err := s.gateway.LookupPayment(context.WithoutCancel(ctx), intent.GatewaySecret)
	if err == nil && result.InFlight() {
		err = fmt.Errorf("payment status %q", result.Status)
	}
	if err != nil {
		log.Warn("payment verification inconclusive", zap.Error(err))
		metrics.ReconcileAttempts.WithLabelValues("unverified").Inc()
		s.recordQueueFailure(ctx, intent, err.Error(), 0)
		return intent, fmt.Errorf("%w: %w", faults.ErrPaymentUnverified, err)
	}

	if !result.Succeeded() {
		log.Info("payment verification found no capture", zap.String("status", result.Status))
		declined := faults.NewGatewayError(faults.ErrPaymentDeclined, "", fmt.Errorf("payment status %q", result.Status))
		return s.fail(ctx, intent, rules.EventPaymentDeclined, declined)
	}

	confirmedAt := s.now().UTC().Truncate(time.Millisecond)
	intent.PaymentID = result.PaymentID
	intent.ConfirmedAt = &confirmedAt
	log.Info("payment verified as captured", zap.String("payment_id", result.PaymentID))
	return s.markConfirmed(ctx, intent)
}

func (s *Service) clearQueued(ctx context.Context, intent model.MembershipIntent) {
	if err := s.queue.Complete(ctx, intent.ID); err != nil {
		s.reconcileLogger(intent).Warn("clear pending reconciliation", zap.Error(err))
	}
}

// reconcileFailed keeps the intent Confirmed and schedules another attempt.
func (s *Service) reconcileFailed(ctx context.Context, intent model.MembershipIntent, cause error) error {
	tr, err := s.transition(&intent, rules.EventEntitlementWriteFail)
	if err != nil {
		return err
	}
	intent.FailureText = cause.Error()

	s.reconcileLogger(intent).Error("entitlement write failed after payment capture", zap.Error(cause))
	metrics.ReconcileAttempts.WithLabelValues("pending").Inc()

	if err := s.intents.Save(ctx, intent); err != nil {
		s.reconcileLogger(intent).Error("save pending intent", zap.Error(err))
	}
	if tr.Has(rules.EffectRecordReconcileErr) {
		s.recordQueueFailure(ctx, intent, cause.Error(), 0)
	}
	return fmt.Errorf("%w: %w", faults.ErrReconciliationPending, cause)
}

func (s *Service) recordQueueFailure(ctx context.Context, intent model.MembershipIntent, message string, delay time.Duration) {
	attempts := 0
	if pending, err := s.queue.Get(ctx, intent.ID); err == nil {
		attempts = pending.Attempts
	} else if errors.Is(err, faults.ErrIntentNotFound) {
		if err := s.queue.Enqueue(ctx, pendingFor(intent)); err != nil {
			s.reconcileLogger(intent).Error("re-enqueue reconciliation", zap.Error(err))
			return
		}
	}
	if delay <= 0 {
		delay = Backoff(attempts, s.cfg.BaseBackoff, s.cfg.MaxBackoff)
	}
	if err := s.queue.RecordFailure(ctx, intent.ID, message, s.now().UTC().Add(delay)); err != nil {
		s.reconcileLogger(intent).Error("record reconciliation failure", zap.Error(err))
	}
}

// Abandon cancels an intent that has not been charged yet. An intent whose
// charge may have landed cannot be abandoned.
func (s *Service) Abandon(ctx context.Context, intentID string, actorID string) (model.MembershipIntent, error) {
	intent, err := s.Intent(ctx, intentID, actorID)
	if err != nil {
		return model.MembershipIntent{}, err
	}

	var out model.MembershipIntent
	err = s.withUserLock(ctx, intent.UserID, func(ctx context.Context) error {
		current, err := s.intents.Get(ctx, intent.ID)
		if err != nil {
			return err
		}
		switch current.State {
		case enums.IntentStateConfirmed:
			out = current
			return faults.ErrReconciliationPending
		case enums.IntentStateVerifying:
			out = current
			return faults.ErrPaymentUnverified
		}
		var abandonErr error
		out, abandonErr = s.fail(ctx, current, rules.EventAbandoned, nil)
		return abandonErr
	})
	return out, err
}

// Intent returns the intent when actorID owns it.
func (s *Service) Intent(ctx context.Context, intentID string, actorID string) (model.MembershipIntent, error) {
	intent, err := s.intents.Get(ctx, strings.TrimSpace(intentID))
	if err != nil {
		return model.MembershipIntent{}, err
	}
	if !strings.EqualFold(strings.TrimSpace(actorID), intent.UserID) {
		return model.MembershipIntent{}, faults.ErrForbidden
	}
	return intent, nil
}

// Pending lists the caller's captured payments that still await their entitlement.
func (s *Service) Pending(ctx context.Context, userID string) ([]model.PendingReconciliation, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, faults.ErrInvalidInput
	}
	return s.queue.ListByUser(ctx, userID)
}

// loadForReconcile falls back to the durable queue once the cached intent expired.
func (s *Service) loadForReconcile(ctx context.Context, intentID string) (model.MembershipIntent, error) {
	intentID = strings.TrimSpace(intentID)
	intent, err := s.intents.Get(ctx, intentID)
	if err == nil {
		return intent, nil
	}
	if !errors.Is(err, faults.ErrIntentNotFound) {
		return model.MembershipIntent{}, err
	}

	pending, qErr := s.queue.Get(ctx, intentID)
	if qErr != nil {
		return model.MembershipIntent{}, qErr
	}
	if pending.VerifyPayment {
		return model.MembershipIntent{
			ID:            pending.IntentID,
			UserID:        pending.UserID,
			Amount:        pending.Amount,
			GatewaySecret: pending.GatewaySecret,
			State:         enums.IntentStateVerifying,
			CreatedAt:     pending.CreatedAt,
			UpdatedAt:     s.now().UTC(),
		}, nil
	}
	confirmedAt := pending.ConfirmedAt.UTC()
	return model.MembershipIntent{
		ID:          pending.IntentID,
		UserID:      pending.UserID,
		Amount:      pending.Amount,
		PaymentID:   pending.PaymentID,
		State:       enums.IntentStateConfirmed,
		CreatedAt:   pending.CreatedAt,
		UpdatedAt:   s.now().UTC(),
		ConfirmedAt: &confirmedAt,
	}, nil
}

// fail moves intent to Failed for event, runs the transition's cleanup and returns cause.
func (s *Service) fail(ctx context.Context, intent model.MembershipIntent, event rules.IntentEvent, cause error) (model.MembershipIntent, error) {
	tr, err := s.transition(&intent, event)
	if err != nil {
		return intent, err
	}
	if cause != nil {
		intent.FailureText = faults.UserMessage(cause)
	}

	if err := s.intents.Save(ctx, intent); err != nil {
		s.logger.Warn("save failed intent", zap.String("intent_id", intent.ID), zap.Error(err))
	}
	if tr.Has(rules.EffectClearReconcile) {
		s.clearQueued(ctx, intent)
	}
	if tr.Has(rules.EffectReleaseSlot) {
		if err := s.intents.ReleaseSlot(ctx, intent.UserID, intent.ID); err != nil {
			s.logger.Warn("release intent slot", zap.String("intent_id", intent.ID), zap.Error(err))
		}
	}
	return intent, cause
}

func (s *Service) transition(intent *model.MembershipIntent, event rules.IntentEvent) (rules.IntentTransition, error) {
	tr, err := rules.ApplyIntent(intent.State, event)
	if err != nil {
		return tr, err
	}
	intent.State = tr.Next
	if tr.Reason != enums.FailureReasonNone {
		intent.FailureReason = tr.Reason
	}
	intent.UpdatedAt = s.now().UTC()
	metrics.IntentTransitions.WithLabelValues(string(tr.Next), string(tr.Reason)).Inc()
	return tr, nil
}

func (s *Service) withUserLock(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.WithLock(ctx, "membership:"+strings.ToLower(strings.TrimSpace(userID)), fn)
}

func (s *Service) allow(ctx context.Context, action rate.Action, userID string) error {
	if s.limiter == nil {
		return nil
	}
	retryAfter, allowed, err := s.limiter.Allow(ctx, action, userID)
	if err != nil {
		s.logger.Warn("rate limiter unavailable", zap.String("action", string(action)), zap.Error(err))
		return nil
	}
	if !allowed {
		return &faults.RateLimitError{RetryAfterSec: retryAfter}
	}
	return nil
}

func (s *Service) reconcileLogger(intent model.MembershipIntent) *zap.Logger {
	fields := []zap.Field{
		zap.String("intent_id", intent.ID),
		zap.String("user_id", intent.UserID),
		zap.String("amount", intent.Amount.String()),
		zap.String("payment_id", intent.PaymentID),
	}
	if intent.ConfirmedAt != nil {
		fields = append(fields, zap.Time("confirmed_at", *intent.ConfirmedAt))
	}
	return s.logger.With(fields...)
}

// Backoff doubles base per attempt, capped at max.
func Backoff(attempts int, base, maxDelay time.Duration) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	delay := base
	for i := 0; i < attempts && delay < maxDelay; i++ {
		delay *= 2
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// pendingFor builds the outbox row for intent. A Verifying intent carries
// the secret its gateway lookup needs.
func pendingFor(intent model.MembershipIntent) model.PendingReconciliation {
	confirmedAt := intent.UpdatedAt
	if intent.ConfirmedAt != nil {
		confirmedAt = *intent.ConfirmedAt
	}
	item := model.PendingReconciliation{
		IntentID:      intent.ID,
		UserID:        intent.UserID,
		Amount:        intent.Amount,
		PaymentID:     intent.PaymentID,
		ConfirmedAt:   confirmedAt,
		NextAttemptAt: confirmedAt,
	}
	if intent.State == enums.IntentStateVerifying {
		item.VerifyPayment = true
		item.GatewaySecret = intent.GatewaySecret
	}
	return item
}

// sameMembership reports whether current already holds record, as left by an
// earlier reconcile of the same intent.
func sameMembership(current, record model.EntitlementRecord) bool {
	if !current.IsMember || current.PaidAt == nil || record.PaidAt == nil {
		return false
	}
	if !current.PaidAmount.Equal(record.PaidAmount) {
		return false
	}
	return current.PaidAt.Sub(*record.PaidAt).Abs() < time.Second
}

func gatewayFailureEvent(err error, fallback rules.IntentEvent) rules.IntentEvent {
	switch {
	case errors.Is(err, faults.ErrTimeout):
		return rules.EventGatewayTimeout
	case errors.Is(err, faults.ErrGatewayUnavailable):
		return rules.EventGatewayUnavailable
	case errors.Is(err, faults.ErrPaymentMethodRejected):
		return rules.EventPaymentMethodRejected
	case errors.Is(err, faults.ErrPaymentDeclined):
		return rules.EventPaymentDeclined
	default:
		return fallback
	}
}

func isAmbiguous(err error) bool {
	return errors.Is(err, faults.ErrTimeout) || errors.Is(err, faults.ErrGatewayUnavailable)
}
