package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/forumly/forumcore/internal/domain/faults"
	"github.com/forumly/forumcore/internal/domain/model"
	"github.com/forumly/forumcore/internal/infra/metrics"
)

type Queue interface {
	ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]model.PendingReconciliation, error)
	Count(ctx context.Context) (int64, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, intentID string) (model.EntitlementRecord, error)
}

// Job retries entitlement writes for captured payments. It never charges or
// re-confirms; rows whose charge outcome is unknown are settled through a
// gateway lookup first.
type Job struct {
	queue      Queue
	reconciler Reconciler
	batchSize  int
	lease      time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// Failed counts unverified rows the gateway reported as not captured.
type Result struct {
	Claimed    int
	Reconciled int
	Pending    int
	Failed     int
}

func New(queue Queue, reconciler Reconciler, batchSize int, lease time.Duration, logger *zap.Logger) *Job {
	if batchSize <= 0 {
		batchSize = 50
	}
	if lease <= 0 {
		lease = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		queue:      queue,
		reconciler: reconciler,
		batchSize:  batchSize,
		lease:      lease,
		now:        time.Now,
		logger:     logger,
	}
}

func (j *Job) Run(ctx context.Context) (Result, error) {
	if j.queue == nil || j.reconciler == nil {
		return Result{}, nil
	}

	due, err := j.queue.ClaimDue(ctx, j.now().UTC(), j.batchSize, j.lease)
	if err != nil {
		return Result{}, fmt.Errorf("claim due reconciliations: %w", err)
	}

	result := Result{Claimed: len(due)}
	for _, item := range due {
		if ctx.Err() != nil {
			break
		}
		_, err := j.reconciler.Reconcile(ctx, item.IntentID)
		switch {
		case err == nil:
			result.Reconciled++
		case errors.Is(err, faults.ErrReconciliation), errors.Is(err, faults.ErrAlreadyMember):
			result.Pending++
		case errors.Is(err, faults.ErrPaymentDeclined):
			result.Failed++
			j.logger.Info("unverified payment was not captured",
				zap.String("intent_id", item.IntentID),
				zap.String("user_id", item.UserID),
			)
		default:
			result.Pending++
			j.logger.Warn("reconcile attempt failed",
				zap.String("intent_id", item.IntentID),
				zap.String("user_id", item.UserID),
				zap.Int("attempts", item.Attempts),
				zap.Error(err),
			)
		}
	}

	if count, err := j.queue.Count(ctx); err == nil {
		metrics.ReconciliationsPending.Set(float64(count))
	}
	if result.Claimed > 0 {
		j.logger.Info("reconcile pass completed",
			zap.Int("claimed", result.Claimed),
			zap.Int("reconciled", result.Reconciled),
			zap.Int("pending", result.Pending),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}
