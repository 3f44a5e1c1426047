package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"booksync/internal/config"
	"booksync/internal/database"
	"booksync/internal/domain"
	"booksync/internal/logging"
	"booksync/internal/metrics"
	"booksync/internal/models"
	"booksync/internal/service"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Syncer executes one claimed task against the remote calendar.
type Syncer interface {
	Sync(ctx context.Context, task *models.SyncTask) (*service.SyncResult, error)
}

// CalendarWorker consumes calendar_sync_queue. Several workers may run
// against the same database; the conditional claim keeps them apart.
type CalendarWorker struct {
	id             string
	queue          domain.SyncQueue
	syncer         Syncer
	wake           domain.WakeListener
	redis          *redis.Client
	retryPolicy    RetryPolicy
	limiter        *rate.Limiter
	deadLetterKey  string
	pollInterval   time.Duration
	signalInterval time.Duration
	staleAfter     time.Duration
	batchSize      int
	now            func() time.Time
	oplog          *logging.Operational
	logger         *zerolog.Logger
}

// NewCalendarWorker builds a worker. redisClient and wake may be nil; the
// worker then relies on database hints and polling alone.
func NewCalendarWorker(queue domain.SyncQueue, syncer Syncer, redisClient *redis.Client, wake domain.WakeListener, cfg config.SyncConfig, oplog *logging.Operational, logger *zerolog.Logger) *CalendarWorker {
	retry := RetryPolicyFromConfig(cfg)
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Minute
	}
	if cfg.SignalInterval <= 0 {
		cfg.SignalInterval = 4 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}

	id := uuid.NewString()
	wl := logging.Component(logger, "calendar_worker").With().Str("worker_id", id).Logger()
	return &CalendarWorker{
		id:             id,
		queue:          queue,
		syncer:         syncer,
		wake:           wake,
		redis:          redisClient,
		retryPolicy:    retry,
		limiter:        rate.NewLimiter(limit, 1),
		deadLetterKey:  cfg.DeadLetterKey,
		pollInterval:   cfg.PollInterval,
		signalInterval: cfg.SignalInterval,
		staleAfter:     cfg.StaleAfter,
		batchSize:      cfg.BatchSize,
		now:            time.Now,
		oplog:          oplog,
		logger:         &wl,
	}
}

func (w *CalendarWorker) ID() string { return w.id }

// Start runs until ctx is done. Work is picked up on a wake signal, on a
// database hint found by the signal check, and on every poll tick.
func (w *CalendarWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Calendar worker started")
	defer w.logger.Info().Msg("Calendar worker stopped")

	var signals <-chan models.WakeHint
	if w.wake != nil {
		ch, err := w.wake.Listen(ctx)
		if err != nil {
			w.logger.Warn().Err(err).Msg("Wake signals unavailable, relying on polling")
		} else {
			signals = ch
		}
	}

	w.requeueStale(ctx)
	w.runAndLog(ctx, 0)

	signalTicker := time.NewTicker(w.signalInterval)
	defer signalTicker.Stop()
	pollTicker := time.NewTicker(w.pollInterval)
	defer pollTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case hint, ok := <-signals:
			if !ok {
				signals = nil
				continue
			}
			w.consumeHints(ctx, hint.OwnerID)
			w.runAndLog(ctx, hint.OwnerID)

		case <-signalTicker.C:
			n, err := w.queue.CountUnprocessedWakeHints(ctx, 0)
			if err != nil {
				w.logger.Error().Err(err).Msg("Failed to check wake hints")
				continue
			}
			if n > 0 {
				w.consumeHints(ctx, 0)
				w.runAndLog(ctx, 0)
			}

		case <-pollTicker.C:
			w.requeueStale(ctx)
			w.runAndLog(ctx, 0)
		}
	}
}

func (w *CalendarWorker) consumeHints(ctx context.Context, ownerID int64) {
	if _, err := w.queue.MarkWakeHintsProcessed(ctx, ownerID); err != nil {
		w.logger.Warn().Err(err).Int64("owner_id", ownerID).Msg("Failed to mark wake hints processed")
	}
}

func (w *CalendarWorker) requeueStale(ctx context.Context) {
	n, err := w.queue.RequeueStaleSyncTasks(ctx, w.now().Add(-w.staleAfter))
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to requeue stale tasks")
		return
	}
	if n > 0 {
		w.logger.Warn().Int64("count", n).Msg("Requeued stale processing tasks")
	}
}

func (w *CalendarWorker) runAndLog(ctx context.Context, ownerID int64) {
	if _, err := w.RunOnce(ctx, ownerID); err != nil && ctx.Err() == nil {
		w.logger.Error().Err(err).Msg("Failed to fetch pending tasks")
	}
}

// RunOnce processes one batch of due pending tasks, optionally for a single
// owner (0 means all owners), and reports how many it executed.
func (w *CalendarWorker) RunOnce(ctx context.Context, ownerID int64) (int, error) {
	tasks, err := w.queue.GetPendingSyncTasks(ctx, w.batchSize, ownerID)
	if err != nil {
		return 0, err
	}

	processed := 0
	for i := range tasks {
		if ctx.Err() != nil {
			break
		}
		if w.processTask(ctx, &tasks[i]) {
			processed++
		}
	}
	return processed, nil
}

// processTask claims task and executes it. It returns false when another
// worker got there first.
func (w *CalendarWorker) processTask(ctx context.Context, task *models.SyncTask) bool {
	claimed, err := w.queue.ClaimSyncTask(ctx, task.ID, w.id)
	if errors.Is(err, database.ErrTaskAlreadyClaimed) {
		w.logger.Debug().Int64("task_id", task.ID).Msg("Task already claimed")
		return false
	}
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to claim task")
		return false
	}

	logger := w.logger.With().
		Int64("task_id", claimed.ID).
		Str("event_type", claimed.EventType).
		Int("attempt", claimed.Attempts).
		Logger()

	if err := w.limiter.Wait(ctx); err != nil {
		w.retryOrFail(ctx, claimed, err, logger)
		return true
	}

	res, err := w.syncer.Sync(ctx, claimed)
	if err != nil {
		w.retryOrFail(ctx, claimed, err, logger)
		return true
	}

	if err := w.queue.CompleteSyncTask(ctx, claimed.ID); err != nil {
		logger.Error().Err(err).Msg("Failed to mark task done")
		return true
	}
	metrics.IncSyncTask(claimed.EventType, "done")

	details := map[string]any{"owner_id": claimed.OwnerID, "attempt": claimed.Attempts}
	if res != nil {
		details["action"] = res.Action
		if res.EventID != "" {
			details["event_id"] = res.EventID
		}
	}
	w.oplog.LogQueue("done", claimed.ID, details)
	logger.Info().Msg("Task synced")
	return true
}

func (w *CalendarWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error, logger zerolog.Logger) {
	permanent := service.IsPermanent(cause)
	exhausted := w.retryPolicy.Exhausted(task.Attempts)

	w.oplog.LogError("SYNC_"+strings.ToUpper(task.EventType), cause, map[string]any{
		"task_id":      task.ID,
		"owner_id":     task.OwnerID,
		"attempt":      task.Attempts,
		"max_attempts": w.retryPolicy.MaxAttempts,
		"permanent":    permanent,
	})

	if !permanent && !exhausted {
		next := w.now().Add(w.retryPolicy.NextDelay(task.Attempts))
		if err := w.queue.RetrySyncTask(ctx, task.ID, cause.Error(), next); err != nil {
			logger.Error().Err(err).Msg("Failed to reschedule task")
			return
		}
		metrics.IncSyncTask(task.EventType, "retry")
		w.oplog.LogQueue("retry", task.ID, map[string]any{"attempt": task.Attempts, "next_retry_at": next.UTC().Format(time.RFC3339)})
		logger.Warn().Err(cause).Time("next_retry_at", next).Msg("Task failed, will retry")
		return
	}

	if err := w.queue.FailSyncTask(ctx, task.ID, cause.Error()); err != nil {
		logger.Error().Err(err).Msg("Failed to mark task failed")
		return
	}
	metrics.IncSyncTask(task.EventType, "failed")
	w.oplog.LogQueue("failed", task.ID, map[string]any{"attempt": task.Attempts, "permanent": permanent})
	logger.Error().Err(cause).Bool("permanent", permanent).Msg("Task failed permanently")
	w.pushDeadLetter(ctx, task, cause)
}

type deadLetter struct {
	Task     *models.SyncTask `json:"task"`
	Error    string           `json:"error"`
	FailedAt time.Time        `json:"failed_at"`
	WorkerID string           `json:"worker_id"`
}

func (w *CalendarWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask, cause error) {
	if w.redis == nil || w.deadLetterKey == "" {
		return
	}
	data, err := json.Marshal(deadLetter{Task: task, Error: cause.Error(), FailedAt: w.now().UTC(), WorkerID: w.id})
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to encode dead letter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to push dead letter")
	}
}
