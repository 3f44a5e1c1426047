package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"booksync/internal/domain"
	"booksync/internal/logging"
	"booksync/internal/models"

	"github.com/rs/zerolog"
)

// LiveChecker answers whether an owner currently syncs.
type LiveChecker interface {
	HasLive(ctx context.Context, ownerID int64) (bool, error)
}

const notifyTimeout = 2 * time.Second

// SyncProducer records booking changes for the calendar worker. It never
// fails the caller: every problem is logged and dropped.
type SyncProducer struct {
	queue    domain.SyncQueueWriter
	creds    LiveChecker
	notifier domain.WakeNotifier
	enabled  bool
	oplog    *logging.Operational
	logger   *zerolog.Logger
	wg       sync.WaitGroup
}

// NewSyncProducer builds a producer. With enabled=false (no OAuth client
// configured) Enqueue does nothing. notifier may be nil.
func NewSyncProducer(queue domain.SyncQueueWriter, creds LiveChecker, notifier domain.WakeNotifier, enabled bool, oplog *logging.Operational, logger *zerolog.Logger) *SyncProducer {
	return &SyncProducer{
		queue:    queue,
		creds:    creds,
		notifier: notifier,
		enabled:  enabled,
		oplog:    oplog,
		logger:   logging.Component(logger, "sync_producer"),
	}
}

// Enqueue stores one pending task for the owner and raises a wake hint.
// Owners without a live credential are skipped silently.
func (p *SyncProducer) Enqueue(ctx context.Context, eventType string, bookingID *int64, ownerID int64, payload models.SyncPayload) {
	if p == nil || !p.enabled {
		return
	}

	logger := p.logger.With().Str("event_type", eventType).Int64("owner_id", ownerID).Logger()

	if !models.ValidSyncEvent(eventType) {
		logger.Error().Msg("Refusing to enqueue unknown sync event type")
		return
	}

	live, err := p.creds.HasLive(ctx, ownerID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to check calendar credential")
		return
	}
	if !live {
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to encode sync payload")
		return
	}

	task := &models.SyncTask{
		EventType: eventType,
		BookingID: bookingID,
		OwnerID:   ownerID,
		Payload:   string(raw),
		Status:    models.SyncStatusPending,
	}
	if err := p.queue.CreateSyncTask(ctx, task); err != nil {
		logger.Error().Err(err).Msg("Failed to enqueue calendar sync task")
		p.oplog.LogError("ENQUEUE", err, map[string]any{"owner_id": ownerID, "event_type": eventType})
		return
	}
	p.oplog.LogQueue("enqueued", task.ID, map[string]any{"owner_id": ownerID, "event_type": eventType})

	hint := models.WakeHint{OwnerID: ownerID, BookingID: bookingID, EventType: eventType}
	if err := p.queue.CreateWakeHint(ctx, &hint); err != nil {
		logger.Warn().Err(err).Msg("Failed to store wake hint")
	}
	if p.notifier != nil {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer cancel()
			if err := p.notifier.Notify(nctx, hint); err != nil {
				logger.Warn().Err(err).Msg("Failed to signal calendar worker")
			}
		}()
	}
}

// Wait blocks until in-flight wake signals finish.
func (p *SyncProducer) Wait() {
	if p != nil {
		p.wg.Wait()
	}
}
