package service

import (
	"context"

	"booksync/internal/domain"
	"booksync/internal/events"
	"booksync/internal/logging"
	"booksync/internal/models"

	"github.com/rs/zerolog"
)

// ChangeNotifier is the one call the booking write path makes after a
// booking is created, changed or cancelled. It feeds the calendar queue and
// the realtime fan-out and never returns an error.
type ChangeNotifier struct {
	producer domain.SyncEnqueuer
	fanout   domain.FanoutPublisher
	logger   *zerolog.Logger
}

// NewChangeNotifier wires the collaborators; either may be nil.
func NewChangeNotifier(producer domain.SyncEnqueuer, fanout domain.FanoutPublisher, logger *zerolog.Logger) *ChangeNotifier {
	return &ChangeNotifier{
		producer: producer,
		fanout:   fanout,
		logger:   logging.Component(logger, "change_notifier"),
	}
}

// BookingChanged reports a mutation of b. The booking's specialist owns the
// calendar the change is mirrored to.
func (n *ChangeNotifier) BookingChanged(ctx context.Context, eventType string, b *models.Booking) {
	if b == nil {
		return
	}
	if !models.ValidSyncEvent(eventType) {
		n.logger.Warn().Str("event_type", eventType).Int64("booking_id", b.ID).Msg("Ignoring unknown booking change")
		return
	}

	if n.producer != nil {
		id := b.ID
		n.producer.Enqueue(ctx, eventType, &id, b.SpecialistID, models.NewSyncPayload(b))
	}
	if n.fanout != nil {
		n.fanout.Publish(ctx, eventType, events.NewBookingData(b))
	}
}
