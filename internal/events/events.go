package events

import (
	"encoding/json"
	"sync"
	"time"

	"booksync/internal/models"
)

// Event is the realtime notification delivered to subscribers, both from the
// Redis lists and over broadcast channels.
type Event struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Data      BookingData `json:"data"`
}

// BookingData is the booking subset shown to live subscribers.
type BookingData struct {
	BookingID      int64  `json:"booking_id"`
	SpecialistID   int64  `json:"specialist_id,omitempty"`
	WorkingPointID int64  `json:"working_point_id,omitempty"`
	ServiceName    string `json:"service_name,omitempty"`
	ClientFullName string `json:"client_full_name,omitempty"`
	Start          string `json:"start,omitempty"`
	End            string `json:"end,omitempty"`
	Status         string `json:"status,omitempty"`
}

const wallClock = "2006-01-02 15:04:05"

// NewBookingData extracts the subscriber-visible fields of b.
func NewBookingData(b *models.Booking) BookingData {
	d := BookingData{
		BookingID:      b.ID,
		SpecialistID:   b.SpecialistID,
		WorkingPointID: b.WorkingPointID,
		ServiceName:    b.ServiceName,
		ClientFullName: b.ClientFullName,
		Status:         b.Status,
	}
	if !b.Start.IsZero() {
		d.Start = b.Start.Format(wallClock)
	}
	if !b.End.IsZero() {
		d.End = b.End.Format(wallClock)
	}
	return d
}

func NewEvent(eventType string, data BookingData, at time.Time) Event {
	return Event{Type: eventType, Timestamp: at.Unix(), Data: data}
}

// Handler receives raw event payloads published on a channel.
type Handler func(payload []byte)

// Bus is an in-process broadcast transport keyed by channel name. It stands
// in for the external broadcaster when the API and the publisher share a
// process.
type Bus struct {
	mu          sync.RWMutex
	nextID      int
	subscribers map[string]map[int]Handler
}

func NewBus() *Bus {
	return &Bus{subscribers: make(map[string]map[int]Handler)}
}

// Subscribe registers handler on channel and returns its cancel func.
func (b *Bus) Subscribe(channel string, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[int]Handler)
	}
	b.subscribers[channel][id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers[channel], id)
		if len(b.subscribers[channel]) == 0 {
			delete(b.subscribers, channel)
		}
	}
}

// Publish calls every handler on channel synchronously and reports how many
// received the payload.
func (b *Bus) Publish(channel string, payload []byte) int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subscribers[channel]))
	for _, h := range b.subscribers[channel] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(payload)
	}
	return len(handlers)
}

// PublishJSON serializes ev and publishes it on channel.
func (b *Bus) PublishJSON(channel string, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	b.Publish(channel, raw)
	return nil
}
