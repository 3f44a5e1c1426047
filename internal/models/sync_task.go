package models

import "time"

// SyncTask is a durable request to mirror one booking change to the remote
// calendar. Payload is a JSON SyncPayload captured at enqueue time.
type SyncTask struct {
	ID          int64      `json:"id"`
	EventType   string     `json:"event_type"`
	BookingID   *int64     `json:"booking_id,omitempty"`
	OwnerID     int64      `json:"owner_id"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	LastError   *string    `json:"last_error,omitempty"`
	ClaimedBy   *string    `json:"claimed_by,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// SyncPayload is the booking snapshot stored with a task.
type SyncPayload struct {
	BookingID       int64     `json:"booking_id"`
	SpecialistID    int64     `json:"specialist_id"`
	WorkingPointID  int64     `json:"working_point_id,omitempty"`
	ServiceID       *int64    `json:"service_id,omitempty"`
	ServiceName     string    `json:"service_name"`
	ClientFullName  string    `json:"client_full_name"`
	ClientPhone     string    `json:"client_phone"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	ReceivedThrough string    `json:"received_through"`
	Country         string    `json:"country,omitempty"`
	DayOfCreation   time.Time `json:"day_of_creation"`
	GoogleEventID   string    `json:"google_event_id,omitempty"`
}

// NewSyncPayload snapshots b.
func NewSyncPayload(b *Booking) SyncPayload {
	return SyncPayload{
		BookingID:       b.ID,
		SpecialistID:    b.SpecialistID,
		WorkingPointID:  b.WorkingPointID,
		ServiceID:       b.ServiceID,
		ServiceName:     b.ServiceName,
		ClientFullName:  b.ClientFullName,
		ClientPhone:     b.ClientPhone,
		Start:           b.Start,
		End:             b.End,
		ReceivedThrough: b.ReceivedThrough,
		Country:         b.Country,
		DayOfCreation:   b.CreatedAt,
		GoogleEventID:   b.EventID(),
	}
}

// Booking rebuilds the booking view used for the remote event body.
func (p SyncPayload) Booking() *Booking {
	return &Booking{
		ID:              p.BookingID,
		SpecialistID:    p.SpecialistID,
		WorkingPointID:  p.WorkingPointID,
		ServiceID:       p.ServiceID,
		ServiceName:     p.ServiceName,
		ClientFullName:  p.ClientFullName,
		ClientPhone:     p.ClientPhone,
		Start:           p.Start,
		End:             p.End,
		ReceivedThrough: p.ReceivedThrough,
		Country:         p.Country,
		CreatedAt:       p.DayOfCreation,
	}
}

// WakeHint is an advisory "work is available" marker for the worker.
type WakeHint struct {
	ID        int64     `json:"id"`
	OwnerID   int64     `json:"owner_id"`
	BookingID *int64    `json:"booking_id,omitempty"`
	EventType string    `json:"event_type"`
	Processed bool      `json:"processed"`
	CreatedAt time.Time `json:"created_at"`
}

// SyncQueueStats summarizes the queue for operators.
type SyncQueueStats struct {
	Pending         int `json:"pending"`
	Processing      int `json:"processing"`
	Done            int `json:"done"`
	Failed          int `json:"failed"`
	PendingHints    int `json:"pending_hints"`
	LiveCredentials int `json:"live_credentials"`
}
