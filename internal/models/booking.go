package models

import "time"

// Booking is the slice of an appointment the calendar sync needs. Start and
// End carry the wall-clock time of the appointment in the owner's timezone.
type Booking struct {
	ID              int64     `json:"id"`
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
	Status          string    `json:"status"`
	GoogleEventID   *string   `json:"google_event_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// EventID returns the bound remote event id or "" when the booking is unbound.
func (b *Booking) EventID() string {
	if b == nil || b.GoogleEventID == nil {
		return ""
	}
	return *b.GoogleEventID
}
