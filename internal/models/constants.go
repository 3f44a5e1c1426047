package models

const (
	BookingStatusActive    = "active"
	BookingStatusCancelled = "cancelled"
)

// Sync event types. The same names travel on the realtime fan-out.
const (
	SyncEventCreated = "created"
	SyncEventUpdated = "updated"
	SyncEventDeleted = "deleted"
)

const (
	SyncStatusPending    = "pending"
	SyncStatusProcessing = "processing"
	SyncStatusDone       = "done"
	SyncStatusFailed     = "failed"
)

const (
	CredentialConnected    = "connected"
	CredentialActive       = "active"
	CredentialEnabled      = "enabled"
	CredentialDisconnected = "disconnected"
	CredentialDisabled     = "disabled"
	CredentialError        = "error"
)

// ValidSyncEvent reports whether t is one of the known sync event types.
func ValidSyncEvent(t string) bool {
	switch t {
	case SyncEventCreated, SyncEventUpdated, SyncEventDeleted:
		return true
	}
	return false
}
