package models

import "time"

const tokenPrefixLen = 10

// Credential holds one owner's connection to an external calendar.
type Credential struct {
	ID           int64      `json:"id"`
	OwnerID      int64      `json:"owner_id"`
	OwnerName    string     `json:"owner_name"`
	CalendarID   string     `json:"calendar_id"`
	CalendarName string     `json:"calendar_name"`
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	Expiry       *time.Time `json:"expiry,omitempty"`
	Status       string     `json:"status"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// Usable is computed on read and never persisted.
	Usable bool `json:"usable"`
}

// IsLiveStatus reports whether status allows synchronization.
func IsLiveStatus(status string) bool {
	switch status {
	case CredentialConnected, CredentialActive, CredentialEnabled:
		return true
	}
	return false
}

// Live reports whether the credential status allows synchronization.
func (c *Credential) Live() bool {
	return c != nil && IsLiveStatus(c.Status)
}

// ExpiresWithin reports whether the access token expires before now+skew.
// A missing expiry counts as expired.
func (c *Credential) ExpiresWithin(now time.Time, skew time.Duration) bool {
	if c.Expiry == nil {
		return true
	}
	return !c.Expiry.After(now.Add(skew))
}

// TokenPrefix is the only part of the access token that may be logged.
func (c *Credential) TokenPrefix() string {
	if len(c.AccessToken) <= tokenPrefixLen {
		return c.AccessToken
	}
	return c.AccessToken[:tokenPrefixLen]
}
