package service

import "errors"

var (
	// ErrCredentialUnusable means the owner's credential cannot authorize
	// calls: not live, no refresh token, or the refresh failed.
	ErrCredentialUnusable = errors.New("calendar credential is not usable")

	// ErrIntegrationDisabled means no OAuth client is configured.
	ErrIntegrationDisabled = errors.New("calendar integration disabled")

	// ErrInvalidTask means a queued task cannot be interpreted.
	ErrInvalidTask = errors.New("invalid sync task")
)

// IsPermanent reports whether retrying the task cannot help.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrCredentialUnusable) ||
		errors.Is(err, ErrIntegrationDisabled) ||
		errors.Is(err, ErrInvalidTask)
}
