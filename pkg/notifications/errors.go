package notifications

import "errors"

var (
	// ErrNotificationNotFound is returned when a notification does not exist.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrInvalidNotification is returned when required fields are missing.
	ErrInvalidNotification = errors.New("invalid notification")

	// ErrNoTransport is recorded for channels without a configured transport.
	ErrNoTransport = errors.New("no transport configured for channel")

	// ErrInvalidContextData is returned when context data cannot be stored as JSON.
	ErrInvalidContextData = errors.New("context data is not JSON encodable")

	// ErrNoAddress is returned when a recipient address cannot be resolved.
	ErrNoAddress = errors.New("recipient address not available")

	ErrFailedToCreate = errors.New("failed to create notification")
	ErrFailedToUpdate = errors.New("failed to update notification")
	ErrFailedToQuery  = errors.New("failed to query notifications")
)
