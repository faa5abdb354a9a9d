package crew

import "errors"

var (
	// ErrValidationFailed means the inputs or configuration cannot be used.
	ErrValidationFailed = errors.New("validation failed")
	// ErrDeliveryBlocked means a stage refused to let the reminder go out.
	ErrDeliveryBlocked = errors.New("delivery blocked")
	// ErrTransport covers notifier, model and deadline failures.
	ErrTransport = errors.New("transport failure")
)
