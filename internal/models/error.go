package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound     = errors.New("resource not found")
	ErrConflict     = errors.New("resource already exists")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")

	// Risk engine failure classes. Only PersistenceFailure ever reaches a caller.
	// A missing rule is not an error: the check reports nothing.
	ErrUpstreamUnavailable = errors.New("geolocation upstream unavailable")
	ErrPersistenceFailure  = errors.New("failed to persist security record")
	ErrDeliveryFailure     = errors.New("notification delivery failed")
	ErrConfiguration       = errors.New("invalid security configuration")

	// Alert lifecycle errors
	ErrAlertAlreadyResolved = errors.New("alert is already resolved")
	ErrQueueFull            = errors.New("notification queue is full")
)
