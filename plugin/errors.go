package plugin

import "errors"

// Sentinel errors for the plugin package.
var (
	// ErrNilHost is returned when a Plugin is created without a host.
	ErrNilHost = errors.New("host cannot be nil")

	// ErrNilHandler is returned when a registration carries a nil handler.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrEmptyName is returned when a registration name or event is empty.
	ErrEmptyName = errors.New("registration name cannot be empty")

	// ErrDuplicate is returned when a kind and name pair is registered twice.
	ErrDuplicate = errors.New("already registered")
)
