package rpc

import "errors"

// Sentinel errors for the rpc package.
var (
	// ErrAlreadyServing is returned when Serve is called twice.
	ErrAlreadyServing = errors.New("client is already serving")

	// ErrDuplicateRegistration is returned when a kind and name pair is
	// registered twice on the same client.
	ErrDuplicateRegistration = errors.New("already registered")

	// ErrEmptyName is returned when a registration name or notify method
	// is empty.
	ErrEmptyName = errors.New("name cannot be empty")
)
