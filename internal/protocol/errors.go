package protocol

import "errors"

// Sentinel errors for the protocol package.
var (
	// ErrInvalidMessage is returned when a line is not a JSON object.
	ErrInvalidMessage = errors.New("message is not a JSON object")

	// ErrUnknownType is returned when a message carries an unknown type.
	ErrUnknownType = errors.New("unknown message type")

	// ErrMissingType is returned when a message has no type field.
	ErrMissingType = errors.New("message is missing type")

	// ErrMissingKind is returned when a register or invoke has no kind.
	ErrMissingKind = errors.New("message is missing kind")

	// ErrInvalidKind is returned when a kind is not command, autocmd, or function.
	ErrInvalidKind = errors.New("invalid handler kind")

	// ErrMissingName is returned when a register or invoke has no name.
	ErrMissingName = errors.New("message is missing name")

	// ErrMissingID is returned when a response has no id.
	ErrMissingID = errors.New("response is missing id")

	// ErrMissingMethod is returned when a notify has no method.
	ErrMissingMethod = errors.New("notify is missing method")

	// ErrLineTooLong is returned when a wire line exceeds MaxLineBytes.
	ErrLineTooLong = errors.New("wire line exceeds maximum length")
)
