package protocol

import "errors"

// Wire errors.
var (
	ErrInvalidMagic        = errors.New("protocol: invalid magic")
	ErrUnsupportedWire     = errors.New("protocol: unsupported wire version")
	ErrTruncated           = errors.New("protocol: truncated data")
	ErrInvalidLength       = errors.New("protocol: invalid length")
	ErrPayloadTooLarge     = errors.New("protocol: payload too large")
	ErrMessageKindMismatch = errors.New("protocol: message kind mismatch")
	ErrValueKindMismatch   = errors.New("protocol: value kind mismatch")
	ErrRecordTypeMismatch  = errors.New("protocol: record type mismatch")
	ErrMissingKey          = errors.New("protocol: missing key")
)

// Contract error taxonomy. Server-side failures travel as the response error
// field and are never returned across the call boundary.
var (
	ErrUnsupportedVersion   = errors.New("unsupported version")
	ErrDataUnavailable      = errors.New("data unavailable")
	ErrUnknownMethod        = errors.New("unknown method")
	ErrForwardCompatibility = errors.New("forward compatibility violation")
	ErrDeliveryFailure      = errors.New("delivery failure")
)
