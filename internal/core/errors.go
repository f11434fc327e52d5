// Package core defines sentinel errors shared across the probe.
package core

import "errors"

// Sentinel errors. Callers wrap them with context and match with errors.Is.
var (
	// Address and option construction errors
	ErrMalformedAddress  = errors.New("uoaprobe: malformed address")
	ErrOptionOverflow    = errors.New("uoaprobe: option overflows option space")
	ErrUnsupportedOption = errors.New("uoaprobe: option not supported for address family")

	// Transport errors
	ErrNoResponse         = errors.New("uoaprobe: no response")
	ErrUnexpectedPackets  = errors.New("uoaprobe: unexpected extra captured packets")
	ErrCaptureUnsupported = errors.New("uoaprobe: capture type not supported")

	// Assertion errors
	ErrRealAddressNotFound = errors.New("uoaprobe: real address not found")
	ErrRealAddressMismatch = errors.New("uoaprobe: real address mismatch")

	// Echo service errors
	ErrResolverUnavailable = errors.New("uoaprobe: address resolver unavailable")

	// Configuration errors
	ErrConfigInvalid = errors.New("uoaprobe: invalid configuration")
)
