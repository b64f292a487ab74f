package domain

import (
	"errors"
	"fmt"
)

// Transient transport conditions. Venue bindings wrap these so the
// resilience layer can recognise them through any number of fmt.Errorf
// wraps. The messages double as the allow-list matched against raw
// transport errors that never passed through a binding.
var (
	ErrNoResponse       = errors.New("no response from server")
	ErrEmptyResponse    = errors.New("empty response from server")
	ErrConnectionReset  = errors.New("connection reset by peer")
	ErrMalformedPayload = errors.New("malformed JSON payload")
	ErrReadTimeout      = errors.New("read operation timed out")
)

// TransientErrors lists every transient sentinel in allow-list order.
var TransientErrors = []error{
	ErrNoResponse,
	ErrEmptyResponse,
	ErrConnectionReset,
	ErrMalformedPayload,
	ErrReadTimeout,
}

// Local precondition violations. These are never retried.
var (
	ErrInvalidQuote   = errors.New("invalid quote")
	ErrInvalidState   = errors.New("invalid state")
	ErrUnknownVenue   = errors.New("unknown venue")
	ErrNoDepositEntry = errors.New("no deposit address configured")
)

// VenueError is returned when a request reached the venue and the venue
// explicitly reported a failure. Payload carries the raw error body.
type VenueError struct {
	Venue   string
	Op      string
	Payload any
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("%s: %s: venue reported failure: %v", e.Venue, e.Op, e.Payload)
}

// NewVenueError builds a VenueError for the given venue operation.
func NewVenueError(venue, op string, payload any) *VenueError {
	return &VenueError{Venue: venue, Op: op, Payload: payload}
}

// IsVenueError reports whether err wraps a *VenueError.
func IsVenueError(err error) bool {
	var ve *VenueError
	return errors.As(err, &ve)
}
