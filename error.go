package avpipe

import "errors"

var (
	// ErrAlloc is returned when a pipe or one of its resources could not
	// be allocated. It's fatal for the allocation attempt only.
	ErrAlloc = errors.New("allocation error")
	// ErrInvalid is returned when a required argument is missing or
	// malformed, e.g. a nil flow definition.
	ErrInvalid = errors.New("invalid argument")
	// ErrUnhandled is returned when a command or an event is not handled.
	// Callers should try the next handler, it's not a hard failure.
	ErrUnhandled = errors.New("unhandled")
	// ErrBusy is returned when a mutation is attempted on a resource with
	// multiple holders.
	ErrBusy = errors.New("busy")
)
