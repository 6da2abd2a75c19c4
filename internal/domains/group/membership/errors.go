package membership

import "errors"

// Sentinel outcomes per spec §4.1: "each operation returns one of {OK,
// NOT_FOUND, ALREADY_EXISTS (CAS rejected), INTERNAL}. Nothing is retried
// internally." OK is the absence of an error.
var (
	ErrNotFound      = errors.New("membership: not found")
	ErrAlreadyExists = errors.New("membership: already exists")
	ErrInternal      = errors.New("membership: internal store failure")
)
