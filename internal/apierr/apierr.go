// Package apierr defines GLKDC's logical error kinds (spec §7) and maps
// them to HTTP status at the outermost handler only. Every inner layer
// (membership, keystore, fsm, keyepoch) returns one of these or a plain
// sentinel error from model/membership/keystore — never an http.Status
// directly — so the mapping stays in one place.
package apierr

import "fmt"

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthorization
	KindExistence
	KindConflict
	KindThrottle
	KindVersion
	KindPayloadTooLarge
)

// Error is the typed error every GroupController method returns on failure.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("apierr: %s", e.Code)
	}
	return fmt.Sprintf("apierr: %s: %s", e.Code, e.Message)
}

func new(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Validation(code, msg string) *Error      { return new(KindValidation, code, msg) }
func Authorization(code, msg string) *Error   { return new(KindAuthorization, code, msg) }
func Existence(code, msg string) *Error       { return new(KindExistence, code, msg) }
func Conflict(code, msg string) *Error        { return new(KindConflict, code, msg) }
func Throttle(code, msg string) *Error        { return new(KindThrottle, code, msg) }
func Version(code, msg string) *Error         { return new(KindVersion, code, msg) }
func Internal(code, msg string) *Error        { return new(KindInternal, code, msg) }
func PayloadTooLarge(code, msg string) *Error { return new(KindPayloadTooLarge, code, msg) }

// HTTPStatus maps a Kind to the wire status per spec §6's endpoint table.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return 400
	case KindAuthorization:
		return 403
	case KindExistence:
		return 404
	case KindConflict:
		return 409
	case KindThrottle:
		return 460
	case KindVersion:
		return 461
	case KindPayloadTooLarge:
		return 413
	default:
		return 500
	}
}

// Wrap collapses any unrecognized error into INTERNAL, per spec §7's
// "store-level failures... collapse to INTERNAL at the controller boundary".
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*Error); ok {
		return apiErr
	}
	return Internal("INTERNAL", err.Error())
}
