package core

// Error codes for domain errors.
const (
	ErrCodeRideNotFound     = "ride_not_found"
	ErrCodeNotInRoom        = "not_in_room"
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeStoreUnavailable = "store_unavailable"
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
