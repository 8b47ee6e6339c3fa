package upstream

import "fmt"

// Class classifies an upstream failure for retry/recovery purposes.
type Class string

const (
	// Transient covers network timeouts, 5xx, and connection resets.
	// Retried once at the stage level with a fresh session.
	Transient Class = "transient"
	// SessionInvalid covers a 400 whose body suggests an expired session,
	// or any 400 from a list/probe call after a prior success in the run.
	// Triggers session recovery.
	SessionInvalid Class = "session_invalid"
	// AuthInvalid is a 401 during acquire_session. Triggers delayed retry,
	// not recovery.
	AuthInvalid Class = "auth_invalid"
	// Permanent is any other 4xx. Fails the job.
	Permanent Class = "permanent"
	// CancelledByNewerJob is never returned by Client; the session manager
	// reports an observed newer job with session.ErrCancelledByNewerJob,
	// not with this class.
	CancelledByNewerJob Class = "cancelled_by_newer_job"
)

// Error is the typed error returned by every Client method. Class drives
// the pipeline's and session manager's retry/recovery decisions.
type Error struct {
	Class      Class
	StatusCode int
	Op         string
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s: %s (http %d, class %s)", e.Op, e.Message, e.StatusCode, e.Class)
	}
	return fmt.Sprintf("upstream %s: %s (class %s)", e.Op, e.Message, e.Class)
}

func newError(op string, class Class, status int, msg string) *Error {
	return &Error{Op: op, Class: class, StatusCode: status, Message: msg}
}

// IsClass reports whether err is an *Error of the given class.
func IsClass(err error, class Class) bool {
	e, ok := err.(*Error)
	return ok && e.Class == class
}
