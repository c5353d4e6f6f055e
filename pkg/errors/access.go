package errors

import (
	"errors"
	"fmt"
)

// AccessReason classifies why a settings resource could not be opened for writing.
type AccessReason int

const (
	// ReasonLocked means another process holds the advisory lock.
	ReasonLocked AccessReason = iota + 1
	// ReasonLockedSameProcess means another coordinator in this process holds the lock.
	ReasonLockedSameProcess
	// ReasonNotWritable means the caller lacks write permission on the location.
	ReasonNotWritable
)

const readOnlyQuestion = "Would you like to open it anyway (read-only)?"

// String returns the reason's name.
func (r AccessReason) String() string {
	switch r {
	case ReasonLocked:
		return "LOCKED"
	case ReasonLockedSameProcess:
		return "LOCKED_SAME_PROCESS"
	case ReasonNotWritable:
		return "NOT_WRITABLE"
	default:
		return fmt.Sprintf("AccessReason(%d)", int(r))
	}
}

// Remediation returns the message shown when asking whether to continue read-only.
func (r AccessReason) Remediation() string {
	switch r {
	case ReasonLocked:
		return "Someone else is currently browsing this dataset.\n" + readOnlyQuestion
	case ReasonLockedSameProcess:
		return "This dataset is already opened in another window.\n" + readOnlyQuestion
	case ReasonNotWritable:
		return "You do not have write permissions for saving the viewer settings such as bookmarks, contrast, etc.\n" +
			"Would you like to open the dataset anyway (read-only)?"
	default:
		return readOnlyQuestion
	}
}

// AccessError is raised when the writable path cannot be taken. It names no
// resource; the caller that received it already knows which one it asked for.
type AccessError struct {
	Reason AccessReason
	Cause  error
}

// NewAccessError creates an access error with an optional cause.
func NewAccessError(reason AccessReason, cause error) *AccessError {
	return &AccessError{Reason: reason, Cause: cause}
}

// Error implements the error interface.
func (e *AccessError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("access denied (%s): %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("access denied (%s)", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *AccessError) Unwrap() error {
	return e.Cause
}

// Remediation returns the user-facing remediation text for the reason.
func (e *AccessError) Remediation() string {
	return e.Reason.Remediation()
}

// AsAccessError returns the AccessError in err's chain, if any.
func AsAccessError(err error) (*AccessError, bool) {
	var ae *AccessError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
