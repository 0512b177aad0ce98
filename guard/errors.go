package guard

import (
	stderrors "errors"

	"github.com/c360/dupguard/errors"
)

var (
	// ErrDuplicateSubmission matches every rejection of a duplicate call.
	ErrDuplicateSubmission = stderrors.New("duplicate submission")

	// ErrStoreUnavailable matches every failure to complete a claim against the store.
	ErrStoreUnavailable = stderrors.New("claim store unavailable")
)

// DuplicateError is returned by Acquire when the key is already claimed.
// Its message is the policy's rejection message.
type DuplicateError struct {
	Key     string
	Message string
}

func (e *DuplicateError) Error() string {
	return e.Message
}

// Is reports ErrDuplicateSubmission as a match.
func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicateSubmission
}

// IsDuplicate reports whether err is a duplicate rejection.
func IsDuplicate(err error) bool {
	return stderrors.Is(err, ErrDuplicateSubmission)
}

// IsStoreUnavailable reports whether err is a store failure during Acquire.
func IsStoreUnavailable(err error) bool {
	return stderrors.Is(err, ErrStoreUnavailable)
}

// RejectionMessage returns the message of a duplicate rejection, or "" for other errors.
func RejectionMessage(err error) string {
	var de *DuplicateError
	if stderrors.As(err, &de) {
		return de.Message
	}
	return ""
}

type storeError struct {
	cause error
}

func (e *storeError) Error() string {
	return ErrStoreUnavailable.Error() + ": " + e.cause.Error()
}

func (e *storeError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.cause}
}

func storeUnavailable(err error, method, action string) error {
	return errors.WrapTransient(&storeError{cause: err}, "Coordinator", method, action)
}
