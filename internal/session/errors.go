package session

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

// Failure kinds. Every user-level error returned by the Controller wraps
// exactly one of these.
var (
	ErrInvalidFileType     = errors.New("invalid file type")
	ErrFileTooLarge        = errors.New("file too large")
	ErrNoFileSelected      = errors.New("no file selected")
	ErrEnhancementFailed   = errors.New("enhancement failed")
	ErrNoResultToReprocess = errors.New("no result to reprocess")
	ErrReprocessDecode     = errors.New("enhanced image could not be decoded")
	ErrRequestInFlight     = errors.New("enhancement already in flight")
)

// Messages shown to the user.
const (
	MsgInvalidFileType     = "Please select a valid image file"
	MsgNoFileSelected      = "Please select an image file"
	MsgFileMissing         = "The selected image is no longer available. Please select it again"
	MsgNoResultToReprocess = "No enhanced image available for further processing"
	MsgReprocessDecode     = "Failed to process enhanced image"
	MsgRequestInFlight     = "An enhancement is already in progress"
	MsgInterrupted         = "The previous enhancement was interrupted. Please try again"
	MsgGeneric             = "Something went wrong. Please try again"
)

// Error is a recoverable, user-visible failure.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind error, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

func fileTooLarge(limit int64) *Error {
	return newError(ErrFileTooLarge,
		fmt.Sprintf("Please select an image smaller than %s", humanize.IBytes(uint64(limit))), nil)
}

// UserMessage returns the text to show for err.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return MsgGeneric
}

// IsUserError reports whether err is a recoverable failure already recorded
// in the session state, as opposed to an infrastructure error.
func IsUserError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
