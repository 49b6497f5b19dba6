package pdfxl

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies why a run ended in [StateFailed] or was rejected.
type ErrorKind string

const (
	// KindValidation means the batch was rejected before any network call.
	KindValidation ErrorKind = "validation"

	// KindUploadTransport means the submission request never produced an
	// HTTP response.
	KindUploadTransport ErrorKind = "upload_transport"

	// KindUploadServer means the server answered the submission with a
	// non-2xx status or a body without a task handle.
	KindUploadServer ErrorKind = "upload_server"

	// KindPollTransport means a status check failed at the transport level
	// or returned a non-2xx status.
	KindPollTransport ErrorKind = "poll_transport"

	// KindPollParse means a status response could not be decoded or broke
	// the snapshot invariants.
	KindPollParse ErrorKind = "poll_parse"

	// KindCanceled means the caller's context ended the run.
	KindCanceled ErrorKind = "canceled"
)

// Default user-facing messages per kind.
const (
	msgValidation      = "Please select at least one PDF file."
	msgUploadTransport = "Network error. Check your connection."
	msgUploadServer    = "Upload failed. Please try again."
	msgPollTransport   = "Failed to check status. Please refresh."
	msgPollParse       = "Received an unreadable status response."
	msgCanceled        = "Conversion cancelled."
)

// Error is the error carried by every failed or rejected run.
//
// Message is safe to show to end users. StatusCode and Err hold the
// underlying detail for logs. Use [errors.Is] against the sentinel values
// ([ErrValidation], [ErrUploadServer], ...) to match on kind:
//
//	if errors.Is(res.Err, pdfxl.ErrUploadServer) {
//	    // server rejected the batch
//	}
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 3)
	parts = append(parts, e.Message)
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels work with
// [errors.Is] regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for matching with [errors.Is].
var (
	ErrValidation      = &Error{Kind: KindValidation, Message: msgValidation}
	ErrUploadTransport = &Error{Kind: KindUploadTransport, Message: msgUploadTransport}
	ErrUploadServer    = &Error{Kind: KindUploadServer, Message: msgUploadServer}
	ErrPollTransport   = &Error{Kind: KindPollTransport, Message: msgPollTransport}
	ErrPollParse       = &Error{Kind: KindPollParse, Message: msgPollParse}
	ErrCanceled        = &Error{Kind: KindCanceled, Message: msgCanceled}
)

// ErrBusy is returned by [Workflow.Submit] when a run is already active on
// the same workflow. It is not delivered to sinks.
var ErrBusy = errors.New("pdfxl: a conversion is already in progress")

func newError(kind ErrorKind, message string, statusCode int, cause error) *Error {
	if message == "" {
		message = defaultMessage(kind)
	}
	return &Error{Kind: kind, Message: message, StatusCode: statusCode, Err: cause}
}

func defaultMessage(kind ErrorKind) string {
	switch kind {
	case KindValidation:
		return msgValidation
	case KindUploadTransport:
		return msgUploadTransport
	case KindUploadServer:
		return msgUploadServer
	case KindPollTransport:
		return msgPollTransport
	case KindPollParse:
		return msgPollParse
	case KindCanceled:
		return msgCanceled
	default:
		return "Conversion failed."
	}
}

// UserMessage returns the end-user text for err: the Message of an *Error,
// or err.Error() for anything else.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// KindOf returns the kind of err, or "" if err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
