package engine

import "fmt"

// Command-surface error codes. Validation failures are synchronous and
// always carry one of these.
const (
	CodePersonaNotFound = "ERR_PERSONA_NOT_FOUND"
	CodeMessageNotFound = "ERR_MESSAGE_NOT_FOUND"
	CodeItemNotFound    = "ERR_ITEM_NOT_FOUND"
	CodeInvalidSlot     = "ERR_INVALID_SLOT"
	CodeExecutorBusy    = "ERR_EXECUTOR_BUSY"
	CodeQueuePaused     = "ERR_QUEUE_PAUSED"
	CodeAborted         = "ERR_ABORTED"
	CodeNoHandler       = "ERR_NO_HANDLER"
	CodeNotRunning      = "ERR_NOT_RUNNING"
)

// CodedError pairs a stable code with a human-readable cause.
type CodedError struct {
	Code string
	Err  error
}

func (e *CodedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *CodedError) Unwrap() error { return e.Err }

func coded(code, format string, args ...any) error {
	return &CodedError{Code: code, Err: fmt.Errorf(format, args...)}
}

// CodeOf extracts the code from a command error, empty when uncoded.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	if ce, ok := err.(*CodedError); ok {
		return ce.Code
	}
	return ""
}
