package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Error codes for model failures, surfaced on the bus and in command
// results.
const (
	CodeTimeout     = "ERR_MODEL_TIMEOUT"
	CodeRateLimited = "ERR_MODEL_RATE_LIMITED"
	CodeAuth        = "ERR_MODEL_AUTH"
	CodeServer      = "ERR_MODEL_SERVER"
	CodeMalformed   = "ERR_MODEL_MALFORMED"
)

// ModelError carries a classified code alongside the underlying cause.
type ModelError struct {
	Code string
	Err  error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// Malformed wraps a JSON failure that survived repair.
func Malformed(err error) error {
	return &ModelError{Code: CodeMalformed, Err: err}
}

// Classify maps a transport error to a ModelError. Already-classified
// errors pass through.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var me *ModelError
	if errors.As(err, &me) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ModelError{Code: CodeTimeout, Err: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403:
			return &ModelError{Code: CodeAuth, Err: err}
		case apiErr.HTTPStatusCode == 429:
			return &ModelError{Code: CodeRateLimited, Err: err}
		case apiErr.HTTPStatusCode >= 500:
			return &ModelError{Code: CodeServer, Err: err}
		}
	}
	return &ModelError{Code: CodeServer, Err: err}
}

// CodeOf extracts the classification code, defaulting to server-side.
func CodeOf(err error) string {
	var me *ModelError
	if errors.As(err, &me) {
		return me.Code
	}
	return CodeServer
}
