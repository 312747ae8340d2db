package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/optimalversion/claude-usage/internal/locator"
	"github.com/optimalversion/claude-usage/internal/terminal"
	"github.com/optimalversion/claude-usage/internal/usage"
)

// NotFoundMessage is reported when the claude executable cannot be found.
const NotFoundMessage = "Claude CLI not found. Please install it from https://claude.ai/code"

// Result is the document printed for one run: the usage fields plus an error
// that is null on success.
type Result struct {
	usage.Record
	Error *string `json:"error"`
}

// Success wraps a parsed record.
func Success(record usage.Record) Result {
	return Result{Record: record}
}

// Failure builds a result carrying only the error message for err.
func Failure(err error) Result {
	message := Message(err)
	return Result{Error: &message}
}

// Failed reports whether the result carries an error.
func (r Result) Failed() bool {
	return r.Error != nil
}

// Message maps err to the user-facing error text.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, terminal.ErrTargetNotFound) || errors.Is(err, locator.ErrNotFound) {
		return NotFoundMessage
	}
	return fmt.Sprintf("Unexpected error: %v", err)
}

// WriteJSON writes result as one JSON object followed by a newline.
func WriteJSON(w io.Writer, result Result) error {
	if w == nil {
		return errors.New("writer is required")
	}
	if err := json.NewEncoder(w).Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
