package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/quill/internal/editor"
	"github.com/roach88/quill/internal/posts"
	"github.com/roach88/quill/internal/session"
	"github.com/roach88/quill/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Domain failure (not logged in, post not found, scenarios failed, etc.)
	ExitCommandError = 2 // Command error (bad config, unreachable store, invalid paths, etc.)
)

// Error codes reported in JSON output.
const (
	CodeNotLoggedIn  = "E_NOT_LOGGED_IN"
	CodeNotFound     = "E_NOT_FOUND"
	CodeForbidden    = "E_FORBIDDEN"
	CodeInvalidDraft = "E_INVALID_DRAFT"
	CodeCredentials  = "E_CREDENTIALS"
	CodeCorrupt      = "E_CORRUPT"
	CodeStore        = "E_STORE"
	CodeCommand      = "E_COMMAND"
	CodeFailure      = "E_FAILURE"
)

// ErrPostNotFound is reported when a post id does not exist.
var ErrPostNotFound = errors.New("post not found")

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)

	// Reported is set once the error was already written as a JSON
	// envelope, so Execute does not print it again.
	Reported bool
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ErrorCode maps an error to its JSON error code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrNotLoggedIn):
		return CodeNotLoggedIn
	case errors.Is(err, session.ErrMissingCredentials):
		return CodeCredentials
	case errors.Is(err, ErrPostNotFound):
		return CodeNotFound
	case errors.Is(err, posts.ErrForbidden):
		return CodeForbidden
	case errors.Is(err, posts.ErrTitleRequired), errors.Is(err, posts.ErrContentEmpty):
		return CodeInvalidDraft
	case errors.Is(err, posts.ErrCorrupt):
		return CodeCorrupt
	case errors.Is(err, store.ErrClosed):
		return CodeStore
	case errors.Is(err, editor.ErrUnknownCommand):
		return CodeCommand
	}
	if GetExitCode(err) == ExitCommandError {
		return CodeCommand
	}
	return CodeFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E_NOT_FOUND", "E_FORBIDDEN", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Result writes data as a JSON envelope, or calls text to write the
// human-readable form.
func (f *OutputFormatter) Result(data any, text func(w io.Writer) error) error {
	if f.Format == "json" {
		return f.Success(data)
	}
	return text(f.Writer)
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail turns err into an ExitError. In JSON mode the error envelope is
// written immediately and the returned error is marked as reported.
func (f *OutputFormatter) Fail(code int, message string, err error) error {
	exitErr := WrapExitError(code, message, err)
	if err == nil {
		exitErr = NewExitError(code, message)
	}
	if f.Format != "json" {
		return exitErr
	}
	if werr := f.Error(ErrorCode(exitErr), exitErr.Error(), nil); werr != nil {
		return werr
	}
	exitErr.Reported = true
	return exitErr
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
