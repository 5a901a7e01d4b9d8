package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/chronod/internal/gateway"
)

// Exit codes returned by the chronod binary.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // node refused the request, or verify found an inconsistent store
	ExitCommandError = 2 // bad flags, unreadable config or a missing database file
)

// ExitError carries the process exit code out of a command.
type ExitError struct {
	Code    int
	Message string
	Err     error
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

// NewExitError creates an ExitError.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit code to err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code carried by err, or ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter writes command results as text or JSON.
//
// Diagnostics from VerboseLog go to ErrWriter so JSON on Writer stays
// parseable.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// CLIResponse is the envelope printed with --format json.
type CLIResponse struct {
	Status    string    `json:"status"` // "ok" or "error"
	Data      any       `json:"data,omitempty"`
	Error     *CLIError `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// CLIError describes a refused gateway request.
type CLIError struct {
	// Code is the gateway code name: INVALID, NOT_FOUND, UNSUPPORTED or
	// INTERNAL.
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success prints a local result, such as an emit acknowledgement or a
// verify report.
func (f *OutputFormatter) Success(data any) error {
	return f.write(CLIResponse{Status: "ok", Data: data}, data)
}

// SuccessFor prints a gateway answer tagged with the request id it
// answers. Text output shows the id only when verbose.
func (f *OutputFormatter) SuccessFor(requestID string, data any) error {
	f.VerboseLog("request %s", requestID)
	return f.write(CLIResponse{Status: "ok", Data: data, RequestID: requestID}, data)
}

// Error prints a refusal carrying a gateway code.
func (f *OutputFormatter) Error(code gateway.Code, message string, details any) error {
	if f.Format == "json" {
		return f.write(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code.String(), Message: message, Details: details},
		}, nil)
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog prints a diagnostic line when verbose.
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

func (f *OutputFormatter) write(resp CLIResponse, text any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(resp)
	}
	_, err := fmt.Fprintln(f.Writer, text)
	return err
}
