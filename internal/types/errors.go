package types

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds a consistent API error payload.
// details can be string, map, struct, etc.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

var (
	ErrTimeout      = errors.New("no reply before deadline")
	ErrUnitRejected = errors.New("unit rejected the request")
	ErrNotConnected = errors.New("not connected")
)

// TransportError is a socket, send or receive failure. It is recorded and
// never aborts a synchronization run.
type TransportError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is a malformed or short datagram.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}

func NewProtocolError(format string, args ...any) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// ValidationError is a pre-flight conflict. It is raised before any network
// call is made.
type ValidationError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Units   []string `json:"units,omitempty"`
}

func (e *ValidationError) Error() string {
	if len(e.Units) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(e.Units, ", "))
}

func NewValidationError(code, message string, units ...string) *ValidationError {
	return &ValidationError{Code: code, Message: message, Units: units}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
