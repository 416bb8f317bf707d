package agent

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes how an agent call failed.
type ErrorKind string

const (
	ErrNetwork   ErrorKind = "network"
	ErrTimeout   ErrorKind = "timeout"
	ErrMalformed ErrorKind = "malformed-response"
	ErrRemote    ErrorKind = "remote-error"
)

// CallError is the only error type Invoke returns. The client never lets a
// transport fault escape untagged.
type CallError struct {
	Kind    ErrorKind
	AgentID string
	Err     error
}

func (e *CallError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("agent %s: %s", e.AgentID, e.Kind)
	}
	return fmt.Sprintf("agent %s: %s: %v", e.AgentID, e.Kind, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is (or wraps) a *CallError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ce *CallError
	return errors.As(err, &ce) && ce.Kind == kind
}
