package executor

import "fmt"

// Kind classifies an Error so callers can branch with errors.As without
// string-matching messages.
type Kind string

const (
	KindConfig             Kind = "config"
	KindSshConnection      Kind = "ssh_connection"
	KindSshCommand         Kind = "ssh_command"
	KindContainerRuntime   Kind = "container_runtime"
	KindTaskNotFound       Kind = "task_not_found"
	KindTaskAlreadyRunning Kind = "task_already_running"
	KindProcess            Kind = "process"
	KindIo                 Kind = "io"
	KindJson               Kind = "json"
)

// Error is the single error type every executor returns, tagged with a Kind
// so the core error taxonomy survives across the SSH, container, and local
// drivers without each one inventing its own error variants.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Newf builds an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around an underlying error.
func Wrap(kind Kind, err error, context string) *Error {
	return &Error{Kind: kind, Message: context, Err: err}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Kind == kind
}
