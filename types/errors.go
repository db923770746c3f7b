//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	// KindValidation marks a malformed or empty query. Surfaced as 400.
	KindValidation ErrorKind = "validation"
	// KindRender marks a navigation, readiness, capture or write failure. Surfaced as 400.
	KindRender ErrorKind = "render"
	// KindOffload marks a failed offload work item. Isolated to its future.
	KindOffload ErrorKind = "offload"
)

// RenderStage identifies the render step that failed.
type RenderStage string

// Render stages in execution order.
const (
	StageAcquire  RenderStage = "acquire"
	StageSession  RenderStage = "session"
	StageNavigate RenderStage = "navigate"
	StageWait     RenderStage = "wait"
	StageCapture  RenderStage = "capture"
	StageWrite    RenderStage = "write"
)

// Error is the tagged error returned by the pipeline.
// It is constructed where the failure happens and carries the cause.
type Error struct {
	Kind  ErrorKind
	Stage RenderStage // render errors only
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind) + " error"
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError creates a validation error.
// When err is non-nil its message is the client-visible text.
func NewValidationError(msg string, err error) *Error {
	return &Error{Kind: KindValidation, Msg: msg, Err: err}
}

// NewRenderError creates a render error for the given stage.
func NewRenderError(stage RenderStage, err error) *Error {
	return &Error{Kind: KindRender, Stage: stage, Msg: string(stage) + " failed", Err: err}
}

// NewOffloadError creates an offload failure for the named task.
func NewOffloadError(task string, err error) *Error {
	return &Error{Kind: KindOffload, Msg: fmt.Sprintf("task %q failed", task), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
