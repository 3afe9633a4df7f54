package pipeline

import (
	"errors"
	"fmt"
)

// Stage names the pipeline step an error came from.
type Stage string

const (
	StageIntent   Stage = "intent"
	StageSchema   Stage = "schema"
	StageGenerate Stage = "generate"
	StageSyntax   Stage = "syntax"
	StageSecurity Stage = "security violation"
	StageExecute  Stage = "execute"
)

// Error is the common shape of every pipeline failure. Retryable reports
// whether the self-correction loop may try again.
type Error struct {
	Stage     Stage
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func IntentParseError(err error) error {
	return &Error{Stage: StageIntent, Message: "intent parse failed", Retryable: false, Err: err}
}

func SchemaIntrospectionError(err error) error {
	return &Error{Stage: StageSchema, Message: "schema introspection failed", Retryable: false, Err: err}
}

func GenerationError(message string, err error) error {
	return &Error{Stage: StageGenerate, Message: message, Retryable: true, Err: err}
}

func SyntaxError(err error) error {
	return &Error{Stage: StageSyntax, Message: "syntax check failed", Retryable: true, Err: err}
}

func SecurityViolation(message string) error {
	return &Error{Stage: StageSecurity, Message: message, Retryable: false}
}

func ExecutionError(err error) error {
	return &Error{Stage: StageExecute, Message: "execution failed", Retryable: true, Err: err}
}

// IsStage reports whether err is a pipeline error raised by stage.
func IsStage(err error, stage Stage) bool {
	var pipelineErr *Error
	if !errors.As(err, &pipelineErr) {
		return false
	}
	return pipelineErr.Stage == stage
}

// IsRetryable reports whether err may be fed back into self-correction.
func IsRetryable(err error) bool {
	var pipelineErr *Error
	if !errors.As(err, &pipelineErr) {
		return false
	}
	return pipelineErr.Retryable
}
