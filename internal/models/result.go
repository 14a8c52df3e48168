package models

import (
	"context"
	"errors"

	"github.com/sokinpui/gpt2bot.go/internal/pipeline"
	"github.com/sokinpui/gpt2bot.go/model"
)

// FailureKind names the class of a failed task so it survives a trip
// through a broker.
type FailureKind string

const (
	FailureEmptyPrompt   FailureKind = "empty_prompt"
	FailureInvalidModel  FailureKind = "invalid_model"
	FailureNotDownloaded FailureKind = "not_downloaded"
	FailureLoad          FailureKind = "load"
	FailureGeneration    FailureKind = "generation"
	FailureCancelled     FailureKind = "cancelled"
	FailureInternal      FailureKind = "internal"
)

// Failure is the serializable form of a task error.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Model   string      `json:"model,omitempty"`
	Message string      `json:"message"`
}

// NewFailure classifies err.
func NewFailure(err error) *Failure {
	f := &Failure{Kind: FailureInternal, Message: err.Error()}

	var nd *model.NotDownloadedError
	switch {
	case errors.As(err, &nd):
		f.Kind, f.Model = FailureNotDownloaded, nd.Name
	case errors.Is(err, pipeline.ErrEmptyPrompt):
		f.Kind = FailureEmptyPrompt
	case errors.Is(err, model.ErrInvalidModelName):
		f.Kind = FailureInvalidModel
	case errors.Is(err, model.ErrLoad):
		f.Kind = FailureLoad
	case errors.Is(err, model.ErrGeneration):
		f.Kind = FailureGeneration
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		f.Kind = FailureCancelled
	}
	return f
}

func (f *Failure) Error() string { return f.Message }

// Err rebuilds an error that matches the original sentinel.
func (f *Failure) Err() error {
	switch f.Kind {
	case FailureNotDownloaded:
		return &model.NotDownloadedError{Name: f.Model}
	case FailureEmptyPrompt:
		return pipeline.ErrEmptyPrompt
	case FailureInvalidModel:
		return wrap(model.ErrInvalidModelName, f.Message)
	case FailureLoad:
		return wrap(model.ErrLoad, f.Message)
	case FailureGeneration:
		return wrap(model.ErrGeneration, f.Message)
	case FailureCancelled:
		return wrap(context.Canceled, f.Message)
	}
	return errors.New(f.Message)
}

// remoteError keeps the message produced on the worker side and matches the
// sentinel it was classified under.
type remoteError struct {
	msg      string
	sentinel error
}

func (e *remoteError) Error() string { return e.msg }

func (e *remoteError) Unwrap() error { return e.sentinel }

func wrap(sentinel error, msg string) error {
	if msg == sentinel.Error() {
		return sentinel
	}
	return &remoteError{msg: msg, sentinel: sentinel}
}

// Result is the single outcome published for a task.
type Result struct {
	TaskID  string   `json:"task_id"`
	Text    string   `json:"text,omitempty"`
	Failure *Failure `json:"failure,omitempty"`
}

// Err returns the task error, or nil on success.
func (r Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure.Err()
}
