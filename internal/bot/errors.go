package bot

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/sokinpui/gpt2bot.go/internal/broker"
	"github.com/sokinpui/gpt2bot.go/internal/command"
	"github.com/sokinpui/gpt2bot.go/internal/kvfile"
	"github.com/sokinpui/gpt2bot.go/internal/lifecycle"
	"github.com/sokinpui/gpt2bot.go/internal/pipeline"
	"github.com/sokinpui/gpt2bot.go/internal/prompts"
	"github.com/sokinpui/gpt2bot.go/internal/store"
	"github.com/sokinpui/gpt2bot.go/model"
)

var (
	ErrInvalidLength       = errors.New("length must be an integer in [1, 1023]")
	ErrMalformedAssignment = errors.New("expected key=value")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrMissingModelName    = errors.New("missing model name")
)

// InvalidModelError names a model outside model.Names.
type InvalidModelError struct {
	Name string
}

func (e *InvalidModelError) Error() string {
	return fmt.Sprintf("invalid model name %s", e.Name)
}

func (e *InvalidModelError) Unwrap() error { return model.ErrInvalidModelName }

// ErrorText renders err as the reply shown to the user.
func ErrorText(err error) string {
	return "ERROR: " + UserMessage(err)
}

// UserMessage describes err for an end user.
func UserMessage(err error) string {
	var (
		nd *model.NotDownloadedError
		im *InvalidModelError
		le *lifecycle.LoadError
		be *store.BatchError
		ke *store.KeyError
		ve *store.ValueError
	)

	if errors.As(err, &be) {
		err = be.First()
	}

	switch {
	case errors.As(err, &ke):
		return fmt.Sprintf("Invalid config name %s", ke.Key)
	case errors.As(err, &ve):
		return fmt.Sprintf("Invalid config %s=%s", ve.Key, ve.Raw)
	case errors.As(err, &nd):
		return fmt.Sprintf("Model %s is not downloaded", nd.Name)
	case errors.As(err, &im):
		return fmt.Sprintf("Invalid model name %s", im.Name)
	case errors.As(err, &le):
		return fmt.Sprintf("Failed to load model %s", le.Name)
	case errors.Is(err, command.ErrArgumentRequired):
		return "Argument required"
	case errors.Is(err, command.ErrArgumentNotAllowed):
		return "Argument not allowed"
	case errors.Is(err, ErrInvalidLength):
		return "Argument must be a positive integer number less than 1024"
	case errors.Is(err, ErrMalformedAssignment), errors.Is(err, ErrInvalidArgument):
		return "Invalid argument"
	case errors.Is(err, ErrMissingModelName):
		return "Missing model name"
	case errors.Is(err, pipeline.ErrEmptyPrompt):
		return "Prompt required"
	case errors.Is(err, prompts.ErrBlankPrompt):
		return "Default prompt cannot be blank"
	case errors.Is(err, prompts.ErrReservedChar):
		return fmt.Sprintf("Default prompt cannot contain any of %q", kvfile.Reserved)
	case errors.Is(err, broker.ErrBusy):
		return "Busy, try again later"
	case errors.Is(err, model.ErrDownload):
		return "Download failed"
	case errors.Is(err, model.ErrLoad):
		return "Failed to load model"
	case errors.Is(err, model.ErrGeneration):
		return "Generation failed"
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timed out"
	case errors.Is(err, context.Canceled):
		return "Request cancelled"
	case errors.Is(err, command.ErrUnknownExtension),
		errors.Is(err, command.ErrAlreadyLoaded),
		errors.Is(err, command.ErrNotLoaded),
		errors.Is(err, command.ErrPinned),
		errors.Is(err, command.ErrNameConflict):
		return err.Error()
	}

	log.Printf("Unexpected command error: %v", err)
	return "Something went wrong"
}
