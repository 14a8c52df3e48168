package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/sokinpui/gpt2bot.go/internal/bot"
	"github.com/sokinpui/gpt2bot.go/internal/broker"
	"github.com/sokinpui/gpt2bot.go/internal/pipeline"
	"github.com/sokinpui/gpt2bot.go/internal/prompts"
	"github.com/sokinpui/gpt2bot.go/internal/store"
	"github.com/sokinpui/gpt2bot.go/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// classify maps err to an HTTP status and a gRPC code.
func classify(err error) (int, codes.Code) {
	switch {
	case errors.Is(err, store.ErrInvalidKey),
		errors.Is(err, store.ErrInvalidValue),
		errors.Is(err, model.ErrInvalidModelName),
		errors.Is(err, pipeline.ErrEmptyPrompt),
		errors.Is(err, prompts.ErrBlankPrompt),
		errors.Is(err, bot.ErrMalformedAssignment),
		errors.Is(err, bot.ErrInvalidLength):
		return http.StatusBadRequest, codes.InvalidArgument
	case errors.Is(err, model.ErrModelNotDownloaded):
		return http.StatusConflict, codes.FailedPrecondition
	case errors.Is(err, broker.ErrBusy):
		return http.StatusTooManyRequests, codes.ResourceExhausted
	case errors.Is(err, model.ErrLoad),
		errors.Is(err, model.ErrGeneration),
		errors.Is(err, model.ErrDownload):
		return http.StatusBadGateway, codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return 499, codes.Canceled
	}
	return http.StatusInternalServerError, codes.Internal
}

func grpcError(err error) error {
	_, code := classify(err)
	return status.Error(code, bot.UserMessage(err))
}
