package model

import (
	"errors"
	"fmt"
)

// Params holds the arguments of one generation call.
type Params struct {
	ModelName     string
	Prefix        string
	Length        int
	Temperature   float64
	TopK          int
	TopP          float64
	IncludePrefix bool
	NSamples      int
}

// Custom errors for the library.
var (
	ErrBackendNotFound    = errors.New("model backend not found")
	ErrInvalidModelName   = errors.New("invalid model name")
	ErrModelNotDownloaded = errors.New("model is not downloaded")
	ErrLoad               = errors.New("failed to load model")
	ErrDownload           = errors.New("failed to download model")
	ErrGeneration         = errors.New("error during text generation")
	ErrConfiguration      = errors.New("failed to initialize backend, please check configuration")
)

// NotDownloadedError is returned when the weights of a model are missing from
// the local cache.
type NotDownloadedError struct {
	Name string
}

func (e *NotDownloadedError) Error() string {
	return fmt.Sprintf("model %s is not downloaded", e.Name)
}

func (e *NotDownloadedError) Unwrap() error { return ErrModelNotDownloaded }
