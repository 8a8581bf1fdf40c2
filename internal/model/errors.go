package model

import "errors"

// Error kinds. Callers wrap these with fmt.Errorf("...: %w", ...) and
// classify with errors.Is.
var (
	// ErrConfig is fatal and aborts before any run.
	ErrConfig = errors.New("config error")
	// ErrModelUnavailable skips the model's whole prompt set.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrPromptNotFound skips one prompt id.
	ErrPromptNotFound = errors.New("prompt not found")
	// ErrGeneration skips one run.
	ErrGeneration = errors.New("generation error")
)
