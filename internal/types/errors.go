package types

import (
	"errors"
	"fmt"
)

var (
	// ErrExtraction indicates a document could not be parsed.
	ErrExtraction = errors.New("document extraction failed")

	// ErrIndexUnavailable indicates the backing store cannot be reached.
	// Callers may retry with backoff.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrDuplicateDocument indicates the document id is already indexed
	// and the duplicate policy rejects re-ingestion.
	ErrDuplicateDocument = errors.New("document already indexed")

	// ErrGeneration indicates the generation backend failed or timed out.
	ErrGeneration = errors.New("generation failed")

	// ErrNoProvider indicates no generation provider has an API key.
	ErrNoProvider = errors.New("no LLM provider API key configured")
)

// ExtractionError carries the filename of the document that failed to parse.
type ExtractionError struct {
	Filename string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("cannot extract text from %s: %v", e.Filename, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }

// GenerationError wraps a provider failure. Timeout is set when the call
// exceeded its deadline.
type GenerationError struct {
	Provider string
	Timeout  bool
	Err      error
}

func (e *GenerationError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: generation timed out: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: generation failed: %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }

// Unavailable wraps err so that errors.Is(err, ErrIndexUnavailable) holds.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrIndexUnavailable, err)
}

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrIndexUnavailable)
}
