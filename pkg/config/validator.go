package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/xhad/pdfchat/internal/types"
)

var (
	embedderTypes     = []string{"hash", "openai", "ollama", "google"}
	databaseTypes     = []string{"memory", "sqlite", "pgvector"}
	locales           = []string{"en", "fr"}
	duplicatePolicies = []string{"replace", "reject"}
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	// Validate LLM config
	if len(c.AvailableProviders()) == 0 {
		errs = append(errs, ValidationError{
			Field:   "providers",
			Message: "set at least one of GROQ_API_KEY, OPENAI_API_KEY or GOOGLE_API_KEY",
		})
	}

	if c.LLM.Provider != "" && !slices.Contains(ProviderOrder, c.LLM.Provider) {
		errs = append(errs, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown provider %q", c.LLM.Provider),
		})
	}

	if c.LLM.Timeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "llm.timeout",
			Message: "timeout must be positive",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.LLM.Groq.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.LLM.Groq.BaseURL); err != nil {
			errs = append(errs, ValidationError{
				Field:   "llm.groq.base_url",
				Message: "invalid base URL",
			})
		}
	}

	// Validate Embedder config
	if !slices.Contains(embedderTypes, c.Embedder.Type) {
		errs = append(errs, ValidationError{
			Field:   "embedder.type",
			Message: fmt.Sprintf("unknown embedder %q", c.Embedder.Type),
		})
	}

	if c.Embedder.Dimension < 1 {
		errs = append(errs, ValidationError{
			Field:   "embedder.dimension",
			Message: "dimension must be positive",
		})
	}

	// Validate Database config
	if !slices.Contains(databaseTypes, c.Database.Type) {
		errs = append(errs, ValidationError{
			Field:   "database.type",
			Message: fmt.Sprintf("unknown database %q", c.Database.Type),
		})
	}

	if c.Database.Type == "pgvector" {
		if c.Database.URL == "" {
			errs = append(errs, ValidationError{
				Field:   "database.url",
				Message: "database URL is required for pgvector",
			})
		} else if _, err := url.ParseRequestURI(c.Database.URL); err != nil {
			errs = append(errs, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	// Validate Processor config
	if c.Processor.MaxChunkSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "processor.max_chunk_size",
			Message: "max_chunk_size must be positive",
		})
	}

	if c.Processor.Overlap < 0 || c.Processor.Overlap >= c.Processor.MaxChunkSize {
		errs = append(errs, ValidationError{
			Field:   "processor.overlap",
			Message: "overlap must be non-negative and less than max_chunk_size",
		})
	}

	if c.Retrieval.TopK < 1 {
		errs = append(errs, ValidationError{
			Field:   "retrieval.top_k",
			Message: "top_k must be positive",
		})
	}

	// Validate Assistant config
	if !slices.Contains(locales, c.Assistant.Locale) {
		errs = append(errs, ValidationError{
			Field:   "assistant.locale",
			Message: fmt.Sprintf("unsupported locale %q", c.Assistant.Locale),
		})
	}

	if !slices.Contains(duplicatePolicies, c.Assistant.DuplicatePolicy) {
		errs = append(errs, ValidationError{
			Field:   "assistant.duplicate_policy",
			Message: "duplicate_policy must be replace or reject",
		})
	}

	if c.Assistant.IngestWorkers < 1 {
		errs = append(errs, ValidationError{
			Field:   "assistant.ingest_workers",
			Message: "ingest_workers must be positive",
		})
	}

	return errs
}

// Err folds the validation errors into one error. The missing-provider case
// matches types.ErrNoProvider.
func Err(errs []ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	joined := make([]error, 0, len(errs))
	for _, e := range errs {
		if e.Field == "providers" {
			joined = append(joined, fmt.Errorf("%w: %s", types.ErrNoProvider, e.Message))
			continue
		}
		joined = append(joined, e)
	}
	return errors.Join(joined...)
}
