package errorkit

import (
	"errors"
	"strings"
)

// Category classifies how an error should be handled.
type Category int

const (
	// CategoryTransient indicates a retry will likely help (rate limits,
	// timeouts, transient network failures).
	CategoryTransient Category = iota

	// CategoryPermanent indicates retrying will not help (auth failures,
	// invalid configuration).
	CategoryPermanent

	// CategoryEscalatable indicates a stronger model might succeed where
	// a weaker one failed (malformed structured output, JSON parse
	// failures against an agent's OutputSchema).
	CategoryEscalatable

	// CategoryHumanRequired indicates human intervention is needed.
	CategoryHumanRequired
)

func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	case CategoryEscalatable:
		return "escalatable"
	case CategoryHumanRequired:
		return "human_required"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with how it should be handled.
type CategorizedError struct {
	Err      error
	Category Category
	Context  string
}

func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return e.Context + ": " + e.Err.Error() + " (" + e.Category.String() + ")"
	}
	return e.Err.Error() + " (" + e.Category.String() + ")"
}

func (e *CategorizedError) Unwrap() error { return e.Err }

// Categorize determines how err should be handled, walking known error
// types first and falling back to substring sniffing on ProviderError
// messages (mirrors the CLI adapter's own retryability heuristics).
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) {
		if provErr.Retryable {
			return CategoryTransient
		}
		if isRetryableMessage(provErr.Message) {
			return CategoryTransient
		}
		return CategoryPermanent
	}

	var missing *MissingOutputSchemaError
	if errors.As(err, &missing) {
		return CategoryPermanent
	}

	return CategoryEscalatable
}

// isRetryableMessage checks for well-known transient-failure substrings,
// grounded on the CLI provider's isRetryableError check.
func isRetryableMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, substr := range []string{"rate limit", "timeout", "overloaded", "503", "529"} {
		if strings.Contains(lower, substr) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether err should be retried.
func IsRetryable(err error) bool { return Categorize(err) == CategoryTransient }

// IsEscalatable reports whether a stronger model might succeed.
func IsEscalatable(err error) bool { return Categorize(err) == CategoryEscalatable }
