package estimator

import (
	"errors"
	"fmt"

	"github.com/mmstats/mmstats/internal/scoring"
)

// ConfigurationError reports an invalid option or an invalid relationship
// between options (for example show > limit).
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// NoDataError reports that there is nothing to estimate.
type NoDataError struct {
	Reason string
}

func (e *NoDataError) Error() string {
	return "no data: " + e.Reason
}

// IsInputError reports whether err was caused by the caller's options or
// data rather than by the estimator itself.
func IsInputError(err error) bool {
	var (
		cfgErr  *ConfigurationError
		noData  *NoDataError
		unknown *scoring.UnknownPolicyError
	)
	return errors.As(err, &cfgErr) || errors.As(err, &noData) || errors.As(err, &unknown) ||
		errors.Is(err, scoring.ErrNoCompetitors) || errors.Is(err, scoring.ErrNoTestCases) ||
		errors.Is(err, scoring.ErrMalformed)
}
