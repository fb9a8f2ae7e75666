package estimator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mmstats/mmstats/internal/scoring"
)

const DefaultSimulations = 1000

// Mode selects between resampling and a single deterministic ranking.
type Mode int

const (
	ModeSimulate Mode = iota
	ModeRank
)

var modeNames = map[Mode]string{
	ModeSimulate: "simulate",
	ModeRank:     "rank",
}

func ParseMode(name string) (Mode, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for m, n := range modeNames {
		if n == key {
			return m, nil
		}
	}
	return 0, &ConfigurationError{Field: "mode", Reason: fmt.Sprintf("must be one of simulate, rank (got %q)", name)}
}

func (m Mode) String() string {
	if n, ok := modeNames[m]; ok {
		return n
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Options configures one estimate. Zero counts are filled in by Resolve:
// Limit defaults to every competitor, Show to Limit, Places to Show,
// TestsPerTrial to the number of test cases and Simulations to
// DefaultSimulations.
type Options struct {
	Limit         int            `json:"limit" validate:"gte=1"`
	Show          int            `json:"show" validate:"gte=1,ltefield=Limit"`
	Places        int            `json:"places" validate:"gte=1,ltefield=Limit"`
	TestsPerTrial int            `json:"tests_per_trial" validate:"gte=1"`
	Simulations   int            `json:"simulations" validate:"gte=1"`
	Workers       int            `json:"workers" validate:"gte=0"`
	Seed          *uint64        `json:"seed,omitempty"`
	Policy        scoring.Policy `json:"policy"`
	Mode          Mode           `json:"mode"`

	// Progress, when set, receives trial completion updates. It never
	// affects the result.
	Progress func(completed, total int) `json:"-"`
}

// DefaultOptions returns the command line defaults: 1000 simulations of the
// custom squared ratio policy.
func DefaultOptions() Options {
	return Options{
		Simulations: DefaultSimulations,
		Policy:      scoring.DefaultPolicy,
		Mode:        ModeSimulate,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Resolve fills defaults for a data set of competitors x tests and validates
// the result. It never touches the receiver.
func (o Options) Resolve(competitors, tests int) (Options, error) {
	if !o.Policy.Valid() {
		return o, &scoring.UnknownPolicyError{Name: o.Policy.String()}
	}
	if _, ok := modeNames[o.Mode]; !ok {
		return o, &ConfigurationError{Field: "mode", Reason: "is not a known mode"}
	}

	r := o
	if r.Limit == 0 {
		r.Limit = competitors
	}
	if r.Show == 0 {
		r.Show = r.Limit
	}
	if r.Places == 0 {
		r.Places = r.Show
	}
	if r.TestsPerTrial == 0 {
		r.TestsPerTrial = tests
	}
	if r.Simulations == 0 {
		r.Simulations = DefaultSimulations
	}

	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return o, configErrorFrom(verrs[0])
		}
		return o, fmt.Errorf("validate options: %w", err)
	}

	if r.Limit > competitors {
		return o, &ConfigurationError{Field: "limit", Reason: fmt.Sprintf("must be <= %d competitors available, got %d", competitors, r.Limit)}
	}
	if r.TestsPerTrial > tests {
		return o, &ConfigurationError{Field: "tests_per_trial", Reason: fmt.Sprintf("must be <= %d test cases, got %d", tests, r.TestsPerTrial)}
	}
	return r, nil
}

func configErrorFrom(fe validator.FieldError) *ConfigurationError {
	var reason string
	switch fe.Tag() {
	case "gte":
		reason = fmt.Sprintf("must be >= %s, got %v", fe.Param(), fe.Value())
	case "ltefield":
		reason = fmt.Sprintf("must be <= %s, got %v", strings.ToLower(fe.Param()), fe.Value())
	default:
		reason = fmt.Sprintf("failed %q validation", fe.Tag())
	}
	return &ConfigurationError{Field: fe.Field(), Reason: reason}
}
