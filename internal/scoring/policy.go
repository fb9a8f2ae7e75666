package scoring

import (
	"fmt"
	"strings"
)

// Policy selects how raw scores of one test case become normalized scores.
type Policy int

const (
	PolicyRaw Policy = iota
	PolicyRelativeToMax
	PolicyRelativeToMin
	PolicyRankDescending
	PolicyRankAscending
	PolicyCustomSquaredRatio

	numPolicies
)

// DefaultPolicy rewards the best score of each test case quadratically.
const DefaultPolicy = PolicyCustomSquaredRatio

var policyNames = [numPolicies]string{
	PolicyRaw:                "raw",
	PolicyRelativeToMax:      "relative-to-max",
	PolicyRelativeToMin:      "relative-to-min",
	PolicyRankDescending:     "rank-descending",
	PolicyRankAscending:      "rank-ascending",
	PolicyCustomSquaredRatio: "custom-squared-ratio",
}

// columnFunc normalizes the scores of a single test case into out.
// len(out) == len(scores); out is zeroed by the caller.
type columnFunc func(scores, out []float64)

var policyFuncs = [numPolicies]columnFunc{
	PolicyRaw:                normalizeRaw,
	PolicyRelativeToMax:      normalizeRelativeToMax,
	PolicyRelativeToMin:      normalizeRelativeToMin,
	PolicyRankDescending:     normalizeRankDescending,
	PolicyRankAscending:      normalizeRankAscending,
	PolicyCustomSquaredRatio: normalizeCustomSquaredRatio,
}

// UnknownPolicyError is returned for a policy name outside the supported set.
type UnknownPolicyError struct {
	Name string
}

func (e *UnknownPolicyError) Error() string {
	return fmt.Sprintf("unknown scoring policy %q (supported: %s)", e.Name, strings.Join(PolicyNames(), ", "))
}

// ParsePolicy maps a policy name to its Policy.
func ParsePolicy(name string) (Policy, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for p, n := range policyNames {
		if n == key {
			return Policy(p), nil
		}
	}
	return 0, &UnknownPolicyError{Name: name}
}

// PolicyNames lists every supported policy name in declaration order.
func PolicyNames() []string {
	out := make([]string, len(policyNames))
	copy(out, policyNames[:])
	return out
}

func (p Policy) Valid() bool { return p >= 0 && p < numPolicies }

func (p Policy) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Policy(%d)", int(p))
	}
	return policyNames[p]
}

func (p Policy) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, &UnknownPolicyError{Name: p.String()}
	}
	return []byte(p.String()), nil
}

func (p *Policy) UnmarshalText(text []byte) error {
	parsed, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
