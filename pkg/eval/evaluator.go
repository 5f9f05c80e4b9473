package eval

import (
	"fmt"
	"strings"

	"github.com/chinmayajena/sundaygraph/pkg/odl"
)

// Profile selects how strictly gate outcomes are judged.
type Profile string

const (
	// ProfileStrict fails on any gate failure or warning.
	ProfileStrict Profile = "strict"
	// ProfileStandard fails only on gate failures.
	ProfileStandard Profile = "standard"
	// ProfileLenient fails only on deployability failures.
	ProfileLenient Profile = "lenient"
)

// ParseProfile resolves a profile name, defaulting unknown names to
// standard.
func ParseProfile(name string) Profile {
	switch Profile(strings.ToLower(name)) {
	case ProfileStrict:
		return ProfileStrict
	case ProfileLenient:
		return ProfileLenient
	default:
		return ProfileStandard
	}
}

// Result is the outcome of evaluating one version against a profile.
type Result struct {
	Profile      Profile                           `json:"profile"`
	Passed       bool                              `json:"passed"`
	Metrics      map[Category]map[string]GateResult `json:"metrics"`
	FirstFailure *GateResult                       `json:"first_failure,omitempty"`
}

// Evaluate runs every gate bundle against the IR and judges the
// outcomes under the given profile. Gates always all run; the profile
// only decides which outcomes sink the result.
func Evaluate(ir *odl.IR, profile Profile) *Result {
	result := &Result{
		Profile: profile,
		Passed:  true,
		Metrics: map[Category]map[string]GateResult{
			Structural:    {},
			Semantic:      {},
			Deployability: {},
		},
	}

	for _, g := range gates {
		gr := runGate(g, ir)
		result.Metrics[g.category][g.id] = gr

		if sinksResult(profile, gr) && result.FirstFailure == nil {
			failure := gr
			result.FirstFailure = &failure
			result.Passed = false
		}
	}

	return result
}

func runGate(g gate, ir *odl.IR) GateResult {
	offenders := g.check(ir)
	gr := GateResult{
		GateID:   g.id,
		Category: g.category,
		Status:   StatusPass,
		Message:  "ok",
	}
	if len(offenders) > 0 {
		gr.Status = StatusFail
		if g.warnOnly {
			gr.Status = StatusWarning
		}
		gr.Message = fmt.Sprintf("%s: %s", g.message, strings.Join(offenders, "; "))
		gr.Details = offenders
	}
	return gr
}

// sinksResult decides whether a gate outcome fails the run under the
// profile. Strictness is monotone: anything that sinks lenient sinks
// standard, and anything that sinks standard sinks strict.
func sinksResult(profile Profile, gr GateResult) bool {
	switch profile {
	case ProfileStrict:
		return gr.Status == StatusFail || gr.Status == StatusWarning
	case ProfileLenient:
		return gr.Status == StatusFail && gr.Category == Deployability
	default: // standard
		return gr.Status == StatusFail
	}
}
