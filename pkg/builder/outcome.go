package builder

import "regexp"

// OutcomeKind classifies a build attempt.
type OutcomeKind int

const (
	// Success: the build completed; the package is buildable with the
	// current manifests.
	Success OutcomeKind = iota
	// MissingDependency: the diagnostics name a distribution the resolver
	// could not find. The attempt is retryable once the dependency is
	// added to the override set.
	MissingDependency
	// OtherFailure: the build failed for a reason we cannot diagnose.
	// Retrying without a state change cannot change the outcome.
	OtherFailure
)

// Outcome is the structured result of interpreting a build attempt. The
// parsing lives here, isolated from the retry loop, so the heuristic can be
// strengthened without touching the loop's control logic.
type Outcome struct {
	Kind OutcomeKind
	// MissingDep is the distribution named by the diagnostics, already
	// normalised; set only when Kind == MissingDependency.
	MissingDep string
	// Diagnostic is the full captured output; set on any failure.
	Diagnostic string
}

// Both pip and pip-compile emit this phrasing when a requirement has no
// satisfiable distribution in the configured index.
var missingDistPattern = regexp.MustCompile(`(?i)no matching distribution found for\s+([A-Za-z0-9][A-Za-z0-9._-]*)`)

// Interpret turns raw build-tool output plus an exit error into an Outcome.
func Interpret(output []byte, err error) Outcome {
	if err == nil {
		return Outcome{Kind: Success}
	}
	if m := missingDistPattern.FindSubmatch(output); m != nil {
		return Outcome{
			Kind:       MissingDependency,
			MissingDep: string(m[1]),
			Diagnostic: string(output),
		}
	}
	diagnostic := string(output)
	if diagnostic == "" {
		diagnostic = err.Error()
	}
	return Outcome{Kind: OtherFailure, Diagnostic: diagnostic}
}
