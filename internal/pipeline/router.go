//-------------------------------------------------------------------------
//
// Evidentiary Server
//
// Copyright (c) 2026, The Evidentiary Authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package pipeline

// Decision is the router's verdict after a critique step.
type Decision int

const (
	// DecisionSynthesize proceeds to answer synthesis.
	DecisionSynthesize Decision = iota

	// DecisionRefine loops back through retrieval with the next pending
	// directive.
	DecisionRefine
)

// String returns the decision name for logging and traces.
func (d Decision) String() string {
	if d == DecisionRefine {
		return "refine"
	}
	return "synthesize"
}

// Decide routes between refinement and synthesis. Refinement requires all
// three: confidence below the threshold, the iteration count within the
// ceiling, and at least one pending directive to act on. The ceiling
// check is inclusive: at iterations == maxIterations one more pass is
// still permitted.
func Decide(confidence, threshold float64, iterations, maxIterations, pendingRefinements int) Decision {
	if confidence < threshold && iterations <= maxIterations && pendingRefinements > 0 {
		return DecisionRefine
	}
	return DecisionSynthesize
}
