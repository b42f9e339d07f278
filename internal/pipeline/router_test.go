//-------------------------------------------------------------------------
//
// Evidentiary Server
//
// Copyright (c) 2026, The Evidentiary Authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package pipeline

import "testing"

func TestDecide(t *testing.T) {
	const (
		threshold = 0.6
		maxIters  = 5
	)

	tests := []struct {
		name        string
		confidence  float64
		iterations  int
		refinements int
		want        Decision
	}{
		{"low confidence with pending directive", 0.3, 0, 1, DecisionRefine},
		{"high confidence", 0.9, 0, 1, DecisionSynthesize},
		{"confidence exactly at threshold", 0.6, 0, 1, DecisionSynthesize},
		{"just below threshold", 0.59, 0, 1, DecisionRefine},
		{"no pending directives", 0.3, 0, 0, DecisionSynthesize},
		{"iterations at ceiling still refines", 0.3, maxIters, 1, DecisionRefine},
		{"iterations past ceiling", 0.3, maxIters + 1, 1, DecisionSynthesize},
		{"zero confidence exhausted budget", 0.0, maxIters + 3, 4, DecisionSynthesize},
		{"high confidence ignores iterations", 0.95, maxIters + 10, 3, DecisionSynthesize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.confidence, threshold, tt.iterations, maxIters, tt.refinements)
			if got != tt.want {
				t.Errorf("Decide(%v, %v, %d, %d, %d) = %v, want %v",
					tt.confidence, threshold, tt.iterations, maxIters, tt.refinements,
					got, tt.want)
			}
		})
	}
}

func TestDecideHighConfidenceAlwaysSynthesizes(t *testing.T) {
	for iterations := 0; iterations <= 10; iterations++ {
		for refinements := 0; refinements <= 3; refinements++ {
			got := Decide(0.6, 0.6, iterations, 5, refinements)
			if got != DecisionSynthesize {
				t.Errorf("iterations=%d refinements=%d: got %v, want synthesize",
					iterations, refinements, got)
			}
		}
	}
}

func TestDecisionString(t *testing.T) {
	if DecisionRefine.String() != "refine" {
		t.Errorf("DecisionRefine.String() = %q", DecisionRefine.String())
	}
	if DecisionSynthesize.String() != "synthesize" {
		t.Errorf("DecisionSynthesize.String() = %q", DecisionSynthesize.String())
	}
}

func TestTerminal(t *testing.T) {
	for _, node := range []string{NodePlan, NodeRetrieve, NodeCompress, NodeCritique, NodeSynthesize} {
		if Terminal(node) {
			t.Errorf("Terminal(%q) = true, want false", node)
		}
	}
	if !Terminal(NodePruneCitations) {
		t.Error("Terminal(prune_citations) = false, want true")
	}
	if !Terminal(NodeDone) {
		t.Error("Terminal(done) = false, want true")
	}
}
