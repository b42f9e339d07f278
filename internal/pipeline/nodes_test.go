//-------------------------------------------------------------------------
//
// Evidentiary Server
//
// Copyright (c) 2026, The Evidentiary Authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package pipeline

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/evidentiary/evidentiary-server/internal/database"
)

func TestParseCritique(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    critiqueVerdict
		wantErr bool
	}{
		{
			name:    "plain JSON",
			content: `{"confidence": 0.7, "refinements": ["check appendix"], "notes": "solid"}`,
			want: critiqueVerdict{
				Confidence:  0.7,
				Refinements: []string{"check appendix"},
				Notes:       "solid",
			},
		},
		{
			name:    "JSON wrapped in prose",
			content: "Here is my verdict:\n```json\n{\"confidence\": 0.5, \"refinements\": []}\n```\nDone.",
			want:    critiqueVerdict{Confidence: 0.5, Refinements: []string{}},
		},
		{
			name:    "confidence clamped high",
			content: `{"confidence": 1.7}`,
			want:    critiqueVerdict{Confidence: 1},
		},
		{
			name:    "confidence clamped low",
			content: `{"confidence": -0.2}`,
			want:    critiqueVerdict{Confidence: 0},
		},
		{
			name:    "no JSON object",
			content: "I cannot judge this.",
			wantErr: true,
		},
		{
			name:    "malformed JSON",
			content: `{"confidence": oops}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCritique(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseCritique failed: %v", err)
			}
			if !reflect.DeepEqual(*got, tt.want) {
				t.Errorf("verdict = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestPruneCitationsNode(t *testing.T) {
	o := &Orchestrator{}
	s := &State{
		Answer: "First [1], third [3], again [1], out of range [9], junk [0].",
		Evidence: []EvidenceItem{
			{ChunkID: "c1", DocID: "d1"},
			{ChunkID: "c2", DocID: "d1"},
			{ChunkID: "c1", DocID: "d1", VectorScore: 0.4}, // duplicate identity via second branch
		},
	}

	upd, err := o.pruneCitationsNode(context.Background(), s)
	if err != nil {
		t.Fatalf("pruneCitationsNode failed: %v", err)
	}
	if upd.EvidenceOp != EvidenceReplace {
		t.Fatalf("expected replace, got %v", upd.EvidenceOp)
	}

	// [1] and [3] cite the same chunk; identity dedup keeps one row.
	if len(upd.Evidence) != 1 || upd.Evidence[0].ChunkID != "c1" {
		t.Errorf("pruned evidence = %+v", upd.Evidence)
	}
}

func TestPruneCitationsNoMarkers(t *testing.T) {
	o := &Orchestrator{}
	s := &State{
		Answer:   "The evidence does not cover this.",
		Evidence: []EvidenceItem{{ChunkID: "c1"}},
	}

	upd, err := o.pruneCitationsNode(context.Background(), s)
	if err != nil {
		t.Fatalf("pruneCitationsNode failed: %v", err)
	}
	if len(upd.Evidence) != 0 {
		t.Errorf("uncited evidence must be dropped, got %+v", upd.Evidence)
	}
}

func TestFormatEvidence(t *testing.T) {
	items := []EvidenceItem{
		{ChunkID: "c1", DocID: "manual", Text: "first passage", PageStart: 3, PageEnd: 5},
		{ChunkID: "c2", DocID: "manual", Text: "second passage", PageStart: 7, PageEnd: 7},
		{ChunkID: "c3", DocID: "notes", Text: "third passage"},
	}

	out := formatEvidence(items)

	for _, want := range []string{
		"[1] (document manual, pages 3-5)",
		"[2] (document manual, page 7)",
		"[3] (document notes)",
		"first passage", "second passage", "third passage",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("formatted evidence missing %q:\n%s", want, out)
		}
	}

	if formatEvidence(nil) != "(none)\n" {
		t.Errorf("empty evidence = %q", formatEvidence(nil))
	}
}

func TestPrimaryScope(t *testing.T) {
	o := &Orchestrator{}

	tests := []struct {
		name  string
		state State
		want  database.Scope
	}{
		{"corpus wide", State{}, database.Scope{}},
		{"primary document", State{DocID: "d1"}, database.Scope{DocID: "d1"}},
		{
			"explicit selection",
			State{SelectedDocIDs: []string{"a", "b"}},
			database.Scope{DocIDs: []string{"a", "b"}},
		},
		{
			"primary document wins over selection",
			State{DocID: "d1", SelectedDocIDs: []string{"a"}},
			database.Scope{DocID: "d1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := o.primaryScope(&tt.state)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("scope = %+v, want %+v", got, tt.want)
			}
		})
	}
}
