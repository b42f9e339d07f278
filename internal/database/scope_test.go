//-------------------------------------------------------------------------
//
// Evidentiary Server
//
// Copyright (c) 2026, The Evidentiary Authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package database

import (
	"errors"
	"testing"
)

func TestScopeValidate(t *testing.T) {
	tests := []struct {
		name    string
		scope   Scope
		wantErr bool
	}{
		{"zero scope", Scope{}, false},
		{"single doc", Scope{DocID: "a"}, false},
		{"doc set", Scope{DocIDs: []string{"a", "b"}}, false},
		{"exclusion", Scope{ExcludeDocID: "a"}, false},
		{"doc and exclusion", Scope{DocID: "a", ExcludeDocID: "b"}, true},
		{"set and exclusion", Scope{DocIDs: []string{"a"}, ExcludeDocID: "b"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scope.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrConflictingScope) {
					t.Fatalf("expected ErrConflictingScope, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestScopeClause(t *testing.T) {
	tests := []struct {
		name       string
		scope      Scope
		wantClause string
		wantArgs   []interface{}
	}{
		{"zero scope", Scope{}, "", nil},
		{"single doc", Scope{DocID: "a"}, "doc_id = $5", []interface{}{"a"}},
		{
			"doc set",
			Scope{DocIDs: []string{"a", "b"}},
			"doc_id IN ($5, $6)",
			[]interface{}{"a", "b"},
		},
		{"exclusion", Scope{ExcludeDocID: "a"}, "doc_id != $5", []interface{}{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paramIndex := 5
			var args []interface{}

			got := tt.scope.clause(&paramIndex, &args)
			if got != tt.wantClause {
				t.Errorf("clause = %q, want %q", got, tt.wantClause)
			}
			if len(args) != len(tt.wantArgs) {
				t.Fatalf("args = %v, want %v", args, tt.wantArgs)
			}
			for i := range args {
				if args[i] != tt.wantArgs[i] {
					t.Errorf("args[%d] = %v, want %v", i, args[i], tt.wantArgs[i])
				}
			}
			if want := 5 + len(tt.wantArgs); paramIndex != want {
				t.Errorf("paramIndex = %d, want %d", paramIndex, want)
			}
		})
	}
}

func TestScopeIsZero(t *testing.T) {
	if !(Scope{}).IsZero() {
		t.Error("empty scope should be zero")
	}
	if (Scope{DocID: "a"}).IsZero() {
		t.Error("doc scope should not be zero")
	}
	if (Scope{ExcludeDocID: "a"}).IsZero() {
		t.Error("exclusion scope should not be zero")
	}
}
