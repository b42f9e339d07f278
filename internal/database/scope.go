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
	"fmt"
	"strings"
)

// ErrConflictingScope is returned when an inclusion filter and the
// exclusion filter are both set on one retrieval call.
var ErrConflictingScope = errors.New("inclusion and exclusion scope filters are mutually exclusive")

// Scope constrains which documents a retrieval call may return. At most
// one of the inclusion filters (DocID, DocIDs) or the exclusion filter
// (ExcludeDocID) is active; the zero Scope is corpus-wide. ExcludeDocID
// serves the cross-document second stage, which must not re-surface the
// primary document.
type Scope struct {
	DocID        string
	DocIDs       []string
	ExcludeDocID string
}

// IsZero reports whether the scope applies no filter at all.
func (s Scope) IsZero() bool {
	return s.DocID == "" && len(s.DocIDs) == 0 && s.ExcludeDocID == ""
}

// Validate rejects a scope that combines inclusion and exclusion.
func (s Scope) Validate() error {
	if s.ExcludeDocID != "" && (s.DocID != "" || len(s.DocIDs) > 0) {
		return ErrConflictingScope
	}
	return nil
}

// clause renders the scope as a SQL condition over doc_id, appending its
// bind values to args starting at *paramIndex. Returns "" for the zero
// scope.
func (s Scope) clause(paramIndex *int, args *[]interface{}) string {
	next := func(v interface{}) string {
		ph := fmt.Sprintf("$%d", *paramIndex)
		*paramIndex++
		*args = append(*args, v)
		return ph
	}

	switch {
	case s.DocID != "":
		return "doc_id = " + next(s.DocID)
	case len(s.DocIDs) > 0:
		placeholders := make([]string, len(s.DocIDs))
		for i, id := range s.DocIDs {
			placeholders[i] = next(id)
		}
		return "doc_id IN (" + strings.Join(placeholders, ", ") + ")"
	case s.ExcludeDocID != "":
		return "doc_id != " + next(s.ExcludeDocID)
	}
	return ""
}
