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
	"strings"
	"unicode"
)

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// SanitizeQuery makes free text safe for the to_tsquery grammar, where
// characters like & | ! ( ) : * are operators. It is total and
// idempotent; the result may be empty, which callers treat as "no
// lexical constraint" rather than an error.
//
// Steps, in order: line breaks become spaces; a leading run of bullet
// and markup characters is stripped; every literal & becomes the word
// "and", preserving conjunction intent; remaining characters that are
// not letters, digits, or spaces are dropped; whitespace runs collapse
// to single spaces; the result is trimmed.
func SanitizeQuery(text string) string {
	s := lineBreaks.Replace(text)
	s = strings.TrimLeft(s, " \t*-•")
	s = strings.ReplaceAll(s, "&", " and ")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			b.WriteRune(r)
		} else if unicode.IsSpace(r) {
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// BuildTSQuery joins sanitized terms with the AND operator, producing a
// conjunctive to_tsquery expression. Empty input yields the empty string.
func BuildTSQuery(sanitized string) string {
	terms := strings.Fields(sanitized)
	return strings.Join(terms, " & ")
}
