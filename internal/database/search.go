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
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/evidentiary/evidentiary-server/internal/config"
)

// ErrDimensionMismatch is returned when a query embedding does not match
// the configured dimensionality. The vector is never truncated or padded.
var ErrDimensionMismatch = errors.New("query embedding dimension mismatch")

// EvidenceRow is one retrieved chunk. Exactly one of LexicalScore and
// VectorScore is non-zero per raw row: each row comes from a single
// retrieval branch, and a chunk ranking on both branches appears twice.
type EvidenceRow struct {
	ChunkID      string  `json:"chunk_id"`
	DocID        string  `json:"doc_id"`
	Text         string  `json:"text"`
	PageStart    int     `json:"page_start"`
	PageEnd      int     `json:"page_end"`
	ContentType  string  `json:"content_type"` // text|image|other
	ImagePath    string  `json:"image_path,omitempty"`
	LexicalScore float64 `json:"lexical_score"`
	VectorScore  float64 `json:"vector_score"`
}

// SearchParams are the inputs to one hybrid retrieval call.
type SearchParams struct {
	Query      string    // Free text; sanitized before it reaches the FTS grammar
	Embedding  []float32 // Precomputed query embedding
	Dimensions int       // Configured embedding dimensionality

	KLexical int // Full-text branch candidate count
	KVector  int // Vector branch candidate count
	KFinal   int // Fused candidates returned

	LexicalWeight float64
	VectorWeight  float64

	Scope Scope
}

// HybridSearch returns the top KFinal evidence candidates, fusing the
// full-text and vector-similarity rankings.
//
// The two branches run as one SQL statement: the lexical branch ranks
// scope-matching chunks with ts_rank_cd and carries a zero vector score,
// the vector branch ranks by cosine similarity and carries a zero lexical
// score. The union is NOT deduplicated by chunk identity before the final
// ordering by LexicalWeight*lexical + VectorWeight*vector; downstream
// consumers must tolerate duplicate chunk IDs.
func (p *Pool) HybridSearch(
	ctx context.Context,
	src config.SourceConfig,
	params SearchParams,
) ([]EvidenceRow, error) {
	if err := params.Scope.Validate(); err != nil {
		return nil, err
	}
	if params.Dimensions > 0 && len(params.Embedding) != params.Dimensions {
		return nil, fmt.Errorf("%w: got %d, configured %d",
			ErrDimensionMismatch, len(params.Embedding), params.Dimensions)
	}

	query, args := buildHybridQuery(src, params)

	rows, release, err := p.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("hybrid search failed: %w", err)
	}
	defer release()
	defer rows.Close()

	var results []EvidenceRow
	for rows.Next() {
		var r EvidenceRow
		if err := rows.Scan(
			&r.ChunkID, &r.DocID, &r.Text,
			&r.PageStart, &r.PageEnd,
			&r.ContentType, &r.ImagePath,
			&r.LexicalScore, &r.VectorScore,
		); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return results, nil
}

// chunkColumns are the shared select columns of both branches; nullable
// columns are coalesced so rows scan into plain Go values.
const chunkColumns = `chunk_id, doc_id, content,
		COALESCE(page_start, 0) AS page_start, COALESCE(page_end, 0) AS page_end,
		COALESCE(content_type, 'text') AS content_type, COALESCE(image_path, '') AS image_path`

// buildHybridQuery renders the fused-ranking SQL statement and its bind
// arguments. When the sanitized query text is empty the lexical branch is
// omitted entirely: an empty query is "no lexical constraint", not an
// error.
func buildHybridQuery(src config.SourceConfig, params SearchParams) (string, []interface{}) {
	table := parseTableIdentifier(src.Table).Sanitize()
	tsquery := BuildTSQuery(SanitizeQuery(params.Query))

	var (
		args       []interface{}
		paramIndex = 1
		branches   []string
	)

	next := func(v interface{}) string {
		ph := fmt.Sprintf("$%d", paramIndex)
		paramIndex++
		args = append(args, v)
		return ph
	}

	if tsquery != "" {
		langPh := next(src.Language)
		queryPh := next(tsquery)
		klexPh := next(params.KLexical)

		where := fmt.Sprintf("tsv @@ to_tsquery(%s::regconfig, %s)", langPh, queryPh)
		if cond := params.Scope.clause(&paramIndex, &args); cond != "" {
			where += " AND " + cond
		}

		branches = append(branches, fmt.Sprintf(`(
	SELECT %s,
		ts_rank_cd(tsv, to_tsquery(%s::regconfig, %s))::float8 AS lexical_score,
		0::float8 AS vector_score
	FROM %s
	WHERE %s
	ORDER BY lexical_score DESC
	LIMIT %s
)`, chunkColumns, langPh, queryPh, table, where, klexPh))
	}

	vecPh := next(pgvector.NewVector(params.Embedding))
	kvecPh := next(params.KVector)

	whereVec := ""
	if cond := params.Scope.clause(&paramIndex, &args); cond != "" {
		whereVec = "\n\tWHERE " + cond
	}

	branches = append(branches, fmt.Sprintf(`(
	SELECT %s,
		0::float8 AS lexical_score,
		(1 - (embedding <=> %s::vector))::float8 AS vector_score
	FROM %s%s
	ORDER BY embedding <=> %s::vector
	LIMIT %s
)`, chunkColumns, vecPh, table, whereVec, vecPh, kvecPh))

	wLexPh := next(params.LexicalWeight)
	wVecPh := next(params.VectorWeight)
	kFinalPh := next(params.KFinal)

	query := fmt.Sprintf(`SELECT chunk_id, doc_id, content, page_start, page_end,
	content_type, image_path, lexical_score, vector_score
FROM (
%s
) AS candidates
ORDER BY %s * lexical_score + %s * vector_score DESC
LIMIT %s`,
		strings.Join(branches, "\nUNION ALL\n"),
		wLexPh, wVecPh, kFinalPh)

	return query, args
}

// parseTableIdentifier splits a table name into schema and table parts.
// Supports formats: "table", "schema.table"
func parseTableIdentifier(table string) pgx.Identifier {
	parts := strings.Split(table, ".")
	return pgx.Identifier(parts)
}

// FusedScore is the weighted ranking score combining both retrieval
// signals.
func FusedScore(r EvidenceRow, lexicalWeight, vectorWeight float64) float64 {
	return lexicalWeight*r.LexicalScore + vectorWeight*r.VectorScore
}

// RankByFusedScore orders rows by fused score, highest first, and keeps at
// most limit rows. Duplicate chunk identities are preserved. Used when the
// cross-document second stage merges its candidates with the primary
// stage's before truncation.
func RankByFusedScore(rows []EvidenceRow, lexicalWeight, vectorWeight float64, limit int) []EvidenceRow {
	ranked := make([]EvidenceRow, len(rows))
	copy(ranked, rows)

	sort.SliceStable(ranked, func(i, j int) bool {
		return FusedScore(ranked[i], lexicalWeight, vectorWeight) >
			FusedScore(ranked[j], lexicalWeight, vectorWeight)
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
