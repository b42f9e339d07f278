//-------------------------------------------------------------------------
//
// Evidentiary Server
//
// Copyright (c) 2026, The Evidentiary Authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/evidentiary/evidentiary-server/internal/pipeline"
)

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// PipelinesResponse is the response for the list pipelines endpoint.
type PipelinesResponse struct {
	Pipelines []pipeline.Info `json:"pipelines"`
}

// AskRequest is the request body for the ask endpoint.
type AskRequest struct {
	Question       string   `json:"question"`
	ConversationID string   `json:"conversation_id,omitempty"`
	DocID          string   `json:"doc_id,omitempty"`
	SelectedDocIDs []string `json:"selected_doc_ids,omitempty"`
	CrossDoc       bool     `json:"cross_doc,omitempty"`
}

// AskResponse is the terminal outcome of one pipeline run.
type AskResponse struct {
	ConversationID string       `json:"conversation_id"`
	Answer         string       `json:"answer"`
	Confidence     float64      `json:"confidence"`
	Iterations     int          `json:"iterations"`
	Citations      []Citation   `json:"citations"`
	Trace          []TraceEntry `json:"trace"`
}

// Citation is one evidence chunk the answer actually cites.
type Citation struct {
	ChunkID   string `json:"chunk_id"`
	DocID     string `json:"doc_id"`
	PageStart int    `json:"page_start,omitempty"`
	PageEnd   int    `json:"page_end,omitempty"`
	Text      string `json:"text"`
}

// TraceEntry is one audit-trail step of a run.
type TraceEntry struct {
	Node          string `json:"node"`
	DurationMS    int64  `json:"duration_ms"`
	EvidenceCount int    `json:"evidence_count"`
	Decision      string `json:"decision,omitempty"`
}

// ConversationResponse summarizes the last checkpointed state of a
// conversation.
type ConversationResponse struct {
	ConversationID string   `json:"conversation_id"`
	Node           string   `json:"node"`
	Completed      bool     `json:"completed"`
	Question       string   `json:"question"`
	Answer         string   `json:"answer,omitempty"`
	Confidence     float64  `json:"confidence"`
	Iterations     int      `json:"iterations"`
	EvidenceCount  int      `json:"evidence_count"`
	DocIDs         []string `json:"doc_ids,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Node    string `json:"node,omitempty"` // Failing pipeline node, if any
}

// handleHealth handles the GET /health endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// handleListPipelines handles the GET /v1/pipelines endpoint.
func (s *Server) handleListPipelines(w http.ResponseWriter, r *http.Request) {
	pipelines := s.pipelines.List()
	s.respondJSON(w, http.StatusOK, PipelinesResponse{Pipelines: pipelines})
}

// handleAsk handles the POST /v1/pipelines/{name}/ask endpoint.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		s.respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "pipeline name required")
		return
	}

	p, err := s.pipelines.Get(name)
	if err != nil {
		if errors.Is(err, pipeline.ErrPipelineNotFound) {
			s.respondError(w, http.StatusNotFound, "PIPELINE_NOT_FOUND",
				"pipeline not found: "+name)
			return
		}
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	// Parse request body before touching the pipeline
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "INVALID_REQUEST",
			"invalid request body: "+err.Error())
		return
	}

	if req.Question == "" {
		s.respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "question is required")
		return
	}

	if p == nil {
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"pipeline is nil")
		return
	}

	result, err := p.Ask(r.Context(), pipeline.RunRequest{
		Question:       req.Question,
		ConversationID: req.ConversationID,
		DocID:          req.DocID,
		SelectedDocIDs: req.SelectedDocIDs,
		CrossDoc:       req.CrossDoc,
	})
	if err != nil {
		s.logger.Error("pipeline run failed",
			"pipeline", name,
			"error", err)
		s.metrics.ObserveRun(name, "error")

		var nodeErr *pipeline.NodeError
		switch {
		case errors.Is(err, pipeline.ErrNoQuestion):
			s.respondError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		case errors.As(err, &nodeErr):
			for _, step := range nodeErr.Trace {
				s.metrics.ObserveNode(step.Node, step.Duration)
			}
			s.respondJSON(w, http.StatusInternalServerError, ErrorResponse{
				Error: ErrorDetail{
					Code:    "EXECUTION_ERROR",
					Message: nodeErr.Error(),
					Node:    nodeErr.Node,
				},
			})
		default:
			s.respondError(w, http.StatusInternalServerError, "EXECUTION_ERROR", err.Error())
		}
		return
	}

	s.metrics.ObserveRun(name, "ok")
	for _, step := range result.Trace {
		s.metrics.ObserveNode(step.Node, step.Duration)
	}

	s.respondJSON(w, http.StatusOK, askResponse(result))
}

// ResumeRequest is the request body for the resume endpoint.
type ResumeRequest struct {
	ConversationID string `json:"conversation_id"`
}

// handleResume handles the POST /v1/pipelines/{name}/resume endpoint. It
// continues an interrupted conversation from its last checkpoint.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	p, err := s.pipelines.Get(name)
	if err != nil {
		if errors.Is(err, pipeline.ErrPipelineNotFound) {
			s.respondError(w, http.StatusNotFound, "PIPELINE_NOT_FOUND",
				"pipeline not found: "+name)
			return
		}
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	var req ResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "INVALID_REQUEST",
			"invalid request body: "+err.Error())
		return
	}

	if req.ConversationID == "" {
		s.respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "conversation_id is required")
		return
	}

	if p == nil {
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"pipeline is nil")
		return
	}

	result, err := p.Resume(r.Context(), req.ConversationID)
	if err != nil {
		if errors.Is(err, pipeline.ErrConversationNotFound) {
			s.respondError(w, http.StatusNotFound, "CONVERSATION_NOT_FOUND",
				"conversation not found: "+req.ConversationID)
			return
		}
		s.logger.Error("pipeline resume failed",
			"pipeline", name,
			"conversation_id", req.ConversationID,
			"error", err)
		s.metrics.ObserveRun(name, "error")

		var nodeErr *pipeline.NodeError
		if errors.As(err, &nodeErr) {
			for _, step := range nodeErr.Trace {
				s.metrics.ObserveNode(step.Node, step.Duration)
			}
			s.respondJSON(w, http.StatusInternalServerError, ErrorResponse{
				Error: ErrorDetail{
					Code:    "EXECUTION_ERROR",
					Message: nodeErr.Error(),
					Node:    nodeErr.Node,
				},
			})
			return
		}
		s.respondError(w, http.StatusInternalServerError, "EXECUTION_ERROR", err.Error())
		return
	}

	s.metrics.ObserveRun(name, "ok")
	for _, step := range result.Trace {
		s.metrics.ObserveNode(step.Node, step.Duration)
	}

	s.respondJSON(w, http.StatusOK, askResponse(result))
}

// handleConversation handles the GET /v1/conversations/{id} endpoint.
func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		s.respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "conversation id required")
		return
	}

	node, state, err := s.pipelines.Inspect(r.Context(), id)
	if err != nil {
		if errors.Is(err, pipeline.ErrConversationNotFound) {
			s.respondError(w, http.StatusNotFound, "CONVERSATION_NOT_FOUND",
				"conversation not found: "+id)
			return
		}
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, ConversationResponse{
		ConversationID: id,
		Node:           node,
		Completed:      pipeline.Terminal(node),
		Question:       state.Question,
		Answer:         state.Answer,
		Confidence:     state.Confidence,
		Iterations:     state.Iterations,
		EvidenceCount:  len(state.Evidence),
		DocIDs:         state.DocIDs,
	})
}

// askResponse flattens a pipeline result into the wire shape.
func askResponse(result *pipeline.Result) AskResponse {
	citations := make([]Citation, 0, len(result.State.Evidence))
	for _, ev := range result.State.Evidence {
		citations = append(citations, Citation{
			ChunkID:   ev.ChunkID,
			DocID:     ev.DocID,
			PageStart: ev.PageStart,
			PageEnd:   ev.PageEnd,
			Text:      ev.Text,
		})
	}

	trace := make([]TraceEntry, 0, len(result.Trace))
	for _, step := range result.Trace {
		trace = append(trace, TraceEntry{
			Node:          step.Node,
			DurationMS:    step.Duration.Milliseconds(),
			EvidenceCount: step.EvidenceCount,
			Decision:      step.Decision,
		})
	}

	return AskResponse{
		ConversationID: result.ConversationID,
		Answer:         result.State.Answer,
		Confidence:     result.State.Confidence,
		Iterations:     result.State.Iterations,
		Citations:      citations,
		Trace:          trace,
	}
}

// respondJSON sends a JSON response with RFC 8631 Link header for API discovery.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	// RFC 8631: Link header for API documentation discovery
	w.Header().Set("Link", `</v1/openapi.json>; rel="service-desc"`)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// respondError sends an error response.
func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
