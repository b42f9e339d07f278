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
	"net/http"
)

// OpenAPISpec represents the OpenAPI v3 specification.
type OpenAPISpec struct {
	OpenAPI    string                 `json:"openapi"`
	Info       OpenAPIInfo            `json:"info"`
	Servers    []OpenAPIServer        `json:"servers"`
	Paths      map[string]OpenAPIPath `json:"paths"`
	Components OpenAPIComponents      `json:"components"`
}

// OpenAPIInfo contains API metadata.
type OpenAPIInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// OpenAPIServer describes a server.
type OpenAPIServer struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

// OpenAPIPath contains operations for a path.
type OpenAPIPath struct {
	Get    *OpenAPIOperation `json:"get,omitempty"`
	Post   *OpenAPIOperation `json:"post,omitempty"`
	Put    *OpenAPIOperation `json:"put,omitempty"`
	Delete *OpenAPIOperation `json:"delete,omitempty"`
}

// OpenAPIOperation describes an API operation.
type OpenAPIOperation struct {
	Summary     string                     `json:"summary"`
	Description string                     `json:"description,omitempty"`
	OperationID string                     `json:"operationId"`
	Tags        []string                   `json:"tags,omitempty"`
	Parameters  []OpenAPIParameter         `json:"parameters,omitempty"`
	RequestBody *OpenAPIRequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]OpenAPIResponse `json:"responses"`
}

// OpenAPIParameter describes a parameter.
type OpenAPIParameter struct {
	Name        string        `json:"name"`
	In          string        `json:"in"`
	Description string        `json:"description,omitempty"`
	Required    bool          `json:"required"`
	Schema      OpenAPISchema `json:"schema"`
}

// OpenAPIRequestBody describes a request body.
type OpenAPIRequestBody struct {
	Description string                      `json:"description,omitempty"`
	Required    bool                        `json:"required"`
	Content     map[string]OpenAPIMediaType `json:"content"`
}

// OpenAPIResponse describes a response.
type OpenAPIResponse struct {
	Description string                      `json:"description"`
	Content     map[string]OpenAPIMediaType `json:"content,omitempty"`
}

// OpenAPIMediaType describes a media type.
type OpenAPIMediaType struct {
	Schema OpenAPISchema `json:"schema"`
}

// OpenAPISchema describes a schema.
type OpenAPISchema struct {
	Type        string                   `json:"type,omitempty"`
	Format      string                   `json:"format,omitempty"`
	Description string                   `json:"description,omitempty"`
	Properties  map[string]OpenAPISchema `json:"properties,omitempty"`
	Items       *OpenAPISchema           `json:"items,omitempty"`
	Required    []string                 `json:"required,omitempty"`
	Default     any                      `json:"default,omitempty"`
	Ref         string                   `json:"$ref,omitempty"`
}

// OpenAPIComponents contains reusable components.
type OpenAPIComponents struct {
	Schemas map[string]OpenAPISchema `json:"schemas"`
}

// handleOpenAPI handles the GET /v1/openapi.json endpoint.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	spec := BuildOpenAPISpec()
	s.respondJSON(w, http.StatusOK, spec)
}

func errorContent() map[string]OpenAPIMediaType {
	return map[string]OpenAPIMediaType{
		"application/json": {
			Schema: OpenAPISchema{
				Ref: "#/components/schemas/ErrorResponse",
			},
		},
	}
}

// BuildOpenAPISpec constructs the OpenAPI v3 specification.
// This is exported so it can be used to generate static documentation.
func BuildOpenAPISpec() OpenAPISpec {
	return OpenAPISpec{
		OpenAPI: "3.0.3",
		Info: OpenAPIInfo{
			Title:       "Evidentiary Server API",
			Description: "REST API for iterative retrieval-and-refinement question answering over document corpora",
			Version:     "1.0.0",
		},
		Servers: []OpenAPIServer{
			{
				URL:         "/v1",
				Description: "API v1",
			},
		},
		Paths: map[string]OpenAPIPath{
			"/health": {
				Get: &OpenAPIOperation{
					Summary:     "Health check",
					Description: "Check if the server is running and healthy",
					OperationID: "getHealth",
					Tags:        []string{"System"},
					Responses: map[string]OpenAPIResponse{
						"200": {
							Description: "Server is healthy",
							Content: map[string]OpenAPIMediaType{
								"application/json": {
									Schema: OpenAPISchema{
										Ref: "#/components/schemas/HealthResponse",
									},
								},
							},
						},
					},
				},
			},
			"/pipelines": {
				Get: &OpenAPIOperation{
					Summary:     "List pipelines",
					Description: "Get a list of all available question-answering pipelines",
					OperationID: "listPipelines",
					Tags:        []string{"Pipelines"},
					Responses: map[string]OpenAPIResponse{
						"200": {
							Description: "List of pipelines",
							Content: map[string]OpenAPIMediaType{
								"application/json": {
									Schema: OpenAPISchema{
										Ref: "#/components/schemas/PipelinesResponse",
									},
								},
							},
						},
					},
				},
			},
			"/pipelines/{name}/ask": {
				Post: &OpenAPIOperation{
					Summary:     "Ask a question",
					Description: "Run the retrieval-and-refinement pipeline for one question and return a cited answer",
					OperationID: "askPipeline",
					Tags:        []string{"Pipelines"},
					Parameters: []OpenAPIParameter{
						{
							Name:        "name",
							In:          "path",
							Description: "Pipeline name",
							Required:    true,
							Schema: OpenAPISchema{
								Type: "string",
							},
						},
					},
					RequestBody: &OpenAPIRequestBody{
						Description: "Ask request",
						Required:    true,
						Content: map[string]OpenAPIMediaType{
							"application/json": {
								Schema: OpenAPISchema{
									Ref: "#/components/schemas/AskRequest",
								},
							},
						},
					},
					Responses: map[string]OpenAPIResponse{
						"200": {
							Description: "Cited answer",
							Content: map[string]OpenAPIMediaType{
								"application/json": {
									Schema: OpenAPISchema{
										Ref: "#/components/schemas/AskResponse",
									},
								},
							},
						},
						"400": {
							Description: "Invalid request",
							Content:     errorContent(),
						},
						"404": {
							Description: "Pipeline not found",
							Content:     errorContent(),
						},
						"500": {
							Description: "Pipeline run failed",
							Content:     errorContent(),
						},
					},
				},
			},
			"/pipelines/{name}/resume": {
				Post: &OpenAPIOperation{
					Summary:     "Resume a conversation",
					Description: "Continue an interrupted conversation from its last checkpoint",
					OperationID: "resumePipeline",
					Tags:        []string{"Pipelines"},
					Parameters: []OpenAPIParameter{
						{
							Name:        "name",
							In:          "path",
							Description: "Pipeline name",
							Required:    true,
							Schema: OpenAPISchema{
								Type: "string",
							},
						},
					},
					RequestBody: &OpenAPIRequestBody{
						Description: "Resume request",
						Required:    true,
						Content: map[string]OpenAPIMediaType{
							"application/json": {
								Schema: OpenAPISchema{
									Ref: "#/components/schemas/ResumeRequest",
								},
							},
						},
					},
					Responses: map[string]OpenAPIResponse{
						"200": {
							Description: "Cited answer",
							Content: map[string]OpenAPIMediaType{
								"application/json": {
									Schema: OpenAPISchema{
										Ref: "#/components/schemas/AskResponse",
									},
								},
							},
						},
						"400": {
							Description: "Invalid request",
							Content:     errorContent(),
						},
						"404": {
							Description: "Pipeline or conversation not found",
							Content:     errorContent(),
						},
						"500": {
							Description: "Pipeline run failed",
							Content:     errorContent(),
						},
					},
				},
			},
			"/conversations/{id}": {
				Get: &OpenAPIOperation{
					Summary:     "Inspect a conversation",
					Description: "Get the last checkpointed state of a conversation",
					OperationID: "getConversation",
					Tags:        []string{"Conversations"},
					Parameters: []OpenAPIParameter{
						{
							Name:        "id",
							In:          "path",
							Description: "Conversation identifier",
							Required:    true,
							Schema: OpenAPISchema{
								Type: "string",
							},
						},
					},
					Responses: map[string]OpenAPIResponse{
						"200": {
							Description: "Conversation state summary",
							Content: map[string]OpenAPIMediaType{
								"application/json": {
									Schema: OpenAPISchema{
										Ref: "#/components/schemas/ConversationResponse",
									},
								},
							},
						},
						"404": {
							Description: "Conversation not found",
							Content:     errorContent(),
						},
					},
				},
			},
		},
		Components: OpenAPIComponents{
			Schemas: map[string]OpenAPISchema{
				"HealthResponse": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"status": {
							Type:        "string",
							Description: "Health status",
						},
					},
					Required: []string{"status"},
				},
				"PipelinesResponse": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"pipelines": {
							Type:        "array",
							Description: "List of available pipelines",
							Items: &OpenAPISchema{
								Ref: "#/components/schemas/PipelineInfo",
							},
						},
					},
					Required: []string{"pipelines"},
				},
				"PipelineInfo": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"name": {
							Type:        "string",
							Description: "Pipeline name",
						},
						"description": {
							Type:        "string",
							Description: "Pipeline description",
						},
					},
					Required: []string{"name"},
				},
				"AskRequest": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"question": {
							Type:        "string",
							Description: "The question to answer",
						},
						"conversation_id": {
							Type:        "string",
							Description: "Conversation identity for checkpointing and resumption; omit for a one-off run",
						},
						"doc_id": {
							Type:        "string",
							Description: "Restrict retrieval to one document",
						},
						"selected_doc_ids": {
							Type:        "array",
							Description: "Restrict retrieval to an explicit set of documents",
							Items: &OpenAPISchema{
								Type: "string",
							},
						},
						"cross_doc": {
							Type:        "boolean",
							Description: "Also retrieve outside the primary document on every pass",
							Default:     false,
						},
					},
					Required: []string{"question"},
				},
				"ResumeRequest": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"conversation_id": {
							Type:        "string",
							Description: "Conversation to resume",
						},
					},
					Required: []string{"conversation_id"},
				},
				"AskResponse": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"conversation_id": {
							Type:        "string",
							Description: "Conversation identity of the run",
						},
						"answer": {
							Type:        "string",
							Description: "The synthesized answer with [n] citation markers",
						},
						"confidence": {
							Type:        "number",
							Format:      "double",
							Description: "Final critique confidence",
						},
						"iterations": {
							Type:        "integer",
							Description: "Number of refinement passes taken",
						},
						"citations": {
							Type:        "array",
							Description: "Evidence chunks the answer cites",
							Items: &OpenAPISchema{
								Ref: "#/components/schemas/Citation",
							},
						},
						"trace": {
							Type:        "array",
							Description: "Per-node audit trail",
							Items: &OpenAPISchema{
								Ref: "#/components/schemas/TraceEntry",
							},
						},
					},
					Required: []string{"conversation_id", "answer", "confidence", "iterations"},
				},
				"Citation": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"chunk_id": {
							Type:        "string",
							Description: "Chunk identifier",
						},
						"doc_id": {
							Type:        "string",
							Description: "Document identifier",
						},
						"page_start": {
							Type:        "integer",
							Description: "First page of the chunk",
						},
						"page_end": {
							Type:        "integer",
							Description: "Last page of the chunk",
						},
						"text": {
							Type:        "string",
							Description: "Chunk content",
						},
					},
					Required: []string{"chunk_id", "doc_id", "text"},
				},
				"TraceEntry": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"node": {
							Type:        "string",
							Description: "Pipeline node name",
						},
						"duration_ms": {
							Type:        "integer",
							Description: "Node execution time in milliseconds",
						},
						"evidence_count": {
							Type:        "integer",
							Description: "Evidence rows held after the node",
						},
						"decision": {
							Type:        "string",
							Description: "Routing decision taken after the node, if any",
						},
					},
					Required: []string{"node", "duration_ms"},
				},
				"ConversationResponse": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"conversation_id": {
							Type:        "string",
							Description: "Conversation identifier",
						},
						"node": {
							Type:        "string",
							Description: "Last checkpointed node",
						},
						"completed": {
							Type:        "boolean",
							Description: "Whether the conversation reached a terminal answer",
						},
						"question": {
							Type:        "string",
							Description: "The question being answered",
						},
						"answer": {
							Type:        "string",
							Description: "The answer, if synthesis completed",
						},
						"confidence": {
							Type:        "number",
							Format:      "double",
							Description: "Latest critique confidence",
						},
						"iterations": {
							Type:        "integer",
							Description: "Refinement passes taken so far",
						},
						"evidence_count": {
							Type:        "integer",
							Description: "Evidence rows currently held",
						},
						"doc_ids": {
							Type:        "array",
							Description: "Documents touched so far",
							Items: &OpenAPISchema{
								Type: "string",
							},
						},
					},
					Required: []string{"conversation_id", "node", "completed", "question"},
				},
				"ErrorResponse": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"error": {
							Ref: "#/components/schemas/ErrorDetail",
						},
					},
					Required: []string{"error"},
				},
				"ErrorDetail": {
					Type: "object",
					Properties: map[string]OpenAPISchema{
						"code": {
							Type:        "string",
							Description: "Error code",
						},
						"message": {
							Type:        "string",
							Description: "Error message",
						},
						"node": {
							Type:        "string",
							Description: "Failing pipeline node, when the run aborted mid-pipeline",
						},
					},
					Required: []string{"code", "message"},
				},
			},
		},
	}
}
