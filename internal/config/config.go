//-------------------------------------------------------------------------
//
// Evidentiary Server
//
// Copyright (c) 2026, The Evidentiary Authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package config handles configuration loading and validation for the
// Evidentiary Server.
package config

// Config is the root configuration structure for the server.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	APIKeys    APIKeysConfig    `yaml:"api_keys"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Defaults   Defaults         `yaml:"defaults"`
	Pipelines  []Pipeline       `yaml:"pipelines"`
}

// APIKeysConfig contains paths to files containing API keys for LLM
// providers. If not specified, keys are loaded from environment variables
// or default file locations (~/.anthropic-api-key, ~/.openai-api-key,
// ~/.voyage-api-key).
type APIKeysConfig struct {
	Anthropic string `yaml:"anthropic"` // Path to file containing Anthropic API key
	OpenAI    string `yaml:"openai"`    // Path to file containing OpenAI API key
	Voyage    string `yaml:"voyage"`    // Path to file containing Voyage API key
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	ListenAddress string     `yaml:"listen_address"`
	Port          int        `yaml:"port"`
	TLS           TLSConfig  `yaml:"tls"`
	CORS          CORSConfig `yaml:"cors"`
	Auth          AuthConfig `yaml:"auth"`
}

// AuthConfig contains API-key authentication settings for the HTTP API.
// Health, metrics, and the OpenAPI document stay reachable without a key.
type AuthConfig struct {
	Enabled bool     `yaml:"enabled"`
	Keys    []string `yaml:"keys"` // Accepted keys, compared verbatim
}

// CORSConfig contains CORS (Cross-Origin Resource Sharing) settings.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"` // Origins to allow, or ["*"] for all
}

// TLSConfig contains TLS/HTTPS settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// CheckpointConfig selects the conversation checkpoint backend.
// The backend is skippable: when Redis is unreachable the server degrades
// to volatile in-process checkpoints and logs a warning.
type CheckpointConfig struct {
	Backend string      `yaml:"backend"` // "redis" or "memory" (default: memory)
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig contains Redis connection settings for the checkpoint store.
type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	TTLSeconds int    `yaml:"ttl_seconds"` // Checkpoint expiry, 0 = no expiry
}

// Defaults contains default values that can be overridden per-pipeline.
type Defaults struct {
	Tuning       Tuning        `yaml:"tuning"`
	EmbeddingLLM LLMConfig     `yaml:"embedding_llm"` // Default embedding provider
	AnswerLLM    LLMConfig     `yaml:"answer_llm"`    // Default completion provider
	APIKeys      APIKeysConfig `yaml:"api_keys"`      // Default API key paths
}

// Pipeline defines a single question-answering pipeline configuration.
type Pipeline struct {
	Name         string         `yaml:"name"`
	Description  string         `yaml:"description"`
	Database     DatabaseConfig `yaml:"database"`
	Source       SourceConfig   `yaml:"source"`
	EmbeddingLLM LLMConfig      `yaml:"embedding_llm"`
	AnswerLLM    LLMConfig      `yaml:"answer_llm"`
	APIKeys      APIKeysConfig  `yaml:"api_keys"` // Pipeline-specific API key paths
	Tuning       Tuning         `yaml:"tuning"`
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`

	// Certificate-based authentication
	SSLCert   string `yaml:"ssl_cert"`
	SSLKey    string `yaml:"ssl_key"`
	SSLRootCA string `yaml:"ssl_root_ca"`

	// Pool sizing. When every pooled connection is busy past the acquire
	// timeout, queries fall back to a direct unpooled connection.
	MaxConns              int `yaml:"max_conns"`
	AcquireTimeoutSeconds int `yaml:"acquire_timeout_seconds"`
}

// SourceConfig identifies the chunk table serving a pipeline. The table
// must carry the chunk columns (chunk_id, doc_id, content, page_start,
// page_end, content_type, image_path, tsv, embedding).
type SourceConfig struct {
	Table    string `yaml:"table"`    // Default: chunks
	Language string `yaml:"language"` // Full-text search config, default: english
}

// Tuning contains the knobs of the retrieval-and-refinement loop.
// Zero values mean "inherit" from defaults, then from the hardcoded
// values in the pipeline package. Because zero marks a field unset,
// the confidence threshold and fusion weights cannot be configured to
// exactly zero; use a small positive value (for example 0.001) to
// effectively disable refinement or silence one retrieval branch.
type Tuning struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"` // Refine below this (default 0.6)
	MaxIterations       int     `yaml:"max_iterations"`       // Refinement ceiling (default 5)

	KLexical int `yaml:"k_lexical"` // Full-text branch candidates (default 20)
	KVector  int `yaml:"k_vector"`  // Vector branch candidates (default 20)
	KFinal   int `yaml:"k_final"`   // Fused candidates kept (default 12)

	LexicalWeight float64 `yaml:"lexical_weight"` // Default 0.6
	VectorWeight  float64 `yaml:"vector_weight"`  // Default 0.4

	// EmbeddingDimensions is a deployment contract, not inferred per call.
	// A vector of any other length is rejected before a query is issued.
	EmbeddingDimensions int `yaml:"embedding_dimensions"` // Default 768

	QueryTimeoutSeconds     int `yaml:"query_timeout_seconds"`     // Default 10
	LLMTimeoutSeconds       int `yaml:"llm_timeout_seconds"`       // Default 120
	EmbeddingTimeoutSeconds int `yaml:"embedding_timeout_seconds"` // Default 30

	MaxConcurrentRuns int `yaml:"max_concurrent_runs"` // Default 16
}

// LLMConfig contains settings for an LLM provider.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress: "0.0.0.0",
			Port:          8080,
			TLS: TLSConfig{
				Enabled: false,
			},
		},
		Checkpoint: CheckpointConfig{
			Backend: "memory",
		},
	}
}
