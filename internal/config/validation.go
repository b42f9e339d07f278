//-------------------------------------------------------------------------
//
// Evidentiary Server
//
// Copyright (c) 2026, The Evidentiary Authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// ValidationError represents a single configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}

	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors and returns all validation
// errors found.
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateCheckpoint()...)
	errs = append(errs, c.validatePipelines()...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// validateServer validates server configuration.
func (c *Config) validateServer() ValidationErrors {
	var errs ValidationErrors

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: "must be between 1 and 65535",
		})
	}

	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" {
			errs = append(errs, ValidationError{
				Field:   "server.tls.cert_file",
				Message: "required when TLS is enabled",
			})
		} else if _, err := os.Stat(expandPath(c.Server.TLS.CertFile)); err != nil {
			errs = append(errs, ValidationError{
				Field:   "server.tls.cert_file",
				Message: fmt.Sprintf("file not found: %s", c.Server.TLS.CertFile),
			})
		}

		if c.Server.TLS.KeyFile == "" {
			errs = append(errs, ValidationError{
				Field:   "server.tls.key_file",
				Message: "required when TLS is enabled",
			})
		} else if _, err := os.Stat(expandPath(c.Server.TLS.KeyFile)); err != nil {
			errs = append(errs, ValidationError{
				Field:   "server.tls.key_file",
				Message: fmt.Sprintf("file not found: %s", c.Server.TLS.KeyFile),
			})
		}
	}

	if c.Server.Auth.Enabled && len(c.Server.Auth.Keys) == 0 {
		errs = append(errs, ValidationError{
			Field:   "server.auth.keys",
			Message: "at least one key required when auth is enabled",
		})
	}

	return errs
}

// validateCheckpoint validates the checkpoint store configuration.
func (c *Config) validateCheckpoint() ValidationErrors {
	var errs ValidationErrors

	switch c.Checkpoint.Backend {
	case "", "memory":
	case "redis":
		if c.Checkpoint.Redis.Addr == "" {
			errs = append(errs, ValidationError{
				Field:   "checkpoint.redis.addr",
				Message: "required when backend is redis",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "checkpoint.backend",
			Message: "must be one of: memory, redis",
		})
	}

	if c.Checkpoint.Redis.TTLSeconds < 0 {
		errs = append(errs, ValidationError{
			Field:   "checkpoint.redis.ttl_seconds",
			Message: "must be non-negative",
		})
	}

	return errs
}

// validatePipelines validates all pipeline configurations.
func (c *Config) validatePipelines() ValidationErrors {
	var errs ValidationErrors

	if len(c.Pipelines) == 0 {
		errs = append(errs, ValidationError{
			Field:   "pipelines",
			Message: "at least one pipeline must be configured",
		})
		return errs
	}

	// Check for duplicate pipeline names
	names := make(map[string]bool)
	for i, p := range c.Pipelines {
		if names[p.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("pipelines[%d].name", i),
				Message: fmt.Sprintf("duplicate pipeline name: %s", p.Name),
			})
		}
		names[p.Name] = true

		errs = append(errs, c.validatePipeline(i, p)...)
	}

	return errs
}

// validatePipeline validates a single pipeline configuration.
func (c *Config) validatePipeline(index int, p Pipeline) ValidationErrors {
	var errs ValidationErrors
	prefix := fmt.Sprintf("pipelines[%d]", index)

	if p.Name == "" {
		errs = append(errs, ValidationError{
			Field:   prefix + ".name",
			Message: "required",
		})
	}

	errs = append(errs, c.validateDatabase(prefix+".database", p.Database)...)

	errs = append(errs, c.validateLLM(prefix+".embedding_llm", p.EmbeddingLLM,
		[]string{"openai", "voyage", "ollama"})...)
	errs = append(errs, c.validateLLM(prefix+".answer_llm", p.AnswerLLM,
		[]string{"anthropic", "openai", "ollama"})...)

	errs = append(errs, validateTuning(prefix+".tuning", p.Tuning)...)

	return errs
}

// validateTuning checks pipeline tuning ranges. Zero values are allowed,
// they inherit downstream defaults.
func validateTuning(prefix string, t Tuning) ValidationErrors {
	var errs ValidationErrors

	if t.ConfidenceThreshold < 0 || t.ConfidenceThreshold > 1 {
		errs = append(errs, ValidationError{
			Field:   prefix + ".confidence_threshold",
			Message: "must be within [0, 1]",
		})
	}
	if t.MaxIterations < 0 {
		errs = append(errs, ValidationError{
			Field:   prefix + ".max_iterations",
			Message: "must be non-negative",
		})
	}
	for field, v := range map[string]int{
		".k_lexical":            t.KLexical,
		".k_vector":             t.KVector,
		".k_final":              t.KFinal,
		".embedding_dimensions": t.EmbeddingDimensions,
	} {
		if v < 0 {
			errs = append(errs, ValidationError{
				Field:   prefix + field,
				Message: "must be non-negative",
			})
		}
	}
	if t.LexicalWeight < 0 || t.VectorWeight < 0 {
		errs = append(errs, ValidationError{
			Field:   prefix + ".lexical_weight",
			Message: "fusion weights must be non-negative",
		})
	}

	return errs
}

// validateDatabase validates database configuration.
func (c *Config) validateDatabase(prefix string, db DatabaseConfig) ValidationErrors {
	var errs ValidationErrors

	if db.Host == "" {
		errs = append(errs, ValidationError{
			Field:   prefix + ".host",
			Message: "required",
		})
	}

	if db.Database == "" {
		errs = append(errs, ValidationError{
			Field:   prefix + ".database",
			Message: "required",
		})
	}

	if db.Port < 1 || db.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   prefix + ".port",
			Message: "must be between 1 and 65535",
		})
	}

	// Validate SSL mode
	validSSLModes := map[string]bool{
		"disable":     true,
		"allow":       true,
		"prefer":      true,
		"require":     true,
		"verify-ca":   true,
		"verify-full": true,
	}
	if db.SSLMode != "" && !validSSLModes[db.SSLMode] {
		errs = append(errs, ValidationError{
			Field:   prefix + ".ssl_mode",
			Message: "must be one of: disable, allow, prefer, require, verify-ca, verify-full",
		})
	}

	if db.MaxConns < 0 {
		errs = append(errs, ValidationError{
			Field:   prefix + ".max_conns",
			Message: "must be non-negative",
		})
	}

	return errs
}

// validateLLM validates LLM configuration (required fields).
func (c *Config) validateLLM(prefix string, llm LLMConfig, validProviders []string) ValidationErrors {
	var errs ValidationErrors

	if llm.Provider == "" {
		errs = append(errs, ValidationError{
			Field:   prefix + ".provider",
			Message: "required",
		})
	} else {
		provider := strings.ToLower(llm.Provider)
		valid := false
		for _, vp := range validProviders {
			if provider == vp {
				valid = true
				break
			}
		}
		if !valid {
			errs = append(errs, ValidationError{
				Field:   prefix + ".provider",
				Message: fmt.Sprintf("must be one of: %s", strings.Join(validProviders, ", ")),
			})
		}
	}

	if llm.Model == "" {
		errs = append(errs, ValidationError{
			Field:   prefix + ".model",
			Message: "required",
		})
	}

	return errs
}
