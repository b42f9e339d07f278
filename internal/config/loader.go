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

	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the default configuration file name.
	ConfigFileName = "evidentiary-server.yaml"

	// SystemConfigPath is the system-wide configuration path.
	SystemConfigPath = "/etc/evidentiary/" + ConfigFileName
)

// Load loads the configuration from the specified path, or searches
// default locations if path is empty.
//
// Search order:
//  1. Explicit path (if provided)
//  2. /etc/evidentiary/evidentiary-server.yaml
//  3. evidentiary-server.yaml in the binary's directory
func Load(path string) (*Config, error) {
	configPath, err := findConfigFile(path)
	if err != nil {
		return nil, err
	}

	return loadFromFile(configPath)
}

// findConfigFile finds the configuration file using the search order.
func findConfigFile(explicitPath string) (string, error) {
	// If explicit path provided, use it
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	searchPaths := []string{
		SystemConfigPath,
		getBinaryDirConfigPath(),
	}

	for _, p := range searchPaths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no configuration file found; searched: %v", searchPaths)
}

// getBinaryDirConfigPath returns the path to config file in the binary's
// directory.
func getBinaryDirConfigPath() string {
	executable, err := os.Executable()
	if err != nil {
		return ""
	}

	// Resolve symlinks to get the actual binary location
	executable, err = filepath.EvalSymlinks(executable)
	if err != nil {
		return ""
	}

	return filepath.Join(filepath.Dir(executable), ConfigFileName)
}

// loadFromFile loads and parses the configuration from a YAML file.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults
	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply defaults to pipelines
	applyDefaults(cfg)

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyDefaults applies default values to pipelines where not specified.
func applyDefaults(cfg *Config) {
	for i := range cfg.Pipelines {
		p := &cfg.Pipelines[i]

		p.Tuning = mergeTuning(p.Tuning, cfg.Defaults.Tuning)

		if p.Source.Table == "" {
			p.Source.Table = "chunks"
		}
		if p.Source.Language == "" {
			p.Source.Language = "english"
		}

		// Apply embedding LLM defaults
		if p.EmbeddingLLM.Provider == "" {
			p.EmbeddingLLM.Provider = cfg.Defaults.EmbeddingLLM.Provider
		}
		if p.EmbeddingLLM.Model == "" {
			p.EmbeddingLLM.Model = cfg.Defaults.EmbeddingLLM.Model
		}

		// Apply answer LLM defaults
		if p.AnswerLLM.Provider == "" {
			p.AnswerLLM.Provider = cfg.Defaults.AnswerLLM.Provider
		}
		if p.AnswerLLM.Model == "" {
			p.AnswerLLM.Model = cfg.Defaults.AnswerLLM.Model
		}

		// Apply API key path defaults
		if p.APIKeys.Anthropic == "" {
			p.APIKeys.Anthropic = cfg.Defaults.APIKeys.Anthropic
		}
		if p.APIKeys.OpenAI == "" {
			p.APIKeys.OpenAI = cfg.Defaults.APIKeys.OpenAI
		}
		if p.APIKeys.Voyage == "" {
			p.APIKeys.Voyage = cfg.Defaults.APIKeys.Voyage
		}
		if p.APIKeys.Anthropic == "" {
			p.APIKeys.Anthropic = cfg.APIKeys.Anthropic
		}
		if p.APIKeys.OpenAI == "" {
			p.APIKeys.OpenAI = cfg.APIKeys.OpenAI
		}
		if p.APIKeys.Voyage == "" {
			p.APIKeys.Voyage = cfg.APIKeys.Voyage
		}
	}
}

// mergeTuning fills zero-valued fields of t from d.
func mergeTuning(t, d Tuning) Tuning {
	if t.ConfidenceThreshold == 0 {
		t.ConfidenceThreshold = d.ConfidenceThreshold
	}
	if t.MaxIterations == 0 {
		t.MaxIterations = d.MaxIterations
	}
	if t.KLexical == 0 {
		t.KLexical = d.KLexical
	}
	if t.KVector == 0 {
		t.KVector = d.KVector
	}
	if t.KFinal == 0 {
		t.KFinal = d.KFinal
	}
	if t.LexicalWeight == 0 {
		t.LexicalWeight = d.LexicalWeight
	}
	if t.VectorWeight == 0 {
		t.VectorWeight = d.VectorWeight
	}
	if t.EmbeddingDimensions == 0 {
		t.EmbeddingDimensions = d.EmbeddingDimensions
	}
	if t.QueryTimeoutSeconds == 0 {
		t.QueryTimeoutSeconds = d.QueryTimeoutSeconds
	}
	if t.LLMTimeoutSeconds == 0 {
		t.LLMTimeoutSeconds = d.LLMTimeoutSeconds
	}
	if t.EmbeddingTimeoutSeconds == 0 {
		t.EmbeddingTimeoutSeconds = d.EmbeddingTimeoutSeconds
	}
	if t.MaxConcurrentRuns == 0 {
		t.MaxConcurrentRuns = d.MaxConcurrentRuns
	}
	return t
}
