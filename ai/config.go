// Copyright 2025 Neuro-Expert Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ai

import (
	"errors"
	"strings"
	"time"
)

// Config holds configuration for AI service providers.
type Config struct {
	// Host is the base URL of the Ollama server, without the /v1 suffix.
	// Example: "http://localhost:11434"
	Host string

	// EmbeddingModel is the model identifier used for text embeddings.
	// Example: "bge-m3"
	EmbeddingModel string

	// RerankHost is the base URL of the reranking service. Empty means
	// reranking is served by the same host as generation.
	RerankHost string

	// RerankModel is the cross-encoder model used for reranking.
	// Example: "bge-reranker-v2-m3"
	RerankModel string

	// Timeout bounds every external service call. LLM inference on large
	// documents is slow; the default is 120 seconds.
	Timeout time.Duration
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithHost sets the Ollama server base URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.Host = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithRerankHost sets the reranking service base URL.
func WithRerankHost(host string) ConfigOption {
	return func(c *Config) {
		c.RerankHost = host
	}
}

// WithRerankModel sets the reranking model identifier.
func WithRerankModel(model string) ConfigOption {
	return func(c *Config) {
		c.RerankModel = model
	}
}

// WithTimeout sets the external call timeout.
func WithTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// DefaultConfig returns a Config with sensible defaults for a local
// Ollama server.
func DefaultConfig() *Config {
	return &Config{
		Host:           "http://localhost:11434",
		EmbeddingModel: "bge-m3",
		RerankModel:    "bge-reranker-v2-m3",
		Timeout:        120 * time.Second,
	}
}

// NewConfig creates a Config with default values and applies the provided
// options.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form: trailing
// slashes removed, rerank host defaulted to the main host.
func (c *Config) Normalize() {
	c.Host = strings.TrimSuffix(strings.TrimSuffix(c.Host, "/"), "/v1")
	if c.RerankHost == "" {
		c.RerankHost = c.Host
	}
	c.RerankHost = strings.TrimSuffix(c.RerankHost, "/")
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
}

// OpenAIBase returns the OpenAI-compatible API base used by the
// langchaingo clients (Ollama serves it under /v1).
func (c *Config) OpenAIBase() string {
	return c.Host + "/v1"
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.Host == "" {
		return errors.New("ai config: Host is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.RerankModel == "" {
		return errors.New("ai config: RerankModel is required")
	}
	return nil
}
