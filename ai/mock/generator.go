package mock

import (
	"context"

	"github.com/MasterVVK/neuro-expert/ai"
)

// MockGenerator is a test double for ai.Generator.
// It allows custom behavior injection via function fields.
type MockGenerator struct {
	// GenerateFunc is called by Generate if set.
	// If nil, returns Response for every prompt.
	GenerateFunc func(ctx context.Context, req ai.GenerateRequest) (string, error)

	// Response is the canned answer returned by the default Generate.
	Response string

	// Models is returned by ListModels.
	Models []string

	// ContextWindow is returned by ContextLength. Zero means 8192.
	ContextWindow int

	callCount int
	requests  []ai.GenerateRequest
}

// NewMockGenerator creates a mock generator with a canned response.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		Response: "РЕЗУЛЬТАТ: тестовое значение",
		Models:   []string{"gemma3:27b", "qwen2.5:7b"},
	}
}

// Generate returns the scripted response and records the request.
func (m *MockGenerator) Generate(ctx context.Context, req ai.GenerateRequest) (string, error) {
	m.callCount++
	m.requests = append(m.requests, req)

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return m.Response, nil
}

// ListModels returns the scripted model list.
func (m *MockGenerator) ListModels(ctx context.Context) ([]string, error) {
	return m.Models, nil
}

// ContextLength returns the scripted context window.
func (m *MockGenerator) ContextLength(ctx context.Context, model string) (int, error) {
	if m.ContextWindow > 0 {
		return m.ContextWindow, nil
	}
	return 8192, nil
}

// CallCount returns the number of Generate calls.
func (m *MockGenerator) CallCount() int {
	return m.callCount
}

// Requests returns the recorded Generate requests in call order.
func (m *MockGenerator) Requests() []ai.GenerateRequest {
	return m.requests
}

// Reset clears recorded calls and custom functions.
func (m *MockGenerator) Reset() {
	m.callCount = 0
	m.requests = nil
	m.GenerateFunc = nil
}
