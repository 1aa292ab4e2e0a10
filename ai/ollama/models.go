package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MasterVVK/neuro-expert/ai"
)

// defaultContextLength is assumed when /api/show does not report one.
const defaultContextLength = 8192

// modelClient talks to the native Ollama API for model metadata.
type modelClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func newModelClient(config *ai.Config) *modelClient {
	return &modelClient{
		baseURL: strings.TrimRight(config.Host, "/"),
		client:  &http.Client{Timeout: config.Timeout},
		logger:  slog.Default().With("component", "ollama-models"),
	}
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

type showRequest struct {
	Name string `json:"name"`
}

type showResponse struct {
	ModelInfo map[string]any `json:"model_info"`
}

// list returns the available model names, filtering out the embedding
// model (and its tagged variants).
func (c *modelClient) list(ctx context.Context, embeddingModel string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("failed to list models", "err", err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("list models: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		if m.Name == embeddingModel || strings.HasPrefix(m.Name, embeddingModel+":") {
			continue
		}
		names = append(names, m.Name)
	}
	return names, nil
}

// contextLength reads the model's context window from /api/show.
// Different model families report it under "<family>.context_length", so
// any key with that suffix is accepted. Falls back to a safe default.
func (c *modelClient) contextLength(ctx context.Context, model string) (int, error) {
	payload, err := json.Marshal(showRequest{Name: model})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/show", bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("failed to fetch model info", "model", model, "err", err)
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("model info: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var show showResponse
	if err := json.NewDecoder(resp.Body).Decode(&show); err != nil {
		return 0, err
	}

	for key, value := range show.ModelInfo {
		if !strings.HasSuffix(key, ".context_length") {
			continue
		}
		if length, ok := asInt(value); ok && length > 0 {
			c.logger.Debug("resolved context length", "model", model, "key", key, "length", length)
			return length, nil
		}
	}

	c.logger.Warn("model info has no context length, using default",
		"model", model, "default", defaultContextLength)
	return defaultContextLength, nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}
