package ollama

import (
	"context"
	"log/slog"

	"github.com/MasterVVK/neuro-expert/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator implements ai.Generator. Inference goes through the
// OpenAI-compatible chat endpoint; model listing and metadata use the
// native Ollama API, which the OpenAI surface does not expose.
type Generator struct {
	client *openai.LLM
	models *modelClient
	config *ai.Config
	logger *slog.Logger
}

// newGenerator is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newGenerator(config *ai.Config) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.OpenAIBase()),
		openai.WithToken("none"),
	)
	if err != nil {
		return nil, err
	}

	return &Generator{
		client: client,
		models: newModelClient(config),
		config: config,
		logger: slog.Default().With("component", "ollama-generator"),
	}, nil
}

// NewGenerator creates a new generator using the provided configuration.
//
// Returns ai.Generator interface to enforce abstraction.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	return newGenerator(config)
}

// Generate sends the prompt to the inference service and returns the raw
// text response.
func (g *Generator) Generate(ctx context.Context, req ai.GenerateRequest) (string, error) {
	g.logger.Debug("generating",
		"model", req.Model,
		"promptLength", len(req.Prompt),
		"temperature", req.Temperature,
		"maxTokens", req.MaxTokens)

	response, err := llms.GenerateFromSinglePrompt(ctx, g.client, req.Prompt,
		llms.WithModel(req.Model),
		llms.WithTemperature(req.Temperature),
		llms.WithMaxTokens(req.MaxTokens),
	)
	if err != nil {
		g.logger.Error("generation failed", "model", req.Model, "err", err)
		return "", err
	}

	return response, nil
}

// ListModels returns the model names available for generation.
// The configured embedding model is filtered out: it cannot answer prompts.
func (g *Generator) ListModels(ctx context.Context) ([]string, error) {
	return g.models.list(ctx, g.config.EmbeddingModel)
}

// ContextLength returns the context window size of a model in tokens.
func (g *Generator) ContextLength(ctx context.Context, model string) (int, error) {
	return g.models.contextLength(ctx, model)
}
