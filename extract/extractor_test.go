package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MasterVVK/neuro-expert/ai"
	"github.com/MasterVVK/neuro-expert/ai/mock"
	"github.com/MasterVVK/neuro-expert/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTemplate = "Найди {query} в документах:\n{context}\nОтветь в формате РЕЗУЛЬТАТ: значение"

func testLLMConfig() core.LLMConfig {
	cfg := core.DefaultLLMConfig()
	cfg.PromptTemplate = testTemplate
	return cfg
}

func fastRetry() Option {
	return WithRetry(2, time.Millisecond)
}

func TestExtract(t *testing.T) {
	generator := mock.NewMockGenerator()
	generator.Response = "РЕЗУЛЬТАТ: 10000 рублей"

	extractor, err := NewExtractor(generator, fastRetry())
	require.NoError(t, err)

	candidates := contextCandidates("Уставный капитал общества составляет 10000 рублей")
	result, err := extractor.Extract(context.Background(), "уставный капитал",
		candidates, testLLMConfig(), core.MethodVector)
	require.NoError(t, err)

	assert.Equal(t, "10000 рублей", result.Value)
	assert.Equal(t, core.FormatPrefix, result.Format)
	assert.Equal(t, core.MethodVector, result.Method)
	require.Len(t, result.Sources, 1)
	assert.True(t, result.Found())

	// The prompt carries the query and the formatted context
	requests := generator.Requests()
	require.Len(t, requests, 1)
	assert.Contains(t, requests[0].Prompt, "уставный капитал")
	assert.Contains(t, requests[0].Prompt, "Документ 1:")
	assert.NotContains(t, requests[0].Prompt, "{query}")
	assert.NotContains(t, requests[0].Prompt, "{context}")
}

func TestExtractQueryOverride(t *testing.T) {
	generator := mock.NewMockGenerator()
	extractor, err := NewExtractor(generator, fastRetry())
	require.NoError(t, err)

	cfg := testLLMConfig()
	cfg.Query = "полное наименование юридического лица"

	_, err = extractor.Extract(context.Background(), "наименование",
		contextCandidates("ООО «Вектор»"), cfg, core.MethodVector)
	require.NoError(t, err)

	requests := generator.Requests()
	require.Len(t, requests, 1)
	assert.Contains(t, requests[0].Prompt, "полное наименование юридического лица")
}

func TestExtractEmptyCandidates(t *testing.T) {
	generator := mock.NewMockGenerator()
	extractor, err := NewExtractor(generator, fastRetry())
	require.NoError(t, err)

	result, err := extractor.Extract(context.Background(), "уставный капитал",
		nil, testLLMConfig(), core.MethodHybrid)
	require.NoError(t, err)

	assert.Equal(t, NotFoundValue, result.Value)
	assert.Zero(t, result.Confidence)
	assert.Equal(t, core.MethodHybrid, result.Method)
	assert.Zero(t, generator.CallCount(), "empty retrieval must not reach the model")
}

func TestExtractLLMFailureIsFatal(t *testing.T) {
	generator := mock.NewMockGenerator()
	generator.GenerateFunc = func(_ context.Context, _ ai.GenerateRequest) (string, error) {
		return "", errors.New("model not loaded")
	}

	extractor, err := NewExtractor(generator, fastRetry())
	require.NoError(t, err)

	_, err = extractor.Extract(context.Background(), "уставный капитал",
		contextCandidates("текст"), testLLMConfig(), core.MethodVector)
	assert.ErrorIs(t, err, core.ErrLLMUnavailable)
	assert.Equal(t, 2, generator.CallCount(), "inference is retried before failing")
}

func TestExtractRetriesTransientFailure(t *testing.T) {
	generator := mock.NewMockGenerator()
	calls := 0
	generator.GenerateFunc = func(_ context.Context, _ ai.GenerateRequest) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("temporary overload")
		}
		return "РЕЗУЛЬТАТ: значение", nil
	}

	extractor, err := NewExtractor(generator, fastRetry())
	require.NoError(t, err)

	result, err := extractor.Extract(context.Background(), "запрос",
		contextCandidates("текст"), testLLMConfig(), core.MethodVector)
	require.NoError(t, err)
	assert.Equal(t, "значение", result.Value)
	assert.Equal(t, 2, calls)
}

func TestExtractFullScanStopsAtFirstHit(t *testing.T) {
	generator := mock.NewMockGenerator()
	generator.GenerateFunc = func(_ context.Context, req ai.GenerateRequest) (string, error) {
		// Only the chunk holding the answer yields a positive response
		if strings.Contains(req.Prompt, "10000 рублей") {
			return "РЕЗУЛЬТАТ: 10000 рублей", nil
		}
		return "Информация не найдена", nil
	}

	extractor, err := NewExtractor(generator, fastRetry())
	require.NoError(t, err)

	candidates := contextCandidates(
		"Сведения о директоре",
		"Уставный капитал составляет 10000 рублей",
		"Адрес регистрации",
	)
	result, err := extractor.ExtractFullScan(context.Background(), "уставный капитал",
		candidates, testLLMConfig())
	require.NoError(t, err)

	assert.True(t, result.Found())
	assert.Equal(t, "10000 рублей", result.Value)
	assert.Equal(t, core.MethodFullScan, result.Method)
	assert.Equal(t, 2, result.ScannedChunks)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "Уставный капитал составляет 10000 рублей", result.Sources[0].Text)
	assert.Equal(t, 2, generator.CallCount(), "scan stops at the first hit")
}

func TestExtractFullScanExhausted(t *testing.T) {
	generator := mock.NewMockGenerator()
	generator.Response = "Информация не найдена"

	extractor, err := NewExtractor(generator, fastRetry())
	require.NoError(t, err)

	candidates := contextCandidates("первый", "второй", "третий")
	result, err := extractor.ExtractFullScan(context.Background(), "запрос",
		candidates, testLLMConfig())
	require.NoError(t, err)

	assert.False(t, result.Found())
	assert.Equal(t, NotFoundValue, result.Value)
	assert.Equal(t, 3, result.ScannedChunks)
	assert.Equal(t, core.MethodFullScan, result.Method)
	assert.Len(t, result.Sources, 3, "exhausted scan reports every chunk it covered")
}

func TestExtractFullScanHonorsCancellation(t *testing.T) {
	generator := mock.NewMockGenerator()
	ctx, cancel := context.WithCancel(context.Background())

	generator.GenerateFunc = func(_ context.Context, _ ai.GenerateRequest) (string, error) {
		cancel() // Cancelled mid-scan
		return "Информация не найдена", nil
	}

	extractor, err := NewExtractor(generator, fastRetry())
	require.NoError(t, err)

	_, err = extractor.ExtractFullScan(ctx, "запрос",
		contextCandidates("первый", "второй"), testLLMConfig())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, generator.CallCount())
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("Q={query} C={context}", "вопрос", "контекст")
	assert.Equal(t, "Q=вопрос C=контекст", prompt)
}
