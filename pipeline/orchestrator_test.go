package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/MasterVVK/neuro-expert/ai"
	"github.com/MasterVVK/neuro-expert/ai/mock"
	"github.com/MasterVVK/neuro-expert/core"
	"github.com/MasterVVK/neuro-expert/extract"
	"github.com/MasterVVK/neuro-expert/search"
	"github.com/MasterVVK/neuro-expert/storage"
	storagebadger "github.com/MasterVVK/neuro-expert/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPromptTemplate = "Найди {query}:\n{context}"

func defaultTestConfig() core.SearchConfig {
	cfg := core.DefaultSearchConfig()
	cfg.LLM.PromptTemplate = testPromptTemplate
	return cfg
}

type testHarness struct {
	orchestrator *Orchestrator
	chunks       storage.ChunkStore
	checklists   storage.ChecklistStore
	embedder     *mock.MockEmbedder
	generator    *mock.MockGenerator
	reranker     *mock.MockReranker
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	chunkStore, checklistStore, backend, err := storagebadger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() {
		checklistStore.Close()
		chunkStore.Close()
		backend.Close()
	})

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(_ context.Context, _ string) ([]float32, error) {
		return []float32{1, 0, 0}, nil
	}
	generator := mock.NewMockGenerator()
	reranker := mock.NewMockReranker()

	retriever, err := search.NewRetriever(chunkStore, embedder)
	require.NoError(t, err)
	rerankStage, err := search.NewRerankStage(reranker)
	require.NoError(t, err)
	extractor, err := extract.NewExtractor(generator, extract.WithRetry(2, time.Millisecond))
	require.NoError(t, err)

	orchestrator, err := NewOrchestrator(retriever, rerankStage, extractor, checklistStore)
	require.NoError(t, err)
	t.Cleanup(orchestrator.Release)

	return &testHarness{
		orchestrator: orchestrator,
		chunks:       chunkStore,
		checklists:   checklistStore,
		embedder:     embedder,
		generator:    generator,
		reranker:     reranker,
	}
}

func (h *testHarness) seedChunks(t *testing.T, applicationID string, texts ...string) {
	t.Helper()
	chunks := make([]*core.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = &core.Chunk{
			ApplicationID: applicationID,
			DocumentID:    "doc.md",
			Text:          text,
			Vector:        []float32{1 - 0.01*float32(i), 0.01 * float32(i), 0},
		}
	}
	_, err := h.chunks.AddChunks(context.Background(), chunks...)
	require.NoError(t, err)
}

func waitForTerminal(t *testing.T, o *Orchestrator, taskID string) Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := o.Status(taskID)
		require.NoError(t, err)
		if task.Status.Terminal() {
			return task
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("task did not reach a terminal state")
	return Task{}
}

func TestSubmitSearchValidationIsSynchronous(t *testing.T) {
	h := newTestHarness(t)

	t.Run("invalid vector weight creates no task", func(t *testing.T) {
		cfg := defaultTestConfig()
		cfg.VectorWeight = 1.5

		_, err := h.orchestrator.SubmitSearch("app-1", "устав", cfg)
		assert.ErrorIs(t, err, core.ErrValidation)
		assert.Zero(t, h.orchestrator.Registry().Len())
	})

	t.Run("empty query", func(t *testing.T) {
		_, err := h.orchestrator.SubmitSearch("app-1", "", defaultTestConfig())
		assert.ErrorIs(t, err, core.ErrValidation)
		assert.ErrorIs(t, err, core.ErrEmptyQuery)
	})

	t.Run("missing application id", func(t *testing.T) {
		_, err := h.orchestrator.SubmitSearch("", "устав", defaultTestConfig())
		assert.ErrorIs(t, err, core.ErrValidation)
	})
}

func TestSearchTaskVector(t *testing.T) {
	h := newTestHarness(t)
	h.seedChunks(t, "app-1",
		"Организационно-правовая форма: общество с ограниченной ответственностью",
		"Сведения о директоре",
		"Размер уставного капитала",
		"Адрес регистрации",
	)

	taskID, err := h.orchestrator.SubmitSearch("app-1", "организационно-правовая форма", defaultTestConfig())
	require.NoError(t, err)

	task := waitForTerminal(t, h.orchestrator, taskID)
	assert.Equal(t, StatusSuccess, task.Status)
	assert.Equal(t, StageComplete, task.Stage)
	assert.Equal(t, 100, task.Progress)

	require.NotNil(t, task.SearchResult)
	assert.Equal(t, core.MethodVector, task.SearchResult.Method)
	assert.False(t, task.SearchResult.RerankApplied)
	assert.Nil(t, task.SearchResult.Extraction)
	require.Len(t, task.SearchResult.Candidates, 3) // search limit

	// Ranked by vector similarity descending
	scores := task.SearchResult.Candidates
	assert.GreaterOrEqual(t, scores[0].VectorScore, scores[1].VectorScore)
	assert.GreaterOrEqual(t, scores[1].VectorScore, scores[2].VectorScore)
}

func TestSearchTaskHybridForShortQuery(t *testing.T) {
	h := newTestHarness(t)
	h.seedChunks(t, "app-1",
		"Устав общества утверждён",
		"Сведения о директоре",
	)

	taskID, err := h.orchestrator.SubmitSearch("app-1", "устав", defaultTestConfig())
	require.NoError(t, err)

	task := waitForTerminal(t, h.orchestrator, taskID)
	require.Equal(t, StatusSuccess, task.Status)
	assert.Equal(t, core.MethodHybrid, task.SearchResult.Method)
	assert.Contains(t, task.Stages, StageHybridSearch)
}

func TestSearchTaskRerankWindow(t *testing.T) {
	h := newTestHarness(t)

	texts := make([]string, 15)
	for i := range texts {
		texts[i] = fmt.Sprintf("Фрагмент документа номер %d", i+1)
	}
	h.seedChunks(t, "app-1", texts...)

	var scored int
	h.reranker.ScoreFunc = func(_ context.Context, _ string, batch []string) ([]float64, error) {
		scored = len(batch)
		scores := make([]float64, len(batch))
		for i := range scores {
			scores[i] = float64(i) // reversed relevance order
		}
		return scores, nil
	}

	cfg := defaultTestConfig()
	cfg.UseReranker = true
	cfg.SearchLimit = 15
	cfg.RerankLimit = 10

	taskID, err := h.orchestrator.SubmitSearch("app-1", "организационно-правовая форма", cfg)
	require.NoError(t, err)

	task := waitForTerminal(t, h.orchestrator, taskID)
	require.Equal(t, StatusSuccess, task.Status)
	assert.Equal(t, 10, scored, "reranker receives exactly the rerank window")
	assert.True(t, task.SearchResult.RerankApplied)

	candidates := task.SearchResult.Candidates
	require.Len(t, candidates, 10)
	for i := range candidates {
		require.NotNil(t, candidates[i].RerankScore)
		if i > 0 {
			assert.GreaterOrEqual(t, *candidates[i-1].RerankScore, *candidates[i].RerankScore,
				"ordered strictly by rerank score descending")
		}
	}
}

func TestSearchTaskRerankFailureDegradesGracefully(t *testing.T) {
	h := newTestHarness(t)
	h.seedChunks(t, "app-1", "первый", "второй", "третий")

	h.reranker.ScoreFunc = func(_ context.Context, _ string, _ []string) ([]float64, error) {
		return nil, errors.New("rerank service down")
	}

	cfg := defaultTestConfig()
	cfg.UseReranker = true

	taskID, err := h.orchestrator.SubmitSearch("app-1", "организационно-правовая форма", cfg)
	require.NoError(t, err)

	task := waitForTerminal(t, h.orchestrator, taskID)
	assert.Equal(t, StatusSuccess, task.Status, "rerank failure must not fail the task")
	assert.False(t, task.SearchResult.RerankApplied)
	for _, candidate := range task.SearchResult.Candidates {
		assert.Nil(t, candidate.RerankScore)
	}
	// Original retrieval ordering preserved
	scores := task.SearchResult.Candidates
	for i := 1; i < len(scores); i++ {
		assert.GreaterOrEqual(t, scores[i-1].VectorScore, scores[i].VectorScore)
	}
}

func TestSearchTaskWithExtraction(t *testing.T) {
	h := newTestHarness(t)
	h.seedChunks(t, "app-1", "Уставный капитал составляет 10000 рублей")

	h.generator.Response = "РЕЗУЛЬТАТ: 10000 рублей"

	cfg := defaultTestConfig()
	cfg.UseLLM = true

	taskID, err := h.orchestrator.SubmitSearch("app-1", "уставный капитал общества", cfg)
	require.NoError(t, err)

	task := waitForTerminal(t, h.orchestrator, taskID)
	require.Equal(t, StatusSuccess, task.Status)
	require.NotNil(t, task.SearchResult.Extraction)
	assert.Equal(t, "10000 рублей", task.SearchResult.Extraction.Value)
	assert.True(t, task.SearchResult.Extraction.Found())
}

func TestSearchTaskLLMFailureIsFatal(t *testing.T) {
	h := newTestHarness(t)
	h.seedChunks(t, "app-1", "какой-то текст")

	h.generator.GenerateFunc = func(_ context.Context, _ ai.GenerateRequest) (string, error) {
		return "", errors.New("model not loaded")
	}

	cfg := defaultTestConfig()
	cfg.UseLLM = true

	taskID, err := h.orchestrator.SubmitSearch("app-1", "уставный капитал общества", cfg)
	require.NoError(t, err)

	task := waitForTerminal(t, h.orchestrator, taskID)
	assert.Equal(t, StatusError, task.Status)
	assert.Nil(t, task.SearchResult)
	assert.NotEmpty(t, task.Message)
}

func TestSearchTaskFullScanFallback(t *testing.T) {
	h := newTestHarness(t)
	h.seedChunks(t, "app-1",
		"Сведения о директоре",
		"Адрес регистрации",
		"Уставный капитал составляет 10000 рублей",
	)

	h.generator.GenerateFunc = func(_ context.Context, req ai.GenerateRequest) (string, error) {
		if strings.Contains(req.Prompt, "10000 рублей") {
			return "РЕЗУЛЬТАТ: 10000 рублей", nil
		}
		return "Информация не найдена", nil
	}

	// Steer targeted retrieval away from the chunk holding the answer
	h.embedder.EmbedTextFunc = func(_ context.Context, _ string) ([]float32, error) {
		return []float32{1, 0, 0}, nil
	}

	cfg := defaultTestConfig()
	cfg.SearchLimit = 2
	cfg.UseLLM = true
	cfg.LLM.UseFullScan = true

	taskID, err := h.orchestrator.SubmitSearch("app-1", "уставный капитал общества", cfg)
	require.NoError(t, err)

	task := waitForTerminal(t, h.orchestrator, taskID)
	require.Equal(t, StatusSuccess, task.Status)
	require.NotNil(t, task.SearchResult.Extraction)
	assert.Equal(t, core.MethodFullScan, task.SearchResult.Extraction.Method)
	assert.Equal(t, core.MethodFullScan, task.SearchResult.Method)
	assert.Equal(t, "10000 рублей", task.SearchResult.Extraction.Value)
	assert.Equal(t, 3, task.SearchResult.Extraction.ScannedChunks)
}

func TestSearchTaskCancelledDuringLLMProcessing(t *testing.T) {
	h := newTestHarness(t)
	h.seedChunks(t, "app-1", "какой-то текст")

	llmStarted := make(chan struct{})
	h.generator.GenerateFunc = func(ctx context.Context, _ ai.GenerateRequest) (string, error) {
		close(llmStarted)
		<-ctx.Done() // Simulates an in-flight call interrupted by cancellation
		return "", ctx.Err()
	}

	cfg := defaultTestConfig()
	cfg.UseLLM = true

	taskID, err := h.orchestrator.SubmitSearch("app-1", "уставный капитал общества", cfg)
	require.NoError(t, err)

	<-llmStarted
	require.NoError(t, h.orchestrator.Cancel(taskID))

	task := waitForTerminal(t, h.orchestrator, taskID)
	assert.Equal(t, StatusCancelled, task.Status)
	assert.Nil(t, task.SearchResult, "no result is persisted for a cancelled task")

	// Idempotent: a second cancel changes nothing
	require.NoError(t, h.orchestrator.Cancel(taskID))
	again, err := h.orchestrator.Status(taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, again.Status)
}

func TestSearchTaskProgressIsMonotonic(t *testing.T) {
	h := newTestHarness(t)
	h.seedChunks(t, "app-1", "первый", "второй")

	cfg := defaultTestConfig()
	cfg.UseReranker = true
	cfg.UseLLM = true

	taskID, err := h.orchestrator.SubmitSearch("app-1", "организационно-правовая форма", cfg)
	require.NoError(t, err)

	last := 0
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := h.orchestrator.Status(taskID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, task.Progress, last)
		last = task.Progress
		if task.Status.Terminal() {
			break
		}
	}
	assert.Equal(t, 100, last)
}

func TestAnalysisTask(t *testing.T) {
	h := newTestHarness(t)
	h.seedChunks(t, "app-1",
		"Организационно-правовая форма: ООО",
		"Уставный капитал составляет 10000 рублей",
	)

	paramConfig := defaultTestConfig()
	paramConfig.UseLLM = true

	checklist, err := h.checklists.AddChecklist(context.Background(), &core.Checklist{
		Name: "Учредительные документы",
		Parameters: []core.Parameter{
			{Name: "Форма", SearchQuery: "организационно-правовая форма", Config: paramConfig},
			{Name: "Капитал", SearchQuery: "размер уставного капитала", Config: paramConfig},
		},
	})
	require.NoError(t, err)

	h.generator.Response = "РЕЗУЛЬТАТ: найденное значение"

	taskID, err := h.orchestrator.SubmitAnalysis("app-1", checklist.Id)
	require.NoError(t, err)

	task := waitForTerminal(t, h.orchestrator, taskID)
	require.Equal(t, StatusSuccess, task.Status)
	assert.Equal(t, TaskAnalysis, task.Kind)

	report := task.AnalysisResult
	require.NotNil(t, report)
	assert.Equal(t, checklist.Id, report.ChecklistID)
	assert.Equal(t, 2, report.Processed)
	assert.Zero(t, report.Errors)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "Форма", report.Results[0].ParameterName)
	assert.Equal(t, "найденное значение", report.Results[0].Value)
	assert.NotEmpty(t, report.Results[0].Sources)
}

func TestAnalysisTaskContinuesPastParameterErrors(t *testing.T) {
	h := newTestHarness(t)
	h.seedChunks(t, "app-1", "Уставный капитал составляет 10000 рублей")

	paramConfig := defaultTestConfig()
	paramConfig.UseLLM = true

	checklist, err := h.checklists.AddChecklist(context.Background(), &core.Checklist{
		Name: "Чек-лист с ошибкой",
		Parameters: []core.Parameter{
			{Name: "Сломанный", SearchQuery: "первый запрос", Config: paramConfig},
			{Name: "Рабочий", SearchQuery: "второй запрос", Config: paramConfig},
		},
	})
	require.NoError(t, err)

	h.generator.GenerateFunc = func(_ context.Context, req ai.GenerateRequest) (string, error) {
		if strings.Contains(req.Prompt, "первый запрос") {
			return "", errors.New("model overloaded")
		}
		return "РЕЗУЛЬТАТ: значение", nil
	}

	taskID, err := h.orchestrator.SubmitAnalysis("app-1", checklist.Id)
	require.NoError(t, err)

	task := waitForTerminal(t, h.orchestrator, taskID)
	require.Equal(t, StatusSuccess, task.Status)

	report := task.AnalysisResult
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Errors)
	require.Len(t, report.Results, 2)
	assert.NotEmpty(t, report.Results[0].Error)
	assert.Equal(t, "значение", report.Results[1].Value)
	assert.Contains(t, task.Message, "ошибок")
}

func TestAnalysisTaskUnknownChecklistFails(t *testing.T) {
	h := newTestHarness(t)

	taskID, err := h.orchestrator.SubmitAnalysis("app-1", core.ID(404))
	require.NoError(t, err)

	task := waitForTerminal(t, h.orchestrator, taskID)
	assert.Equal(t, StatusError, task.Status)
}

func TestSubmitAnalysisValidation(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.orchestrator.SubmitAnalysis("", core.ID(1))
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = h.orchestrator.SubmitAnalysis("app-1", 0)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestStatusUnknownTask(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.orchestrator.Status("missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.ErrorIs(t, h.orchestrator.Cancel("missing"), ErrTaskNotFound)
}
