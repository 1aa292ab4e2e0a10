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

package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MasterVVK/neuro-expert/core"
	"github.com/MasterVVK/neuro-expert/extract"
	"github.com/MasterVVK/neuro-expert/search"
	"github.com/MasterVVK/neuro-expert/storage"
	"github.com/panjf2000/ants/v2"
)

// defaultWorkers bounds concurrent tasks. Sized for external-service
// capacity (embedding/LLM throughput), not CPU.
const defaultWorkers = 4

// Orchestrator sequences retrieval, reranking and LLM extraction into
// asynchronous tasks. Submission validates inputs synchronously and
// returns a task id; the work runs on a bounded pool, reporting stage
// checkpoints into the registry until a terminal state.
type Orchestrator struct {
	retriever  *search.Retriever
	rerank     *search.RerankStage
	extractor  *extract.Extractor
	checklists storage.ChecklistStore
	registry   *Registry
	pool       *ants.Pool
	logger     *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithWorkers sets the task worker pool size.
// Default is 4.
func WithWorkers(size int) Option {
	return func(o *Orchestrator) error {
		if size < 1 {
			size = 1
		}
		if o.pool != nil {
			o.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		o.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// WithRegistry replaces the default task registry, e.g. to set a
// shorter retention in tests.
func WithRegistry(registry *Registry) Option {
	return func(o *Orchestrator) error {
		if registry != nil {
			o.registry = registry
		}
		return nil
	}
}

// NewOrchestrator creates a new pipeline orchestrator.
func NewOrchestrator(
	retriever *search.Retriever,
	rerank *search.RerankStage,
	extractor *extract.Extractor,
	checklists storage.ChecklistStore,
	opts ...Option,
) (*Orchestrator, error) {
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	if rerank == nil {
		return nil, ErrRerankStageRequired
	}
	if extractor == nil {
		return nil, ErrExtractorRequired
	}
	if checklists == nil {
		return nil, ErrChecklistStoreRequired
	}

	pool, err := ants.NewPool(defaultWorkers)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		retriever:  retriever,
		rerank:     rerank,
		extractor:  extractor,
		checklists: checklists,
		registry:   NewRegistry(),
		pool:       pool,
		logger:     slog.Default().With("component", "orchestrator"),
	}

	// Apply options
	for _, opt := range opts {
		if optErr := opt(o); optErr != nil {
			o.Release()
			return nil, optErr
		}
	}

	return o, nil
}

// Registry exposes the task registry, e.g. to start its janitor.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Release releases the worker pool.
// The orchestrator should not be used after calling Release.
func (o *Orchestrator) Release() {
	if o.pool != nil {
		o.pool.Release()
	}
}

// SubmitSearch validates the request, creates a task and schedules it.
// Validation failures surface here synchronously; no task is created
// for them. Returns the task id to poll.
func (o *Orchestrator) SubmitSearch(applicationID, query string, cfg core.SearchConfig) (string, error) {
	if applicationID == "" {
		return "", fmt.Errorf("%w: application id is required", core.ErrValidation)
	}
	if err := core.ValidateQuery(query); err != nil {
		return "", err
	}
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	task, ctx := o.registry.Create(TaskSearch, applicationID, query, SearchStagePlan(query, cfg))
	if err := o.pool.Submit(func() {
		o.runSearch(ctx, task.ID, applicationID, query, cfg)
	}); err != nil {
		o.registry.Fail(task.ID, "Не удалось запустить задачу")
		return "", err
	}

	o.logger.Info("search task submitted", "taskID", task.ID, "applicationID", applicationID, "query", query)
	return task.ID, nil
}

// SubmitAnalysis validates the request, creates an analysis task over
// every parameter of the checklist and schedules it.
func (o *Orchestrator) SubmitAnalysis(applicationID string, checklistID core.ID) (string, error) {
	if applicationID == "" {
		return "", fmt.Errorf("%w: application id is required", core.ErrValidation)
	}
	if checklistID == 0 {
		return "", fmt.Errorf("%w: checklist id is required", core.ErrValidation)
	}

	task, ctx := o.registry.Create(TaskAnalysis, applicationID, "", AnalysisStagePlan())
	if err := o.pool.Submit(func() {
		o.runAnalysis(ctx, task.ID, applicationID, checklistID)
	}); err != nil {
		o.registry.Fail(task.ID, "Не удалось запустить задачу")
		return "", err
	}

	o.logger.Info("analysis task submitted", "taskID", task.ID, "applicationID", applicationID, "checklistID", checklistID)
	return task.ID, nil
}

// Status returns the polling payload for a task.
func (o *Orchestrator) Status(taskID string) (Task, error) {
	return o.registry.Get(taskID)
}

// Cancel requests cooperative cancellation of a task. Idempotent.
func (o *Orchestrator) Cancel(taskID string) error {
	return o.registry.Cancel(taskID)
}

// guard is the transition check run before every stage. It reports
// whether the task may proceed; a cancelled context means the registry
// already holds the terminal cancelled state.
func (o *Orchestrator) guard(ctx context.Context, taskID string) bool {
	if ctx.Err() != nil {
		return false
	}
	task, err := o.registry.Get(taskID)
	if err != nil || task.Status.Terminal() {
		return false
	}
	return true
}

// finish marks a stage failure, distinguishing user cancellation from
// a real error.
func (o *Orchestrator) finish(ctx context.Context, taskID string, err error) {
	if ctx.Err() != nil {
		// Cancel already wrote the terminal state; nothing to add
		return
	}
	o.logger.Error("task stage failed", "taskID", taskID, "err", err)
	o.registry.Fail(taskID, fmt.Sprintf("Ошибка: %s", err))
}

// ensureTerminal guarantees no task outlives its worker in a
// non-terminal state, whatever path the worker took out.
func (o *Orchestrator) ensureTerminal(taskID string) {
	if r := recover(); r != nil {
		o.logger.Error("task worker panicked", "taskID", taskID, "panic", r)
	}
	task, err := o.registry.Get(taskID)
	if err == nil && !task.Status.Terminal() {
		o.registry.Fail(taskID, "Внутренняя ошибка обработки задачи")
	}
}

// retrievalLimit sizes the retrieval fetch. With reranking enabled the
// fetch widens to the rerank window; RerankAll fetches everything.
func retrievalLimit(cfg core.SearchConfig) int {
	if !cfg.UseReranker {
		return cfg.SearchLimit
	}
	if cfg.RerankLimit == core.RerankAll {
		return 0 // No limit
	}
	return max(cfg.SearchLimit, cfg.RerankLimit)
}

// runSearch executes the search stage machine for one task.
func (o *Orchestrator) runSearch(ctx context.Context, taskID, applicationID, query string, cfg core.SearchConfig) {
	defer o.ensureTerminal(taskID)

	if !o.guard(ctx, taskID) {
		return
	}
	o.registry.SetStage(taskID, StageStarting, progressStarting, "Запуск задачи поиска...")
	o.registry.SetStage(taskID, StageInitializing, progressInitializing, "Подготовка поиска...")

	if !o.guard(ctx, taskID) {
		return
	}
	method := search.SelectStrategy(query, cfg)
	retrievalStage := StageVectorSearch
	if method == core.MethodHybrid {
		retrievalStage = StageHybridSearch
	}
	o.registry.SetStage(taskID, retrievalStage, progressRetrieval, "Поиск релевантных фрагментов...")

	candidates, method, err := o.retriever.Retrieve(ctx, applicationID, query, retrievalLimit(cfg), cfg, nil)
	if err != nil {
		o.finish(ctx, taskID, err)
		return
	}

	rerankApplied := false
	if cfg.UseReranker {
		if !o.guard(ctx, taskID) {
			return
		}
		o.registry.SetStage(taskID, StageReranking, progressReranking, "Переранжирование результатов...")
		candidates, rerankApplied = o.rerank.Rerank(ctx, query, rerankWindow(candidates, cfg.RerankLimit))
	}

	if len(candidates) > cfg.SearchLimit {
		candidates = candidates[:cfg.SearchLimit]
	}

	result := &SearchResult{
		Method:        method,
		Candidates:    dereference(candidates),
		RerankApplied: rerankApplied,
	}

	if cfg.UseLLM {
		if !o.guard(ctx, taskID) {
			return
		}
		o.registry.SetStage(taskID, StageLLMProcessing, progressLLM, "Обработка результатов моделью...")

		extraction, err := o.extractor.Extract(ctx, query, candidates, cfg.LLM, method)
		if err != nil {
			o.finish(ctx, taskID, err)
			return
		}

		if !extraction.Found() && cfg.LLM.UseFullScan {
			if !o.guard(ctx, taskID) {
				return
			}
			all, err := o.retriever.FullScan(ctx, applicationID)
			if err != nil {
				o.finish(ctx, taskID, err)
				return
			}
			extraction, err = o.extractor.ExtractFullScan(ctx, query, all, cfg.LLM)
			if err != nil {
				o.finish(ctx, taskID, err)
				return
			}
			result.Method = core.MethodFullScan
		}
		result.Extraction = extraction
	}

	if !o.guard(ctx, taskID) {
		return
	}
	o.registry.SetStage(taskID, StageFinishing, progressFinishing, "Формирование результата...")
	o.registry.CompleteSearch(taskID, result, "Поиск успешно завершен")
}

// rerankWindow bounds the candidate set fed to the reranker.
// RerankAll keeps everything.
func rerankWindow(candidates []*core.Candidate, rerankLimit int) []*core.Candidate {
	if rerankLimit == core.RerankAll || len(candidates) <= rerankLimit {
		return candidates
	}
	return candidates[:rerankLimit]
}

// runAnalysis executes the per-parameter pipeline over a checklist.
// A failing parameter is recorded and counted; the loop continues to
// the next parameter rather than failing the whole report.
func (o *Orchestrator) runAnalysis(ctx context.Context, taskID, applicationID string, checklistID core.ID) {
	defer o.ensureTerminal(taskID)

	if !o.guard(ctx, taskID) {
		return
	}
	o.registry.SetStage(taskID, StageStarting, progressStarting, "Запуск задачи анализа...")
	o.registry.SetStage(taskID, StagePrepare, progressPrepare, "Инициализация анализа...")

	checklist, err := o.checklists.GetChecklist(ctx, checklistID)
	if err != nil {
		o.finish(ctx, taskID, err)
		return
	}
	total := len(checklist.Parameters)
	if total == 0 {
		o.finish(ctx, taskID, fmt.Errorf("в чек-листе %q нет параметров", checklist.Name))
		return
	}

	o.registry.SetStage(taskID, StageAnalyze, analyzeProgress(0, total),
		fmt.Sprintf("Начало анализа %d параметров...", total))

	report := &AnalysisResult{
		ChecklistID:   checklist.Id,
		ChecklistName: checklist.Name,
		Results:       make([]ParameterResult, 0, total),
	}

	for i, parameter := range checklist.Parameters {
		if !o.guard(ctx, taskID) {
			return
		}
		o.registry.SetStage(taskID, StageAnalyze, analyzeProgress(i, total),
			fmt.Sprintf("Анализ параметра %d/%d: %s", i+1, total, parameter.Name))

		item := o.analyzeParameter(ctx, applicationID, parameter)
		if item.Error != "" {
			if ctx.Err() != nil {
				return
			}
			report.Errors++
		} else {
			report.Processed++
		}
		report.Results = append(report.Results, item)

		o.registry.SetStage(taskID, StageAnalyze, analyzeProgress(i+1, total),
			fmt.Sprintf("Проанализировано %d/%d параметров", i+1, total))
	}

	if !o.guard(ctx, taskID) {
		return
	}
	o.registry.SetStage(taskID, StageFinishing, progressFinishing, "Завершение анализа...")

	message := "Анализ успешно завершен"
	if report.Errors > 0 {
		message = fmt.Sprintf("Анализ завершен, ошибок: %d из %d", report.Errors, total)
	}
	o.registry.CompleteAnalysis(taskID, report, message)
}

// analyzeParameter runs the retrieval/rerank/extraction sequence for a
// single checklist parameter.
func (o *Orchestrator) analyzeParameter(ctx context.Context, applicationID string, parameter core.Parameter) ParameterResult {
	item := ParameterResult{
		ParameterID:   parameter.Id,
		ParameterName: parameter.Name,
	}
	cfg := parameter.Config

	candidates, method, err := o.retriever.Retrieve(ctx, applicationID, parameter.SearchQuery, retrievalLimit(cfg), cfg, nil)
	if err != nil {
		item.Error = err.Error()
		return item
	}
	item.Method = method

	if cfg.UseReranker {
		candidates, _ = o.rerank.Rerank(ctx, parameter.SearchQuery, rerankWindow(candidates, cfg.RerankLimit))
	}
	if len(candidates) > cfg.SearchLimit {
		candidates = candidates[:cfg.SearchLimit]
	}
	item.Sources = dereference(candidates)

	if !cfg.UseLLM {
		return item
	}

	extraction, err := o.extractor.Extract(ctx, parameter.SearchQuery, candidates, cfg.LLM, method)
	if err != nil {
		item.Error = err.Error()
		return item
	}
	if !extraction.Found() && cfg.LLM.UseFullScan {
		all, err := o.retriever.FullScan(ctx, applicationID)
		if err != nil {
			item.Error = err.Error()
			return item
		}
		extraction, err = o.extractor.ExtractFullScan(ctx, parameter.SearchQuery, all, cfg.LLM)
		if err != nil {
			item.Error = err.Error()
			return item
		}
	}

	item.Value = extraction.Value
	item.Confidence = extraction.Confidence
	item.Method = extraction.Method
	item.Sources = extraction.Sources
	return item
}

func dereference(candidates []*core.Candidate) []core.Candidate {
	out := make([]core.Candidate, len(candidates))
	for i, candidate := range candidates {
		out[i] = *candidate
	}
	return out
}
