package pipeline

import (
	"github.com/MasterVVK/neuro-expert/core"
	"github.com/MasterVVK/neuro-expert/search"
)

// Stage names written to the task registry. Polling clients key on
// these strings.
const (
	StageStarting      = "starting"
	StageInitializing  = "initializing"
	StageVectorSearch  = "vector_search"
	StageHybridSearch  = "hybrid_search"
	StageReranking     = "reranking"
	StageLLMProcessing = "llm_processing"
	StageFinishing     = "finishing"
	StageComplete      = "complete"

	// Analysis tasks report coarser stages around the per-parameter loop.
	StagePrepare = "prepare"
	StageAnalyze = "analyze"
)

// Progress checkpoints written at stage entry. Coarse on purpose:
// granularity is a UX choice, monotonicity is the invariant.
const (
	progressStarting     = 5
	progressInitializing = 10
	progressRetrieval    = 30
	progressReranking    = 60
	progressLLM          = 75
	progressFinishing    = 95
	progressComplete     = 100

	// Analysis checkpoints: the parameter loop interpolates between
	// analyzeBase and analyzeBase+analyzeSpan.
	progressPrepare = 10
	analyzeBase     = 15
	analyzeSpan     = 75
)

// SearchStagePlan returns the stage sequence a search task will pass
// through, derived once from the query and configuration. Optional
// stages appear only when their config flags are set.
func SearchStagePlan(query string, cfg core.SearchConfig) []string {
	plan := []string{StageStarting, StageInitializing}

	if search.SelectStrategy(query, cfg) == core.MethodHybrid {
		plan = append(plan, StageHybridSearch)
	} else {
		plan = append(plan, StageVectorSearch)
	}
	if cfg.UseReranker {
		plan = append(plan, StageReranking)
	}
	if cfg.UseLLM {
		plan = append(plan, StageLLMProcessing)
	}

	return append(plan, StageFinishing, StageComplete)
}

// AnalysisStagePlan returns the stage sequence of an analysis task.
func AnalysisStagePlan() []string {
	return []string{StageStarting, StagePrepare, StageAnalyze, StageFinishing, StageComplete}
}

// analyzeProgress interpolates the analysis checkpoint for parameter
// index done out of total.
func analyzeProgress(done, total int) int {
	if total <= 0 {
		return analyzeBase
	}
	return analyzeBase + analyzeSpan*done/total
}
