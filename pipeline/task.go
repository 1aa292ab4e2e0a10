package pipeline

import (
	"time"

	"github.com/MasterVVK/neuro-expert/core"
)

// TaskKind distinguishes the two task flavors the pipeline runs.
type TaskKind int

const (
	// TaskSearch is a single-query search task.
	TaskSearch TaskKind = iota + 1
	// TaskAnalysis runs every parameter of a checklist.
	TaskAnalysis
)

// String returns the wire representation of the task kind.
func (k TaskKind) String() string {
	switch k {
	case TaskSearch:
		return "search"
	case TaskAnalysis:
		return "analysis"
	default:
		return "unknown"
	}
}

// Status is the lifecycle state of a task.
// Transitions go pending -> progress* -> {success | error | cancelled};
// terminal states are sticky.
type Status int

const (
	// StatusPending means the task is accepted but not started.
	StatusPending Status = iota + 1
	// StatusProgress means a worker is running the task's stages.
	StatusProgress
	// StatusSuccess is the terminal state with a result attached.
	StatusSuccess
	// StatusError is the terminal state after a fatal stage failure.
	StatusError
	// StatusCancelled is the terminal state after a user cancellation.
	// Not an error.
	StatusCancelled
)

// String returns the wire representation of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProgress:
		return "progress"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status accepts no further transitions.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError || s == StatusCancelled
}

// Task is the polling payload for one submitted search or analysis.
// Callers must branch on Status before reading the result fields: a
// failed task is identical in shape to a successful one.
type Task struct {
	ID            string
	Kind          TaskKind
	ApplicationID string
	Query         string

	Status   Status
	Stage    string
	Progress int // 0-100, non-decreasing
	Message  string

	CreatedAt  time.Time
	FinishedAt time.Time // Zero until the task reaches a terminal state

	// Stages is the stage sequence this task will pass through, computed
	// once at submission from the configuration.
	Stages []string

	SearchResult   *SearchResult
	AnalysisResult *AnalysisResult
}

// SearchResult is the payload of a finished search task.
type SearchResult struct {
	Method        core.Method
	Candidates    []core.Candidate
	RerankApplied bool
	Extraction    *core.ExtractionResult
}

// ParameterResult is one row of an analysis report.
type ParameterResult struct {
	ParameterID   core.ID
	ParameterName string
	Value         string
	Confidence    float64
	Method        core.Method
	Sources       []core.Candidate
	Error         string // Empty unless this parameter failed
}

// AnalysisResult is the payload of a finished analysis task.
type AnalysisResult struct {
	ChecklistID   core.ID
	ChecklistName string
	Results       []ParameterResult
	Processed     int
	Errors        int
}
