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
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultRetention is how long finished tasks stay readable before
	// the janitor evicts them.
	DefaultRetention = 30 * time.Minute

	defaultJanitorInterval = time.Minute
)

// Registry is the process-wide task table. It is the only mutable state
// shared between workers and pollers: workers write their own task's
// fields, pollers read snapshots, and the registry enforces the task
// invariants (monotonic progress, sticky terminal states) so no caller
// has to.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*taskEntry

	retention time.Duration
	logger    *slog.Logger
}

type taskEntry struct {
	task   Task
	cancel context.CancelFunc
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRetention sets how long finished tasks stay readable.
// Default is DefaultRetention.
func WithRetention(retention time.Duration) RegistryOption {
	return func(r *Registry) {
		if retention > 0 {
			r.retention = retention
		}
	}
}

// WithRegistryLogger sets a custom logger.
// Default is slog.Default().
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty task registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		entries:   make(map[string]*taskEntry),
		retention: DefaultRetention,
		logger:    slog.Default().With("component", "task-registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a new pending task and returns its snapshot together
// with the context its worker must run under. Cancelling the task
// cancels the context.
func (r *Registry) Create(kind TaskKind, applicationID, query string, stages []string) (Task, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())

	task := Task{
		ID:            uuid.NewString(),
		Kind:          kind,
		ApplicationID: applicationID,
		Query:         query,
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
		Stages:        stages,
	}

	r.mu.Lock()
	r.entries[task.ID] = &taskEntry{task: task, cancel: cancel}
	r.mu.Unlock()

	r.logger.Debug("task created", "taskID", task.ID, "kind", kind.String(), "applicationID", applicationID)
	return task, ctx
}

// Get returns a snapshot of the task's current state.
func (r *Registry) Get(id string) (Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return entry.task, nil
}

// update applies fn to a live (non-terminal) task. Terminal states are
// sticky: updates against a finished task are dropped silently, which
// lets a worker lose a cancellation race without corrupting the state.
func (r *Registry) update(id string, fn func(*Task)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok || entry.task.Status.Terminal() {
		return false
	}
	fn(&entry.task)
	return true
}

// SetStage records a stage checkpoint. Progress never decreases: a
// checkpoint lower than the current value keeps the current value.
func (r *Registry) SetStage(id, stage string, progress int, message string) {
	r.update(id, func(t *Task) {
		t.Status = StatusProgress
		t.Stage = stage
		if progress > t.Progress {
			t.Progress = progress
		}
		t.Message = message
	})
}

// CompleteSearch moves a search task to success with its result.
func (r *Registry) CompleteSearch(id string, result *SearchResult, message string) {
	r.update(id, func(t *Task) {
		t.Status = StatusSuccess
		t.Stage = StageComplete
		t.Progress = progressComplete
		t.Message = message
		t.SearchResult = result
		t.FinishedAt = time.Now().UTC()
	})
}

// CompleteAnalysis moves an analysis task to success with its report.
func (r *Registry) CompleteAnalysis(id string, result *AnalysisResult, message string) {
	r.update(id, func(t *Task) {
		t.Status = StatusSuccess
		t.Stage = StageComplete
		t.Progress = progressComplete
		t.Message = message
		t.AnalysisResult = result
		t.FinishedAt = time.Now().UTC()
	})
}

// Fail moves a task to the error state with a user-safe message.
// Diagnostic detail belongs in the server log, not the polled payload.
func (r *Registry) Fail(id, message string) {
	if r.update(id, func(t *Task) {
		t.Status = StatusError
		t.Message = message
		t.FinishedAt = time.Now().UTC()
	}) {
		r.logger.Warn("task failed", "taskID", id, "message", message)
	}
}

// Cancel requests cancellation of a task. Idempotent: cancelling a
// finished or already-cancelled task is a no-op. The task moves to the
// cancelled state immediately; its worker observes the cancelled
// context at the next stage boundary and stops.
func (r *Registry) Cancel(id string) error {
	r.mu.Lock()
	entry, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return ErrTaskNotFound
	}
	if entry.task.Status.Terminal() {
		r.mu.Unlock()
		return nil
	}
	entry.task.Status = StatusCancelled
	entry.task.Message = "Задача отменена пользователем"
	entry.task.FinishedAt = time.Now().UTC()
	cancel := entry.cancel
	r.mu.Unlock()

	cancel()
	r.logger.Info("task cancelled", "taskID", id)
	return nil
}

// Len returns the number of tasks currently held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Evict removes finished tasks older than the retention window and
// returns how many were dropped. Live tasks are never evicted.
func (r *Registry) Evict(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, entry := range r.entries {
		if entry.task.Status.Terminal() && now.Sub(entry.task.FinishedAt) > r.retention {
			delete(r.entries, id)
			evicted++
		}
	}
	if evicted > 0 {
		r.logger.Debug("evicted finished tasks", "count", evicted)
	}
	return evicted
}

// StartJanitor runs periodic eviction until ctx is done.
func (r *Registry) StartJanitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(defaultJanitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Evict(time.Now())
			}
		}
	}()
}
