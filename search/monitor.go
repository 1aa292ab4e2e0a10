package search

import "github.com/MasterVVK/neuro-expert/core"

// SearchMonitor provides hooks to observe the retrieval process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string, method core.Method)
	AfterVectorSearch(candidates []*core.Candidate)
	AfterTextSearch(candidates []*core.Candidate)
	AfterBlend(candidates []*core.Candidate)
	Finish(results []*core.Candidate)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ core.Method)         {}
func (n *noopMonitor) AfterVectorSearch(_ []*core.Candidate) {}
func (n *noopMonitor) AfterTextSearch(_ []*core.Candidate)   {}
func (n *noopMonitor) AfterBlend(_ []*core.Candidate)        {}
func (n *noopMonitor) Finish(_ []*core.Candidate)            {}
