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

package neuroexpert

import (
	"log/slog"

	"github.com/MasterVVK/neuro-expert/ai"
	"github.com/MasterVVK/neuro-expert/ai/ollama"
	"github.com/MasterVVK/neuro-expert/extract"
	"github.com/MasterVVK/neuro-expert/ingest"
	"github.com/MasterVVK/neuro-expert/pipeline"
	"github.com/MasterVVK/neuro-expert/search"
	"github.com/MasterVVK/neuro-expert/storage"
	"github.com/MasterVVK/neuro-expert/storage/badger"
)

// Service wires storage and AI services together and hands out the
// document indexer and the task orchestrator built on top of them.
type Service struct {
	backend    *badger.Backend
	chunks     storage.ChunkStore
	checklists storage.ChecklistStore
	provider   ai.Provider
	logger     *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	aiConfig *ai.Config
	provider ai.Provider
	inMemory bool
}

// WithAIConfig sets the configuration used to build the default Ollama
// provider. Ignored when WithProvider is also given.
func WithAIConfig(cfg *ai.Config) ServiceOption {
	return func(o *serviceOptions) {
		o.aiConfig = cfg
	}
}

// WithProvider injects a pre-built AI provider instead of the default
// Ollama one. The service takes ownership and closes it on Close.
func WithProvider(provider ai.Provider) ServiceOption {
	return func(o *serviceOptions) {
		o.provider = provider
	}
}

// WithInMemoryStorage keeps all data in memory. Useful for tests.
func WithInMemoryStorage() ServiceOption {
	return func(o *serviceOptions) {
		o.inMemory = true
	}
}

// NewService opens the storage at filePath and connects the AI provider.
func NewService(filePath string, opts ...ServiceOption) (*Service, error) {
	options := &serviceOptions{
		aiConfig: ai.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}

	chunks, err := badger.NewChunkStore(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	checklists, err := badger.NewChecklistStore(backend)
	if err != nil {
		chunks.Close()
		backend.Close()
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = ollama.NewProvider(options.aiConfig)
		if err != nil {
			checklists.Close()
			chunks.Close()
			backend.Close()
			return nil, err
		}
	}

	return &Service{
		backend:    backend,
		chunks:     chunks,
		checklists: checklists,
		provider:   provider,
		logger:     slog.Default(),
	}, nil
}

// Close releases the AI provider and the storage backend.
func (s *Service) Close() error {
	if err := s.provider.Close(); err != nil {
		s.logger.Error("error closing AI provider", "err", err)
	}

	if err := s.checklists.Close(); err != nil {
		s.logger.Error("error closing checklist store", "err", err)
		return err
	}
	if err := s.chunks.Close(); err != nil {
		s.logger.Error("error closing chunk store", "err", err)
		return err
	}

	if err := s.backend.Close(); err != nil {
		s.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// ChunkStore exposes the indexed document chunks.
func (s *Service) ChunkStore() storage.ChunkStore {
	return s.chunks
}

// ChecklistStore exposes the saved checklists.
func (s *Service) ChecklistStore() storage.ChecklistStore {
	return s.checklists
}

// Provider exposes the AI provider.
func (s *Service) Provider() ai.Provider {
	return s.provider
}

// NewIndexer builds a document indexer on the service's stores.
func (s *Service) NewIndexer(opts ...ingest.Option) (*ingest.Indexer, error) {
	return ingest.NewIndexer(s.chunks, s.provider.Embedder(), opts...)
}

// NewOrchestrator builds a task orchestrator wired to the service's
// stores and AI services.
func (s *Service) NewOrchestrator(opts ...pipeline.Option) (*pipeline.Orchestrator, error) {
	retriever, err := search.NewRetriever(s.chunks, s.provider.Embedder())
	if err != nil {
		return nil, err
	}

	rerank, err := search.NewRerankStage(s.provider.Reranker())
	if err != nil {
		return nil, err
	}

	extractor, err := extract.NewExtractor(s.provider.Generator())
	if err != nil {
		return nil, err
	}

	return pipeline.NewOrchestrator(retriever, rerank, extractor, s.checklists, opts...)
}
