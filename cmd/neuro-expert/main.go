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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	neuroexpert "github.com/MasterVVK/neuro-expert"
	"github.com/MasterVVK/neuro-expert/ai"
	"github.com/MasterVVK/neuro-expert/ai/ollama"
	"github.com/MasterVVK/neuro-expert/core"
	"github.com/MasterVVK/neuro-expert/ingest"
	"github.com/MasterVVK/neuro-expert/pipeline"
	"github.com/urfave/cli/v2"
)

// defaultPromptTemplate asks the model for a structured answer the
// response parser recognizes at high confidence.
const defaultPromptTemplate = `Ты - эксперт по анализу документации. Найди в предоставленном контексте информацию по запросу.

Запрос: {query}

Контекст:
{context}

Дай краткий ответ в формате "Результат: <значение>". Если информация в контексте отсутствует, ответь "Информация не найдена".`

const pollInterval = 200 * time.Millisecond

func main() {
	app := &cli.App{
		Name:  "neuro-expert",
		Usage: "Semantic search and LLM analysis over application documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "index",
				Usage:     "Split, embed and index a markdown document",
				ArgsUsage: "FILE",
				Action:    indexCommand,
				Flags: append(storageFlags(), append(aiFlags(),
					&cli.StringFlag{
						Name:     "app",
						Usage:    "Application identifier the document belongs to",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "doc",
						Usage: "Document identifier (defaults to the file name)",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to embed in each batch",
						Value: 16,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent embedding workers",
						Value: 4,
					})...),
			},
			{
				Name:      "search",
				Usage:     "Run a search task over an application's documents",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: append(storageFlags(), append(aiFlags(),
					&cli.StringFlag{
						Name:     "app",
						Usage:    "Application identifier to search in",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: 5,
					},
					&cli.BoolFlag{
						Name:  "rerank",
						Usage: "Enable second-pass relevance scoring",
					},
					&cli.IntFlag{
						Name:  "rerank-limit",
						Usage: "Candidates fed to the reranker (0 = all chunks)",
						Value: 10,
					},
					&cli.BoolFlag{
						Name:  "smart",
						Usage: "Enable query-length based hybrid search",
						Value: true,
					},
					&cli.Float64Flag{
						Name:  "vector-weight",
						Usage: "Vector score weight for hybrid search",
						Value: 0.5,
					},
					&cli.Float64Flag{
						Name:  "text-weight",
						Usage: "Text score weight for hybrid search",
						Value: 0.5,
					},
					&cli.BoolFlag{
						Name:  "llm",
						Usage: "Extract a structured answer with the LLM",
					},
					&cli.StringFlag{
						Name:  "model",
						Usage: "LLM model for extraction",
						Value: "gemma3:27b",
					},
					&cli.StringFlag{
						Name:  "prompt-file",
						Usage: "File with the extraction prompt template ({query} and {context} placeholders)",
					},
					&cli.BoolFlag{
						Name:  "full-scan",
						Usage: "Scan every chunk when targeted extraction finds nothing",
					})...),
			},
			{
				Name:      "analyze",
				Usage:     "Run a checklist analysis task over an application",
				ArgsUsage: "CHECKLIST_ID",
				Action:    analyzeCommand,
				Flags: append(storageFlags(), append(aiFlags(),
					&cli.StringFlag{
						Name:     "app",
						Usage:    "Application identifier to analyze",
						Required: true,
					})...),
			},
			{
				Name:  "checklist",
				Usage: "Manage saved checklists",
				Subcommands: []*cli.Command{
					{
						Name:      "add",
						Usage:     "Store a checklist from a JSON file",
						ArgsUsage: "FILE",
						Action:    checklistAddCommand,
						Flags:     storageFlags(),
					},
					{
						Name:   "list",
						Usage:  "List stored checklists",
						Action: checklistListCommand,
						Flags:  storageFlags(),
					},
				},
			},
			{
				Name:   "models",
				Usage:  "List generation models available on the inference server",
				Action: modelsCommand,
				Flags:  aiFlags(),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "db",
			Aliases:  []string{"d"},
			Usage:    "Path to BadgerDB database directory",
			Required: true,
		},
	}
}

func aiFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "host",
			Usage: "Ollama server base URL",
			Value: "http://localhost:11434",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
			Value: "bge-m3",
		},
		&cli.StringFlag{
			Name:  "rerank-host",
			Usage: "Reranking service URL (defaults to host)",
		},
		&cli.StringFlag{
			Name:  "rerank-model",
			Usage: "Cross-encoder model for reranking",
			Value: "bge-reranker-v2-m3",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "External service call timeout",
			Value: 120 * time.Second,
		},
	}
}

func aiConfigFromFlags(c *cli.Context) *ai.Config {
	return ai.NewConfig(
		ai.WithHost(c.String("host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithRerankHost(c.String("rerank-host")),
		ai.WithRerankModel(c.String("rerank-model")),
		ai.WithTimeout(c.Duration("timeout")),
	)
}

func openService(c *cli.Context) (*neuroexpert.Service, error) {
	svc, err := neuroexpert.NewService(c.String("db"),
		neuroexpert.WithAIConfig(aiConfigFromFlags(c)))
	if err != nil {
		return nil, fmt.Errorf("failed to open service: %w", err)
	}
	return svc, nil
}

func indexCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one markdown file argument")
	}
	filePath := c.Args().First()

	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	documentID := c.String("doc")
	if documentID == "" {
		documentID = filePath
	}

	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	indexer, err := svc.NewIndexer(
		ingest.WithBatchSize(c.Int("batch-size")),
		ingest.WithPoolSize(c.Int("workers")))
	if err != nil {
		return fmt.Errorf("failed to create indexer: %w", err)
	}
	defer indexer.Release()

	fmt.Fprintf(os.Stderr, "Indexing %s into application %s\n", documentID, c.String("app"))

	count, err := indexer.IndexDocument(c.Context, c.String("app"), documentID, string(content),
		func(done, total int) {
			fmt.Fprintf(os.Stderr, "Embedded %d/%d chunks\n", done, total)
		})
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Printf("Indexed %d chunks\n", count)
	return nil
}

func searchCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one query argument")
	}
	query := c.Args().First()

	cfg := core.SearchConfig{
		SearchLimit:     c.Int("limit"),
		UseReranker:     c.Bool("rerank"),
		RerankLimit:     c.Int("rerank-limit"),
		UseSmartSearch:  c.Bool("smart"),
		VectorWeight:    c.Float64("vector-weight"),
		TextWeight:      c.Float64("text-weight"),
		HybridThreshold: 10,
		UseLLM:          c.Bool("llm"),
	}
	if cfg.UseLLM {
		template := defaultPromptTemplate
		if promptFile := c.String("prompt-file"); promptFile != "" {
			data, err := os.ReadFile(promptFile)
			if err != nil {
				return fmt.Errorf("failed to read prompt template: %w", err)
			}
			template = string(data)
		}
		cfg.LLM = core.LLMConfig{
			Model:          c.String("model"),
			PromptTemplate: template,
			Temperature:    0.1,
			MaxTokens:      1000,
			UseFullScan:    c.Bool("full-scan"),
		}
	}

	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	orchestrator, err := svc.NewOrchestrator()
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	defer orchestrator.Release()

	taskID, err := orchestrator.SubmitSearch(c.String("app"), query, cfg)
	if err != nil {
		return fmt.Errorf("failed to submit search: %w", err)
	}

	task, err := waitForTask(c.Context, orchestrator, taskID)
	if err != nil {
		return err
	}
	if task.Status != pipeline.StatusSuccess {
		return fmt.Errorf("task finished with status %s: %s", task.Status, task.Message)
	}

	printSearchResult(task)
	return nil
}

func analyzeCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one checklist ID argument")
	}
	var checklistID core.ID
	if _, err := fmt.Sscanf(c.Args().First(), "%d", &checklistID); err != nil {
		return fmt.Errorf("invalid checklist ID %q", c.Args().First())
	}

	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	orchestrator, err := svc.NewOrchestrator()
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	defer orchestrator.Release()

	taskID, err := orchestrator.SubmitAnalysis(c.String("app"), checklistID)
	if err != nil {
		return fmt.Errorf("failed to submit analysis: %w", err)
	}

	task, err := waitForTask(c.Context, orchestrator, taskID)
	if err != nil {
		return err
	}
	if task.Status != pipeline.StatusSuccess {
		return fmt.Errorf("task finished with status %s: %s", task.Status, task.Message)
	}

	printAnalysisResult(task)
	return nil
}

// waitForTask polls the task until it reaches a terminal status, echoing
// stage transitions to stderr.
func waitForTask(ctx context.Context, orchestrator *pipeline.Orchestrator, taskID string) (pipeline.Task, error) {
	lastStage := ""
	for {
		task, err := orchestrator.Status(taskID)
		if err != nil {
			return pipeline.Task{}, fmt.Errorf("failed to poll task: %w", err)
		}
		if task.Stage != lastStage {
			fmt.Fprintf(os.Stderr, "[%3d%%] %s: %s\n", task.Progress, task.Stage, task.Message)
			lastStage = task.Stage
		}
		if task.Status.Terminal() {
			return task, nil
		}

		select {
		case <-ctx.Done():
			// Best effort: mark the task cancelled before leaving
			_ = orchestrator.Cancel(taskID)
			return pipeline.Task{}, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func printSearchResult(task pipeline.Task) {
	result := task.SearchResult
	if result == nil {
		fmt.Println("No results")
		return
	}

	fmt.Printf("Method: %s, rerank applied: %v\n\n", result.Method, result.RerankApplied)

	if result.Extraction != nil {
		fmt.Printf("Answer: %s\n", result.Extraction.Value)
		fmt.Printf("Confidence: %.2f (format %s)\n", result.Extraction.Confidence, result.Extraction.Format)
		if result.Extraction.ScannedChunks > 0 {
			fmt.Printf("Scanned chunks: %d\n", result.Extraction.ScannedChunks)
		}
		fmt.Println()
	}

	for i, candidate := range result.Candidates {
		fmt.Printf("%d. [%s] %s (score %.4f)\n", i+1, candidate.SearchType,
			candidate.Section, candidate.EffectiveScore())
		fmt.Println(indent(candidate.Text, "   "))
	}
}

func printAnalysisResult(task pipeline.Task) {
	result := task.AnalysisResult
	if result == nil {
		fmt.Println("No results")
		return
	}

	fmt.Printf("Checklist: %s (%d parameters, %d errors)\n\n",
		result.ChecklistName, len(result.Results), result.Errors)

	for _, item := range result.Results {
		if item.Error != "" {
			fmt.Printf("- %s: ошибка: %s\n", item.ParameterName, item.Error)
			continue
		}
		fmt.Printf("- %s: %s (confidence %.2f, %s)\n",
			item.ParameterName, item.Value, item.Confidence, item.Method)
	}
}

// checklistFile is the JSON shape accepted by "checklist add".
type checklistFile struct {
	Name       string `json:"name"`
	Parameters []struct {
		Name        string `json:"name"`
		SearchQuery string `json:"search_query"`
	} `json:"parameters"`
}

func checklistAddCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one JSON file argument")
	}

	data, err := os.ReadFile(c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to read checklist file: %w", err)
	}

	var file checklistFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse checklist file: %w", err)
	}
	if file.Name == "" {
		return fmt.Errorf("checklist name is required")
	}
	if len(file.Parameters) == 0 {
		return fmt.Errorf("checklist must have at least one parameter")
	}

	checklist := &core.Checklist{Name: file.Name}
	for _, p := range file.Parameters {
		checklist.Parameters = append(checklist.Parameters, core.Parameter{
			Name:        p.Name,
			SearchQuery: p.SearchQuery,
			Config:      core.DefaultSearchConfig(),
		})
	}

	svc, err := openServiceWithoutAI(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	stored, err := svc.ChecklistStore().AddChecklist(c.Context, checklist)
	if err != nil {
		return fmt.Errorf("failed to store checklist: %w", err)
	}

	fmt.Printf("Stored checklist %d: %s (%d parameters)\n",
		stored.Id, stored.Name, len(stored.Parameters))
	return nil
}

func checklistListCommand(c *cli.Context) error {
	svc, err := openServiceWithoutAI(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	checklists, err := svc.ChecklistStore().Checklists(c.Context)
	if err != nil {
		return fmt.Errorf("failed to list checklists: %w", err)
	}
	if len(checklists) == 0 {
		fmt.Println("No checklists stored")
		return nil
	}

	for _, checklist := range checklists {
		fmt.Printf("%d\t%s\t%d parameters\n",
			checklist.Id, checklist.Name, len(checklist.Parameters))
	}
	return nil
}

// openServiceWithoutAI opens storage for commands that never call the
// inference server. The default AI config is still attached but unused.
func openServiceWithoutAI(c *cli.Context) (*neuroexpert.Service, error) {
	svc, err := neuroexpert.NewService(c.String("db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open service: %w", err)
	}
	return svc, nil
}

func modelsCommand(c *cli.Context) error {
	provider, err := ollama.NewProvider(aiConfigFromFlags(c))
	if err != nil {
		return fmt.Errorf("failed to create AI provider: %w", err)
	}
	defer provider.Close()

	models, err := provider.Generator().ListModels(c.Context)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}
	if len(models) == 0 {
		fmt.Println("No generation models available")
		return nil
	}

	for _, model := range models {
		fmt.Println(model)
	}
	return nil
}

func indent(text, prefix string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
