package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/unihelp/cli/config"
	"github.com/unihelp/cli/internal/documents"
	"github.com/unihelp/cli/internal/email"
	"github.com/unihelp/cli/internal/embeddings"
	"github.com/unihelp/cli/internal/openai"
	"github.com/unihelp/cli/internal/rag"
	"github.com/unihelp/cli/internal/tui"
	"github.com/unihelp/cli/internal/vectorstore"
	"github.com/unihelp/cli/internal/vectorstore/memory"
	"github.com/unihelp/cli/internal/vectorstore/postgres"
	"github.com/unihelp/cli/internal/vectorstore/qdrant"
)

func main() {
	_ = godotenv.Load()

	var (
		configPath  = flag.String("config", "", "Path to config file (default ~/.unihelp/config.yaml)")
		ingestFlag  = flag.Bool("ingest", false, "Synchronize the index with the documents directory and exit")
		forceFlag   = flag.Bool("force", false, "Re-embed documents even when unchanged")
		watchFlag   = flag.Bool("watch", false, "Synchronize, then keep watching the documents directory")
		queryFlag   = flag.String("query", "", "Answer one question and exit")
		emailFlag   = flag.String("email", "", "Draft an administrative email of this request type and exit")
		detailsFlag = flag.String("details", "", "Extra details for -email")
		migrateFlag = flag.Bool("migrate", false, "Initialize the vector store schema and exit")
	)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error in config: %v\n", err)
		os.Exit(1)
	}

	// Assemble clients and the vector store
	embedder := embeddings.NewClient(embeddings.Config{
		BaseURL:           cfg.OpenAI.BaseURL,
		APIKey:            cfg.OpenAI.APIKey,
		Model:             cfg.OpenAI.EmbeddingModel,
		RequestsPerSecond: cfg.OpenAI.RequestsPerSecond,
	})
	chatClient := openai.NewClient(openai.Config{
		BaseURL: cfg.OpenAI.BaseURL,
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.ChatModel,
	})

	store, cleanup, err := newStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to vector store: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := store.Init(ctx, embedder.Dimension()); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing index: %v\n", err)
		os.Exit(1)
	}
	if *migrateFlag {
		fmt.Println("Vector store ready.")
		return
	}

	if err := chatClient.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: provider check failed: %v\n", err)
		// Continue anyway - the index can still be browsed
	}

	// Assemble the pipeline and the answer engine
	chunker, err := documents.NewChunker(cfg.Processing.ChunkSize, cfg.Processing.ChunkOverlap)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error in config: %v\n", err)
		os.Exit(1)
	}
	pipeline := documents.NewPipeline(documents.Config{
		Extractor: documents.NewExtractor(),
		Chunker:   chunker,
		Embedder:  embedder,
		Store:     store,
		Workers:   cfg.Processing.Workers,
	})
	retriever := rag.NewRetriever(embedder, store, cfg.Retrieval.TopK, cfg.Retrieval.Threshold)
	builder := rag.NewContextBuilder(cfg.Retrieval.MaxContextChars)
	engine := rag.NewEngine(retriever, builder, chatClient, rag.Options{})

	switch {
	case *ingestFlag || *watchFlag:
		summary, err := pipeline.IngestDirectory(ctx, cfg.Paths.DocumentsDir, *forceFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error ingesting documents: %v\n", err)
			os.Exit(1)
		}
		printSummary(summary)
		if *watchFlag {
			watcher := documents.NewWatcher(pipeline, cfg.Paths.DocumentsDir, 0, nil)
			if err := watcher.Run(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "Error watching documents: %v\n", err)
				os.Exit(1)
			}
		}

	case *queryFlag != "":
		answer, err := engine.Answer(ctx, *queryFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error answering question: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(answer.Text)
		if len(answer.Sources) > 0 {
			fmt.Printf("\nSources: %s\n", strings.Join(answer.Sources, ", "))
		}

	case *emailFlag != "":
		generator := email.NewGenerator(retriever, builder, chatClient)
		draft, err := generator.Generate(ctx, *emailFlag, *detailsFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error drafting email: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Subject: %s\n\n%s\n", draft.Subject, draft.Body)
		if len(draft.Sources) > 0 {
			fmt.Printf("\nSources: %s\n", strings.Join(draft.Sources, ", "))
		}

	default:
		if err := runTUI(ctx, cfg, store, pipeline, engine); err != nil {
			fmt.Fprintf(os.Stderr, "Error running app: %v\n", err)
			os.Exit(1)
		}
	}
}

// runTUI indexes the documents directory on first run, then starts the
// interactive interface.
func runTUI(ctx context.Context, cfg *config.Config, store vectorstore.Store, pipeline *documents.Pipeline, engine *rag.Engine) error {
	count, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to inspect index: %w", err)
	}
	if count == 0 {
		if _, err := os.Stat(cfg.Paths.DocumentsDir); err == nil {
			fmt.Printf("Indexing %s...\n", cfg.Paths.DocumentsDir)
			if _, err := pipeline.IngestDirectory(ctx, cfg.Paths.DocumentsDir, false); err != nil {
				return fmt.Errorf("failed to index documents: %w", err)
			}
			count, _ = store.Count(ctx)
		}
	}

	sources, err := store.Sources(ctx)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	summary := fmt.Sprintf("%d chunk(s) from %d document(s) in %s", count, len(sources), cfg.Paths.DocumentsDir)

	m := tui.New(ctx, engine, store, pipeline, cfg.Paths.DocumentsDir, summary)
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func printSummary(s *documents.Summary) {
	fmt.Printf("Indexed %d, skipped %d, failed %d, removed %d (%d chunks written)\n",
		s.Indexed, s.Skipped, s.Failed, s.Removed, s.Chunks)
}

// newStore builds the configured vector store backend. The cleanup closes
// whatever the backend keeps open.
func newStore(cfg *config.Config) (vectorstore.Store, func(), error) {
	switch cfg.VectorStore.Backend {
	case "memory":
		return memory.New(), func() {}, nil
	case "qdrant":
		store := qdrant.New(qdrant.Config{
			URL:        cfg.VectorStore.Qdrant.URL,
			APIKey:     cfg.VectorStore.Qdrant.APIKey,
			Collection: cfg.VectorStore.Qdrant.Collection,
		})
		return store, func() {}, nil
	case "postgres":
		store, err := postgres.New(cfg.VectorStore.Postgres.ConnectionString)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown vector store backend %q", cfg.VectorStore.Backend)
	}
}
