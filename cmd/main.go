package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/embeddings"

	"github.com/xhad/pdfchat/internal/logger"
	"github.com/xhad/pdfchat/internal/types"
	"github.com/xhad/pdfchat/pkg/assistant"
	cfgPkg "github.com/xhad/pdfchat/pkg/config"
	"github.com/xhad/pdfchat/pkg/extractor"
	"github.com/xhad/pdfchat/pkg/llm"
	"github.com/xhad/pdfchat/pkg/processor"
	"github.com/xhad/pdfchat/pkg/store"
)

var (
	configPath string
	verbose    bool
	provider   string

	// config is loaded and validated before any subcommand runs.
	config *cfgPkg.Config
)

var rootCmd = &cobra.Command{
	Use:   "pdfchat",
	Short: "Chat with your PDF documents",
	Long: `pdfchat indexes PDF documents and answers questions about them.
Relevant passages are retrieved from the index and sent with the question
to a hosted language model (Groq, OpenAI or Google).`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline details to stderr")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "generation provider: groq, openai or google")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		color.Red("Error: %v", err)
		if errors.Is(err, types.ErrNoProvider) {
			fmt.Fprintln(os.Stderr, "Set GROQ_API_KEY, OPENAI_API_KEY or GOOGLE_API_KEY (a .env file works too).")
		}
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)

	// A missing .env is fine; the environment may already be set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("error loading .env: %v", err)
	}

	cfg, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if provider != "" {
		cfg.LLM.Provider = provider
	}
	if err := cfgPkg.Err(cfg.Validate()); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	config = cfg
	return nil
}

// app is the wired pipeline shared by every subcommand.
type app struct {
	index     types.Index
	assistant *assistant.Assistant
	ingester  *assistant.Ingester
}

func (a *app) Close() {
	a.ingester.Close()
	a.index.Close()
}

// newResponder is replaced in tests to avoid calling a real provider.
var newResponder = func(ctx context.Context, cfg *cfgPkg.Config) (types.Responder, error) {
	name := cfg.ResolveProvider()
	p, _ := cfg.Provider(name)
	logger.Info("using provider %s (%s)", name, p.Model)

	return llm.NewWithConfig(ctx, llm.ChatConfig{
		Provider:    name,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	}, llm.ProviderConfig{
		Name:    name,
		APIKey:  p.APIKey,
		Model:   p.Model,
		BaseURL: p.BaseURL,
	})
}

func newApp(ctx context.Context, cfg *cfgPkg.Config) (*app, error) {
	emb, err := llm.NewEmbedder(ctx, llm.EmbedderConfig{
		Type:      cfg.Embedder.Type,
		Model:     cfg.Embedder.Model,
		BaseURL:   cfg.Embedder.BaseURL,
		APIKey:    embedderKey(cfg),
		Dimension: cfg.Embedder.Dimension,
		BatchSize: cfg.Embedder.BatchSize,
	})
	if err != nil {
		return nil, err
	}

	index, err := newIndex(ctx, cfg, emb)
	if err != nil {
		return nil, err
	}

	responder, err := newResponder(ctx, cfg)
	if err != nil {
		index.Close()
		return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	a, err := assistant.New(
		extractor.New(),
		processor.NewWithConfig(processor.ProcessorConfig{
			MaxChunkSize: cfg.Processor.MaxChunkSize,
			Overlap:      cfg.Processor.Overlap,
		}),
		index,
		responder,
		assistant.Config{
			Locale:          cfg.Assistant.Locale,
			HistoryTurns:    cfg.Assistant.HistoryTurns,
			DuplicatePolicy: cfg.Assistant.DuplicatePolicy,
			TopK:            cfg.Retrieval.TopK,
		},
	)
	if err != nil {
		index.Close()
		return nil, err
	}

	return &app{
		index:     index,
		assistant: a,
		ingester:  assistant.NewIngester(a.Ingest, cfg.Assistant.IngestWorkers, assistant.DefaultRetryPolicy),
	}, nil
}

func newIndex(ctx context.Context, cfg *cfgPkg.Config, emb embeddings.Embedder) (types.Index, error) {
	switch cfg.Database.Type {
	case "memory":
		return store.NewMemoryIndex(emb), nil
	case "sqlite":
		return store.NewSQLiteIndex(cfg.Database.SQLitePath, emb)
	case "pgvector":
		return store.NewPGVectorIndex(ctx, store.PGVectorConfig{
			ConnString: cfg.Database.URL,
			TableName:  cfg.Database.TableName,
			VectorDim:  cfg.Embedder.Dimension,
		}, emb)
	}
	return nil, fmt.Errorf("unknown database type %q", cfg.Database.Type)
}

func embedderKey(cfg *cfgPkg.Config) string {
	switch cfg.Embedder.Type {
	case "openai":
		return cfg.LLM.OpenAI.APIKey
	case "google":
		return cfg.LLM.Google.APIKey
	}
	return ""
}
