// Evidenced serves evidence-grounded answers over a clinical guideline
// corpus. It has two modes: an offline ingestion batch that builds the
// vector store from source documents, and an HTTP server that answers
// questions with citations into that corpus.
//
// Usage:
//
//	# One-shot corpus build
//	evidenced ingest --reset
//
//	# Start the query server
//	evidenced serve
//
//	# Configure via environment
//	SERVER_PORT=9000 LLM_BACKEND=ollama evidenced serve
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/evidenced/internal/config"
	"github.com/fyrsmithlabs/evidenced/internal/embeddings"
	httpapi "github.com/fyrsmithlabs/evidenced/internal/http"
	"github.com/fyrsmithlabs/evidenced/internal/ingest"
	"github.com/fyrsmithlabs/evidenced/internal/logging"
	"github.com/fyrsmithlabs/evidenced/internal/rag"
	"github.com/fyrsmithlabs/evidenced/internal/telemetry"
	"github.com/fyrsmithlabs/evidenced/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	configPath  string
	ingestReset bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "evidenced",
	Short: "Evidence-grounded Q&A over clinical guidelines",
	Long: `evidenced answers clinical questions with citations into a local
guideline corpus. Run "evidenced ingest" to build the vector store,
then "evidenced serve" to start the HTTP API.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/evidenced/config.yaml)")
	ingestCmd.Flags().BoolVar(&ingestReset, "reset", false, "drop the collection before ingesting")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(versionCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP query server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Build the vector store from the corpus",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("evidenced\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

// runServe wires the full query pipeline and blocks until SIGINT or
// SIGTERM, then shuts down within the configured timeout.
func runServe() error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer logging.Sync(logger) //nolint:errcheck

	// The metrics provider must be installed before the server creates
	// its instruments, or they bind to the no-op global.
	tel, err := telemetry.Setup(nil, logger)
	if err != nil {
		return err
	}
	defer tel.Shutdown(context.Background()) //nolint:errcheck

	provider, store, err := buildStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()    //nolint:errcheck
	defer provider.Close() //nolint:errcheck

	answerer, err := buildAnswerer(cfg, logger)
	if err != nil {
		return err
	}

	composer := rag.NewComposer(answerer, logger)
	svc, err := rag.NewService(store, cfg.VectorStore.Collection, composer, logger)
	if err != nil {
		return err
	}

	srv, err := httpapi.NewServer(svc, logger, &httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// runIngest executes one ingestion batch and prints a summary.
func runIngest() error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer logging.Sync(logger) //nolint:errcheck

	provider, store, err := buildStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()    //nolint:errcheck
	defer provider.Close() //nolint:errcheck

	pipeline, err := ingest.NewPipeline(store, ingest.Config{
		MetaPath:     cfg.Data.StudiesMeta,
		RawDir:       cfg.Data.RawDir,
		Collection:   cfg.VectorStore.Collection,
		ChunkSize:    cfg.Ingest.ChunkSize,
		ChunkOverlap: cfg.Ingest.ChunkOverlap,
		Reset:        ingestReset,
	}, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Ingestion run %s complete\n", summary.RunID)
	fmt.Printf("  Studies:   %d\n", summary.Studies)
	fmt.Printf("  Documents: %d\n", summary.Documents)
	fmt.Printf("  Chunks:    %d\n", summary.Chunks)
	return nil
}

// buildStore creates the embedding provider and the chromem store
// around it. The same provider serves both ingestion and queries so
// document and query vectors share one embedding space.
func buildStore(cfg *config.Config, logger *zap.Logger) (embeddings.Provider, vectorstore.Store, error) {
	provider, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider: cfg.Embeddings.Provider,
		Model:    cfg.Embeddings.Model,
		BaseURL:  cfg.Embeddings.BaseURL,
		CacheDir: cfg.Embeddings.CacheDir,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:              cfg.VectorStore.Path,
		Compress:          cfg.VectorStore.Compress,
		DefaultCollection: cfg.VectorStore.Collection,
		VectorSize:        provider.Dimension(),
	}, provider, logger)
	if err != nil {
		provider.Close() //nolint:errcheck
		return nil, nil, fmt.Errorf("creating vector store: %w", err)
	}

	return provider, store, nil
}

// buildAnswerer selects the generation backend. With backend "none"
// the service returns retrieved context without calling a model.
func buildAnswerer(cfg *config.Config, logger *zap.Logger) (rag.Answerer, error) {
	switch cfg.LLM.Backend {
	case config.BackendNone:
		return rag.Passthrough{}, nil
	case config.BackendOllama:
		model, err := ollama.New(
			ollama.WithModel(cfg.LLM.Model),
			ollama.WithServerURL(cfg.LLM.BaseURL),
		)
		if err != nil {
			return nil, fmt.Errorf("creating ollama client: %w", err)
		}
		return rag.NewGenerative(model, cfg.LLM.Temperature, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.LLM.Backend)
	}
}
