package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/orgpedia/orgpedia/api"
	"github.com/orgpedia/orgpedia/db"
	"github.com/orgpedia/orgpedia/internal/auth"
	"github.com/orgpedia/orgpedia/internal/chat"
	"github.com/orgpedia/orgpedia/internal/config"
	"github.com/orgpedia/orgpedia/internal/database"
	"github.com/orgpedia/orgpedia/internal/embedding"
	"github.com/orgpedia/orgpedia/internal/index"
	"github.com/orgpedia/orgpedia/internal/ingest"
	"github.com/orgpedia/orgpedia/internal/llm"
	"github.com/orgpedia/orgpedia/internal/log"
	"github.com/orgpedia/orgpedia/internal/rag"
	"github.com/orgpedia/orgpedia/internal/user"
)

var serveJSONLogs bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveJSONLogs, "json-logs", false, "emit logs as JSON")
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger := log.New(log.Config{Level: slog.LevelInfo, JSON: serveJSONLogs})
	logger.Info("starting orgpedia", "version", Version, "provider", cfg.Provider)

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	pool, err := database.Open(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	embedder := embedding.NewClient(cfg.OllamaHost, cfg.EmbedderModel, logger.With("component", "embedding"))

	store, err := index.New(pool, cfg.IndexName, cfg.EmbeddingDims, logger.With("component", "index"))
	if err != nil {
		return fmt.Errorf("creating index store: %w", err)
	}

	provider, err := llm.ForProvider(cfg, logger.With("component", "llm"))
	if err != nil {
		return fmt.Errorf("creating completion provider: %w", err)
	}

	users := user.NewStore(pool, logger.With("component", "user"))
	chats := chat.NewStore(pool, logger.With("component", "chat"))
	issuer := auth.NewIssuer(cfg.JWTSecret)

	engine := rag.NewEngine(embedder, store, provider, chats, cfg.ModelName,
		logger.With("component", "rag"))
	pipeline := ingest.NewPipeline(embedder, store, logger.With("component", "ingest"))

	server := api.NewServer(api.Deps{
		Pool:   pool,
		Users:  users,
		Chats:  chats,
		Engine: engine,
		Ingest: pipeline,
		Tokens: issuer,
		Logger: logger.With("component", "api"),
	})

	return server.Run(ctx, cfg.Addr)
}
