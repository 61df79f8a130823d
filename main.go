// Package main provides the penf-live entry point. penf-live is the live
// meeting insight worker of the Penfold system: it ingests transcript
// chunks, extracts decisions, risks, questions, and actions in real time,
// and fans the results out to every connected client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/penf-live/config"
	"github.com/otherjamesbrown/penf-live/pkg/ai"
	"github.com/otherjamesbrown/penf-live/pkg/answers"
	"github.com/otherjamesbrown/penf-live/pkg/buildinfo"
	"github.com/otherjamesbrown/penf-live/pkg/conflicts"
	"github.com/otherjamesbrown/penf-live/pkg/db"
	"github.com/otherjamesbrown/penf-live/pkg/dedup"
	"github.com/otherjamesbrown/penf-live/pkg/delivery"
	"github.com/otherjamesbrown/penf-live/pkg/embedding"
	"github.com/otherjamesbrown/penf-live/pkg/extraction"
	"github.com/otherjamesbrown/penf-live/pkg/logging"
	"github.com/otherjamesbrown/penf-live/pkg/observability"
	"github.com/otherjamesbrown/penf-live/pkg/pipeline"
	"github.com/otherjamesbrown/penf-live/pkg/repetition"
	"github.com/otherjamesbrown/penf-live/pkg/search"
	"github.com/otherjamesbrown/penf-live/pkg/segments"
	"github.com/otherjamesbrown/penf-live/pkg/server"
	"github.com/otherjamesbrown/penf-live/pkg/session"
	"github.com/otherjamesbrown/penf-live/pkg/store"
	"github.com/otherjamesbrown/penf-live/pkg/validator"
)

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "penf-live",
		Short: "Live meeting insight worker",
		Long: `penf-live ingests live meeting transcript chunks, extracts decisions,
risks, questions, and action items as they are spoken, and delivers them to
every connected client in real time.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: penf-live.yaml)")
	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("penf-live", buildinfo.String())
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the live insight worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath())
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return "penf-live.yaml"
}

func runServe(cfg *config.Config) error {
	logger := logging.NewLogger(loggingConfig(cfg))
	logger.Info("starting penf-live", logging.F("version", buildinfo.String()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr(), err)
	}
	defer redisClient.Close()

	pool, err := connectDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close(pool)

	embedder := embedding.NewOpenAIClient(embedding.OpenAIConfig{
		APIKey:         cfg.OpenAI.APIKey,
		Model:          cfg.OpenAI.EmbeddingModel,
		RequestTimeout: cfg.OpenAI.RequestTimeout,
	})
	provider := ai.NewOpenAIProvider(ai.OpenAIConfig{
		APIKey:         cfg.OpenAI.APIKey,
		Model:          cfg.OpenAI.ChatModel,
		MaxTokens:      cfg.OpenAI.MaxTokens,
		Temperature:    cfg.OpenAI.Temperature,
		RequestTimeout: cfg.OpenAI.RequestTimeout,
	})

	var searcher search.Searcher = search.NopSearcher{}
	var insights store.InsightStore = store.NopStore{}
	if pool != nil {
		searcher = search.NewCachedSearcher(search.NewPostgresSearcher(pool, embedder), cfg.Pipeline.SearchCacheTTL, logger)
		insights = store.NewPostgresStore(pool)
	} else {
		logger.Warn("no database configured; insights are delivered live but not persisted")
	}

	metrics := observability.DefaultPipelineMetrics()
	if pool != nil {
		if _, err := db.RegisterPoolStatsCollector(pool, prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register pool metrics: %w", err)
		}
	}

	// The bridge and the registry reference each other: received payloads
	// go to local connections, and connection count drives subscriptions.
	var registry *delivery.Registry
	bridge := delivery.NewBridge(delivery.NewRedisBroker(redisClient), func(sessionID string, payload []byte) {
		registry.BroadcastToSession(sessionID, payload)
	}, logger)
	defer bridge.Close()
	registry = delivery.NewRegistry(bridge, logger)

	pipe := pipeline.New(optionsFromConfig(cfg), pipeline.Deps{
		Provider: provider,
		Embedder: embedder,
		Searcher: searcher,
		Store:    insights,
		Bridge:   bridge,
		Registry: registry,
		Metrics:  metrics,
		Tracer:   observability.NewTracer(),
		Logger:   logger,
	})
	defer pipe.Close()
	go pipe.Run(ctx)

	srv := server.New(server.Config{
		ListenAddress:   cfg.Server.ListenAddress,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, pipe, registry, metrics, pool, logger)

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// loggingConfig maps the config file's logging section onto the logger
// settings.
func loggingConfig(cfg *config.Config) *logging.Config {
	return &logging.Config{
		Level:       logging.Level(cfg.Logging.Level),
		JSONFormat:  cfg.Logging.JSONFormat,
		ServiceName: server.ServiceName,
		Environment: cfg.Logging.Environment,
	}
}

// connectDatabase opens the insight projection pool and applies pending
// migrations. An empty DSN means the worker runs without persistence.
func connectDatabase(ctx context.Context, cfg *config.Config, logger logging.Logger) (*pgxpool.Pool, error) {
	if cfg.Postgres.DSN == "" {
		return nil, nil
	}

	pool, err := db.ConnectWithRetry(ctx, db.DefaultConfig(cfg.Postgres.DSN), 5, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	result, err := db.RunMigrations(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if len(result.Applied) > 0 {
		logger.Info("applied migrations",
			logging.F("count", len(result.Applied)),
			logging.F("versions", result.Applied))
	}
	return pool, nil
}

// optionsFromConfig maps the flat tunables in the config file onto the
// per-component pipeline options.
func optionsFromConfig(cfg *config.Config) pipeline.Options {
	opts := pipeline.DefaultOptions()

	opts.Validator = validator.Config{
		MinWords:           cfg.Pipeline.ValidatorMinWords,
		MinMeaningfulRatio: cfg.Pipeline.ValidatorMinRatio,
	}
	opts.Dedup = dedup.Config{
		Threshold:  cfg.Pipeline.DuplicateThreshold,
		WindowSize: cfg.Pipeline.DuplicateWindowSize,
		MaxAge:     cfg.Pipeline.DuplicateMaxAge,
	}
	opts.Extraction = extraction.Config{
		MinConfidence: cfg.Pipeline.ExtractionMinScore,
		MaxTokens:     cfg.OpenAI.MaxTokens,
		Temperature:   cfg.OpenAI.Temperature,
	}
	opts.Answers = answers.DefaultConfig()
	opts.Answers.AcceptanceThreshold = cfg.Pipeline.AnswerAcceptThreshold
	opts.Answers.MonitorWindow = cfg.Pipeline.MonitorWindow
	opts.Conflicts = conflicts.DefaultConfig()
	opts.Conflicts.SimilarityThreshold = cfg.Pipeline.ConflictSimilarity
	opts.Conflicts.MinConfidence = cfg.Pipeline.ConflictMinConfidence
	opts.Repetition = repetition.DefaultConfig()
	opts.Repetition.SimilarityThreshold = cfg.Pipeline.RepetitionSimilarity
	opts.Repetition.MinConfidence = cfg.Pipeline.RepetitionMinConfidence
	opts.Repetition.MinOccurrences = cfg.Pipeline.RepetitionMinOccurrence
	opts.Repetition.Window = cfg.Pipeline.RepetitionWindow
	opts.Segments = segments.Config{
		Interval:         cfg.Pipeline.SegmentInterval,
		SilenceThreshold: cfg.Pipeline.SilenceThreshold,
		CooldownBucket:   cfg.Pipeline.SegmentCooldown,
	}
	opts.Session = session.Config{
		ContextWindow:  cfg.Pipeline.ContextWindowSize,
		IntakeCapacity: cfg.Pipeline.IntakeQueueSize,
	}
	return opts
}
