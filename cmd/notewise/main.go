package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/notewise/notewise/internal/ai"
	"github.com/notewise/notewise/internal/chunker"
	"github.com/notewise/notewise/internal/config"
	"github.com/notewise/notewise/internal/db"
	"github.com/notewise/notewise/internal/embedcache"
	"github.com/notewise/notewise/internal/filestore"
	"github.com/notewise/notewise/internal/handler"
	"github.com/notewise/notewise/internal/job"
	"github.com/notewise/notewise/internal/middleware"
	"github.com/notewise/notewise/internal/model"
	"github.com/notewise/notewise/internal/pkg/jwt"
	"github.com/notewise/notewise/internal/repo"
	"github.com/notewise/notewise/internal/schedule"
	"github.com/notewise/notewise/internal/service"
	"github.com/notewise/notewise/internal/vectorindex"
)

type app struct {
	cfg        *config.Config
	units      *repo.DocumentUnitRepo
	chunks     *repo.ChunkRepo
	vectorizer *service.Vectorizer
	pipeline   *service.Pipeline
}

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "notewise",
		Short: "notewise question answering backend",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the notewise server",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := setup(configPath)
			if err != nil {
				return err
			}
			return runServer(application)
		},
	}

	var vectorizeKind string
	var vectorizeID string
	vectorizeCmd := &cobra.Command{
		Use:   "vectorize",
		Short: "vectorize one unit and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := setup(configPath)
			if err != nil {
				return err
			}
			kind := model.UnitKind(vectorizeKind)
			if kind != model.UnitKindNote && kind != model.UnitKindLibraryItem {
				return fmt.Errorf("--kind must be note or library_item")
			}
			if vectorizeID == "" {
				return fmt.Errorf("--id is required")
			}
			return application.vectorizer.Vectorize(context.Background(), kind, vectorizeID)
		},
	}
	vectorizeCmd.Flags().StringVar(&vectorizeKind, "kind", string(model.UnitKindNote), "unit kind: note or library_item")
	vectorizeCmd.Flags().StringVar(&vectorizeID, "id", "", "unit id")

	var tokenUserID string
	var tokenTTLHours int
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "mint a bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if tokenUserID == "" {
				return fmt.Errorf("--user is required")
			}
			token, err := jwt.GenerateToken(tokenUserID, []byte(cfg.JWTSecret),
				time.Duration(tokenTTLHours)*time.Hour)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	tokenCmd.Flags().StringVar(&tokenUserID, "user", "", "user id to embed in the token")
	tokenCmd.Flags().IntVar(&tokenTTLHours, "ttl-hours", 24, "token lifetime in hours")

	rootCmd.AddCommand(runCmd, vectorizeCmd, tokenCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func setup(configPath string) (*app, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	ctx := context.Background()
	logutil.GetLogger(ctx).Info("config loaded", zap.String("config", configPath))

	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	index, err := vectorindex.NewClient(vectorindex.Config{
		URL:        cfg.VectorIndex.URL,
		APIKey:     cfg.VectorIndex.APIKey,
		Collection: cfg.VectorIndex.Collection,
		Timeout:    time.Duration(cfg.VectorIndex.TimeoutSeconds) * time.Second,
		BatchSize:  cfg.VectorIndex.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("init vector index: %w", err)
	}
	if err := index.EnsureCollection(ctx, cfg.VectorIndex.Dimension); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	providerArgs := cfg.AI.Data
	if providerArgs == nil {
		providerArgs = cfg.AI
	}
	provider, err := ai.NewProvider(cfg.AI.Provider, providerArgs)
	if err != nil {
		return nil, fmt.Errorf("init ai provider: %w", err)
	}
	generator := ai.NewGenerator(provider, cfg.AI.Model)

	embedArgs := cfg.AI.EmbedData
	if embedArgs == nil {
		embedArgs = providerArgs
	}
	embedProvider, err := ai.NewEmbedProvider(cfg.AI.EmbedProvider, embedArgs)
	if err != nil {
		return nil, fmt.Errorf("init embed provider: %w", err)
	}
	embedder := ai.NewEmbedder(embedProvider, cfg.AI.EmbedModel)
	embedder = embedcache.WrapDBCacheToEmbedder(embedder, repo.NewEmbeddingCacheRepo(conn))
	if cfg.AI.CacheSize > 0 && cfg.AI.CacheTTLHours > 0 {
		embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.AI.CacheSize,
			time.Duration(cfg.AI.CacheTTLHours)*time.Hour)
	}
	manager := ai.NewManager(generator, embedder, ai.ManagerConfig{
		Timeout:       cfg.AI.Timeout,
		MaxInputChars: cfg.AI.MaxInputChars,
	})

	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return nil, fmt.Errorf("init file store: %w", err)
	}
	splitter, err := chunker.New(cfg.Chunking.ChunkSize, cfg.Chunking.Overlap)
	if err != nil {
		return nil, err
	}

	units := repo.NewDocumentUnitRepo(conn)
	chunks := repo.NewChunkRepo(conn)
	vectorizer := service.NewVectorizer(units, chunks, index, manager, store, splitter)
	retriever := service.NewRetriever(units, index, manager)
	intents := service.NewIntentClassifier(manager)
	synth := service.NewSynthesizer(manager)
	pipeline := service.NewPipeline(units, retriever, intents, synth)

	return &app{
		cfg:        cfg,
		units:      units,
		chunks:     chunks,
		vectorizer: vectorizer,
		pipeline:   pipeline,
	}, nil
}

func runServer(application *app) error {
	cfg := application.cfg
	logutil.GetLogger(context.Background()).Info("starting server",
		zap.Int("port", cfg.Port),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.String("file_store", cfg.FileStore.Type),
	)

	deps := handler.RouterDeps{
		QA:              handler.NewQAHandler(application.pipeline),
		Vectors:         handler.NewVectorHandler(application.vectorizer, application.units, application.chunks),
		JWTSecret:       []byte(cfg.JWTSecret),
		AskRateInterval: time.Duration(cfg.AskRateLimitSeconds) * time.Second,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	drain := job.NewVectorizeDrainJob(application.units, application.vectorizer,
		cfg.Jobs.VectorizeDelaySeconds, cfg.Jobs.VectorizeBatch)
	if err := scheduler.AddJob(drain, cfg.Jobs.VectorizeCron); err != nil {
		return fmt.Errorf("schedule drain job: %w", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()
	logutil.GetLogger(context.Background()).Info("http server listening",
		zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
