package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/docsage-ai/docsage/internal/api/handlers"
	"github.com/docsage-ai/docsage/internal/config"
	"github.com/docsage-ai/docsage/internal/database"
	"github.com/docsage-ai/docsage/internal/domain"
	"github.com/docsage-ai/docsage/internal/gemini"
	"github.com/docsage-ai/docsage/internal/jobs"
	"github.com/docsage-ai/docsage/internal/openai"
	"github.com/docsage-ai/docsage/internal/repository"
	"github.com/docsage-ai/docsage/internal/server"
	"github.com/docsage-ai/docsage/internal/service"
	"github.com/docsage-ai/docsage/internal/storage"
	"github.com/docsage-ai/docsage/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the docsage API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasOpenAI() {
		return fmt.Errorf("%w: OPENAI_API_KEY is required for embeddings and chunk generation", domain.ErrEmbeddingUnavailable)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	conversationRepo := repository.NewConversationRepository(pool)
	remoteCacheRepo := repository.NewRemoteCacheRepository(pool)
	memoryRepo := repository.NewQAMemoryRepository(pool)
	configRepo := repository.NewAgentConfigRepository(pool)
	retrievalRepo := repository.NewRetrievalRepository(pool)

	openaiClient := openai.NewClient(cfg.OpenAIAPIKey)

	var s3Client *storage.S3Client
	if cfg.HasS3() {
		s3Client, err = storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
	}

	// Full-document mode needs both the Gemini credential and object
	// storage to read source documents from.
	var geminiClient *gemini.Client
	if cfg.HasGemini() && s3Client != nil {
		geminiClient, err = gemini.New(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return fmt.Errorf("failed to create Gemini client: %w", err)
		}
		log.Println("full-document mode enabled")
	} else {
		log.Println("full-document mode disabled: requests answer from retrieved passages")
	}

	store := service.NewConversationStore(conversationRepo)

	var fileCache *service.FileCacheManager
	if geminiClient != nil {
		fileCache = service.NewFileCacheManager(remoteCacheRepo, s3Client, geminiClient)
	}

	var linker service.SourceLinkerInterface
	if s3Client != nil {
		linker = s3Client
	}

	var fullDocStreamer service.FullDocStreamerInterface
	if geminiClient != nil {
		fullDocStreamer = geminiClient
	}

	answerSvc := service.NewAnswerService(service.AnswerServiceDeps{
		Embeddings: openaiClient,
		Configs:    configRepo,
		Memory:     service.NewMemoryMatcher(memoryRepo),
		Retrieval:  service.NewRetrievalService(retrievalRepo),
		FileCache:  fileCache,
		Streamer:   service.NewGenerationStreamer(openaiClient, fullDocStreamer),
		Sources:    service.NewSourceBuilder(linker),
		Store:      store,
	})

	summaryProcessor := jobs.NewSummaryWorker(conversationRepo, openaiClient,
		domain.DefaultAgentConfig().ChunkModel, cfg.SummaryMinMessages)
	summaryWorker := jobs.NewWorker(summaryProcessor, time.Duration(cfg.SummaryInterval)*time.Second)
	go summaryWorker.Start(ctx)
	log.Println("summary worker started")

	router := server.NewRouter(server.RouterConfig{
		AskHandler:          handlers.NewAskHandler(answerSvc),
		ConversationHandler: handlers.NewConversationHandler(store),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	summaryWorker.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

func runMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
