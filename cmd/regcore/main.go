package main

import (
	"context"
	"database/sql"
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

	"github.com/regwatch/regcore/internal/ai"
	"github.com/regwatch/regcore/internal/config"
	"github.com/regwatch/regcore/internal/db"
	"github.com/regwatch/regcore/internal/extract"
	"github.com/regwatch/regcore/internal/filestore"
	"github.com/regwatch/regcore/internal/handler"
	"github.com/regwatch/regcore/internal/job"
	"github.com/regwatch/regcore/internal/middleware"
	"github.com/regwatch/regcore/internal/repo"
	"github.com/regwatch/regcore/internal/schedule"
	"github.com/regwatch/regcore/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "regcore",
		Short: "regulatory document ingestion and search server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run regcore server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			conn, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := db.ApplyMigrations(conn); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, conn)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config, conn *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("file_store", cfg.FileStore.Type),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("embedding_model", cfg.Embedding.Model),
	)

	docRepo := repo.NewDocumentRepo(conn)
	auditRepo := repo.NewAuditRepo(conn)
	embeddingRepo := repo.NewEmbeddingRepo(conn)

	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}

	provider, err := ai.NewProvider(cfg.Embedding.Provider, cfg.Embedding.Data)
	if err != nil {
		return fmt.Errorf("init embedding provider: %w", err)
	}
	embedClient := ai.NewClient(
		provider,
		cfg.Embedding.Model,
		cfg.Embedding.Dimension,
		time.Duration(cfg.Embedding.TimeoutSeconds)*time.Second,
		cfg.Embedding.MaxInputChars,
	)
	// Query embeddings are cached; chunk embeddings go straight through.
	queryEmbedder := ai.WrapLRUCache(embedClient, 10000, 2*time.Hour)

	extractor := extract.NewExtractor(cfg.Extraction.ConfidenceFloor, cfg.Extraction.ExpectedPageRune)

	retryDelays := make([]time.Duration, 0, len(cfg.Retry.DelayMinutes))
	for _, minutes := range cfg.Retry.DelayMinutes {
		retryDelays = append(retryDelays, time.Duration(minutes)*time.Minute)
	}
	ingestService := service.NewIngestService(docRepo, auditRepo, embeddingRepo, embedClient, store, extractor, service.IngestOptions{
		MaxChunkTokens:   cfg.Embedding.MaxChunkTokens,
		ChunkConcurrency: cfg.Ingest.ChunkConcurrency,
		RetryDelays:      retryDelays,
		MaxAttempts:      cfg.Retry.MaxAttempts,
		ProcessorVersion: cfg.Ingest.ProcessorVersion,
	})
	searchService := service.NewSearchService(embeddingRepo, queryEmbedder)
	refreshService := service.NewRefreshService(docRepo, auditRepo, embeddingRepo, store, extractor, ingestService, 0)
	documentService := service.NewDocumentService(docRepo, auditRepo, embeddingRepo, store)

	deps := handler.RouterDeps{
		Documents: handler.NewDocumentHandler(ingestService, documentService, cfg.Ingest.MaxUploadBytes),
		Search:    handler.NewSearchHandler(searchService),
		Refresh:   handler.NewRefreshHandler(refreshService),
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(nil),
			middleware.RateLimit(cfg.Ingest.RateLimitPerMin, time.Minute),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewEmbeddingRetryJob(ingestService), cfg.Refresh.SweepSpec); err != nil {
		return fmt.Errorf("schedule retry sweep: %w", err)
	}
	if err := scheduler.AddJob(job.NewCorpusRefreshJob(refreshService, true), cfg.Refresh.CronSpec); err != nil {
		return fmt.Errorf("schedule corpus refresh: %w", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
