package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/meridian-health/chartcore/pkg/chart"
	"github.com/meridian-health/chartcore/pkg/common/config"
	"github.com/meridian-health/chartcore/pkg/common/database"
	"github.com/meridian-health/chartcore/pkg/common/kafka"
	"github.com/meridian-health/chartcore/pkg/common/logger"
	"github.com/meridian-health/chartcore/pkg/report"
	"github.com/meridian-health/chartcore/pkg/storage"
)

func main() {
	logger.Init()
	cfg := config.Load()

	catalog, err := report.LoadCatalog(cfg.LensCatalogPath)
	if err != nil {
		logger.Log.WithError(err).Warn("falling back to default lens catalog")
	}

	opts := chart.WorkspaceOptions{
		AutosaveDelay: cfg.AutosaveDelay,
		PromptWindow:  cfg.HistoryPromptWindow,
		Generator:     report.NewClient(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModelName, catalog),
	}

	if cfg.PersistenceEnabled {
		db, err := database.GetPostgres()
		if err != nil {
			logger.Log.WithError(err).Fatal("Failed to connect to PostgreSQL")
		}
		repo := storage.NewRepository(db)
		if err := repo.AutoMigrate(); err != nil {
			logger.Log.WithError(err).Fatal("Failed to migrate patient schema")
		}
		opts.Repository = repo
	}

	if cfg.CacheEnabled {
		opts.Cache = storage.NewReportCache(database.GetRedis(), cfg.ReportCacheTTL)
	}

	var producer *kafka.Producer
	if cfg.AuditEnabled {
		producer = kafka.NewProducer("chart-audit")
		opts.Audit = producer
	}

	workspace := chart.NewWorkspace(opts)

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheck).Methods(http.MethodGet)
	api := router.PathPrefix("/api/v1").Subrouter()
	chart.NewHTTPHandler(workspace, cfg.MaxRequestBody).Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Chart Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Chart Service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := workspace.Close(ctx); err != nil {
		logger.Log.WithError(err).Error("Failed to persist workspace on shutdown")
	}
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}
	if producer != nil {
		_ = producer.Close()
	}
	if cfg.PersistenceEnabled {
		_ = database.ClosePostgres()
	}
	if cfg.CacheEnabled {
		_ = database.CloseRedis()
	}

	logger.Log.Info("Chart Service stopped")
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}
