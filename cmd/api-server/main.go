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
	"github.com/healthharbor/prevcare/pkg/alerts"
	"github.com/healthharbor/prevcare/pkg/common/auth"
	"github.com/healthharbor/prevcare/pkg/common/config"
	"github.com/healthharbor/prevcare/pkg/common/database"
	"github.com/healthharbor/prevcare/pkg/common/kafka"
	"github.com/healthharbor/prevcare/pkg/common/logger"
	"github.com/healthharbor/prevcare/pkg/common/middleware"
	"github.com/healthharbor/prevcare/pkg/ingest"
	"github.com/healthharbor/prevcare/pkg/measure"
	"github.com/healthharbor/prevcare/pkg/observability/metrics"
	"github.com/healthharbor/prevcare/pkg/store"
)

func main() {
	logger.Init()
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.Close(db)

	pg := store.NewPostgres(db)
	if err := pg.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate tables")
	}

	auditRepo := ingest.NewAuditRepository(db)
	if err := auditRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate audit table")
	}

	catalog, err := measure.Load(cfg.CatalogPath)
	if err != nil {
		logger.Log.WithError(err).Warn("failed to load measure catalog, using defaults")
	}

	engine := alerts.NewEngine(catalog, nil)

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.AlertTransitionsTopic)
	defer producer.Close()

	var dlqProducer *kafka.Producer
	if cfg.DLQTopic != "" {
		dlqProducer = kafka.NewProducer(cfg.KafkaBrokers, cfg.DLQTopic)
		defer dlqProducer.Close()
	}

	svc := ingest.NewService(pg, engine, auditRepo, producer, dlqProducer)
	queries := alerts.NewQueryService(db)

	ingestHandler := ingest.NewHTTPHandler(svc, auditRepo, cfg.MaxRequestBody)
	alertsHandler := alerts.NewHTTPHandler(queries)

	redisClient := database.NewRedis(cfg)
	defer redisClient.Close()

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"service":"prevcare-monitor"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/db/ping", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Ping(r.Context(), db); err != nil {
			logger.Log.WithError(err).Error("db ping failed")
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":1}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	if cfg.OIDCIssuer != "" {
		oidcAuth, err := auth.NewOIDCAuthenticator(cfg.OIDCIssuer, cfg.OIDCClientID, cfg.OIDCClientSecret)
		if err != nil {
			logger.Log.WithError(err).Fatal("invalid OIDC configuration")
		}
		api.Use(middleware.Authenticate(oidcAuth))
	}
	ingestHandler.Register(api)
	alertsHandler.Register(api)

	handler := middleware.Recovery(
		middleware.Logging(
			middleware.CORS(
				middleware.RateLimit(redisClient, cfg.RateLimitRPS, cfg.RateLimitBurst)(
					middleware.BodyLimit(cfg.MaxRequestBody)(router),
				),
			),
		),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Preventive Care API started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Preventive Care API...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Preventive Care API stopped")
}
