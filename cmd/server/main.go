package main

import (
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"revizo/internal/api"
	"revizo/internal/config"
	"revizo/internal/db"
	"revizo/internal/services"
	"revizo/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	conn, err := db.Open(cfg.Database)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer conn.Close()

	st := store.New(conn)
	pdfService := services.NewPDFService()
	aiService := services.NewAIService(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIEndpoint, logger)
	assembly := services.NewAssemblyService(st, pdfService, aiService, aiService, logger)

	server := api.NewServer(assembly, st, cfg.JWTSecret, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // generation calls can run long
	}

	logger.Info("listening", zap.String("port", cfg.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
