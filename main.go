package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/zlnvch/letterbox/api"
	"github.com/zlnvch/letterbox/blob/postgres"
	"github.com/zlnvch/letterbox/cache/redis"
	"github.com/zlnvch/letterbox/config"
	"github.com/zlnvch/letterbox/logging"
	"github.com/zlnvch/letterbox/mq/sqsmq"
	"github.com/zlnvch/letterbox/store/dynamo"
	"golang.org/x/oauth2"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		logging.Log.Fatalf("Failed to load config: %v", err)
	}
	logging.Setup(cfg.DevMode)

	if len(cfg.JWTSecret) == 0 {
		logging.Log.Fatal("JWT_SECRET is required")
	}

	letterStore, err := dynamo.NewDynamoLetterStore(ctx, cfg.DevMode, cfg.DynamoDBEndpoint, cfg.DynamoDBTable)
	if err != nil {
		logging.Log.Fatalf("Failed to create dynamodb store: %v", err)
	}

	jobsQueue, err := sqsmq.NewSQSMessageQueue(ctx, cfg.DevMode, cfg.SQSEndpoint, cfg.JobsQueue)
	if err != nil {
		logging.Log.Fatalf("Failed to create SQS MQ: %v", err)
	}

	letterCache, err := redis.NewRedisLetterCache(ctx, cfg.DevMode, cfg.RedisEndpoint)
	if err != nil {
		logging.Log.Fatalf("Failed to create redis cache: %v", err)
	}

	blobs, err := postgres.NewPostgresBlobStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logging.Log.Fatalf("Failed to create postgres blob store: %v", err)
	}
	if err := blobs.Migrate(ctx); err != nil {
		logging.Log.Fatalf("Failed to migrate blob store: %v", err)
	}

	oauthConfigs := make(map[string]*oauth2.Config)
	for provider, creds := range cfg.OAuthProviders {
		oauthConfigs[provider] = &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  cfg.OAuthRedirectURL,
		}
	}

	shutdownCtx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	letterboxApi, err := api.NewLetterboxAPI(letterStore, jobsQueue, letterCache, blobs, oauthConfigs, cfg.JWTSecret, cfg.SweepInterval, shutdownCtx)
	if err != nil {
		logging.Log.Fatalf("Failed to create letterbox api: %v", err)
	}

	router := mux.NewRouter()
	letterboxApi.RegisterRoutes(router, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              ":" + cfg.HostPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logging.Log.Infof("Starting server on host port: %s", cfg.HostPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Log.Fatalf("Server failed: %v", err)
		}
	}()

	<-shutdownCtx.Done()
	logging.Log.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logging.Log.WithError(err).Error("Server shutdown failed")
	}
	if err := blobs.Close(); err != nil {
		logging.Log.WithError(err).Warn("Failed to close blob store")
	}
}
