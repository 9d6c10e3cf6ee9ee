package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"filevault/internal/api"
	"filevault/internal/config"
	"filevault/internal/database"
	"filevault/internal/files"
	"filevault/internal/storage"
	"filevault/internal/websocket"

	_ "filevault/docs"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title           FileVault API
// @version         1.0
// @description     Multi-tenant file and folder management service with sharing and blob storage.
// @BasePath        /api
// @securityDefinitions.apikey  BearerAuth
// @in              header
// @name            Authorization
func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("PRETTY_LOGS") != "" {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt secret is not configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DB.Source)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create database pool")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("database is unreachable")
	}

	store := database.NewStore(pool)

	var blobs files.BlobStore
	var localBlobs *storage.LocalStore

	switch cfg.Storage.Backend {
	case "s3":
		blobs, err = storage.NewS3Store(ctx, storage.S3Config{
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			KeyPrefix: cfg.Storage.KeyPrefix,
			URLExpiry: cfg.Storage.URLExpiry,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize S3 storage")
		}
	case "local", "":
		localBlobs, err = storage.NewLocalStore(cfg.Storage.Path, cfg.AppHost, cfg.JWT.Secret, cfg.Storage.URLExpiry)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize local storage")
		}
		blobs = localBlobs
	default:
		log.Fatal().Str("backend", cfg.Storage.Backend).Msg("unknown storage backend")
	}

	wsHub := websocket.NewHub(log)
	go wsHub.Run()

	svc, err := files.NewService(store, store, blobs, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize file service")
	}

	server := api.NewServer(cfg, store, svc, blobs, wsHub, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(api.MetricsMiddleware)

	r.Mount("/api", server.Routes())
	r.Get("/health", server.HealthCheckHandler)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	r.Get("/ws", server.ServeWsHandler)

	if localBlobs != nil {
		r.Get("/blobs/*", localBlobs.ServeHTTP)
	}

	log.Info().Str("listen", cfg.Listen).Str("storage", cfg.Storage.Backend).Msg("server starting")
	if err := http.ListenAndServe(cfg.Listen, r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
