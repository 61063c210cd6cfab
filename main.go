package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"linkboard/auth"
	"linkboard/cache"
	"linkboard/config"
	"linkboard/handler"
	appLogger "linkboard/logger"
	"linkboard/middleware"
	"linkboard/realtime"
	redisClient "linkboard/redis"
	"linkboard/store"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

func main() {
	// Initialize logger
	appLogger.Initialize()

	// Load configuration
	cfg := config.MustLoadConfig()
	appLogger.SetLevel(cfg.Logging.Level)
	log.Info().Msg("Configuration loaded successfully")

	// Initialize Redis client
	rdb := redisClient.NewClient(cfg.Redis)

	// Initialize cache (if enabled)
	var linkCache *cache.LinkCache
	if cfg.Cache.Enabled {
		var err error
		linkCache, err = cache.New(cfg.Cache)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize cache")
		}
	} else {
		log.Info().Msg("Cache disabled in configuration")
	}

	// Persistence and the click-notification stream
	st := store.New(rdb, cfg.Analytics.EventsChannel)

	// Live click-count trackers, one per signed-in user
	hub := realtime.NewHub(rdb, st, cfg.Analytics.EventsChannel)

	// Session tokens
	jwtManager, err := auth.NewJWTManager(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLHours)*time.Hour)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize session tokens; set auth.jwt_secret")
	}

	// Create handlers with dependency injection
	linkHandler := handler.NewLinkHandler(rdb, st, linkCache, hub, cfg)
	userHandler := handler.NewUserHandler(st, jwtManager, cfg)

	// Set up router
	r := mux.NewRouter()

	// Apply global middleware
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	userAuth := middleware.NewUserAuth(jwtManager)

	r.Use(middleware.CORS)
	r.Use(middleware.RequestLogger)
	r.Use(rateLimiter.Limit)

	// Public routes
	r.HandleFunc("/health", linkHandler.HealthCheck).Methods("GET")
	r.HandleFunc("/cache/metrics", linkHandler.CacheMetrics).Methods("GET")
	r.HandleFunc("/qr/{slug}", linkHandler.GenerateQR).Methods("GET")
	r.HandleFunc("/api/auth/register", userHandler.Register).Methods("POST")
	r.HandleFunc("/api/auth/login", userHandler.Login).Methods("POST")

	// Authenticated dashboard API
	api := r.PathPrefix("/api").Subrouter()
	api.Use(userAuth.Protect)
	api.HandleFunc("/me", userHandler.Me).Methods("GET")
	api.HandleFunc("/links", linkHandler.ListLinks).Methods("GET")
	api.HandleFunc("/links", linkHandler.CreateLink).Methods("POST")
	api.HandleFunc("/links/refresh", linkHandler.RefreshLinks).Methods("POST")
	api.HandleFunc("/links/{id}", linkHandler.UpdateLink).Methods("PATCH")
	api.HandleFunc("/links/{id}", linkHandler.DeleteLink).Methods("DELETE")
	api.HandleFunc("/analytics", linkHandler.GetAnalytics).Methods("GET")
	api.HandleFunc("/clicks/{id}", linkHandler.DeleteClick).Methods("DELETE")

	// Redirect route (must be last to avoid conflicts)
	r.HandleFunc("/{slug}", linkHandler.Redirect).Methods("GET")

	// Configure HTTP server
	serverAddress := fmt.Sprintf("%s:%s", cfg.WebServer.IP, cfg.WebServer.Port)
	server := &http.Server{
		Addr:         serverAddress,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.WebServer.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WebServer.WriteTimeout) * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("address", serverAddress).
			Str("scheme", cfg.WebServer.Scheme).
			Msg("Starting server")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.WebServer.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Release live subscriptions
	hub.Close()

	// Close cache
	if linkCache != nil {
		linkCache.Close()
	}

	// Close Redis connection
	if err := rdb.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close Redis connection")
	}

	log.Info().Msg("Server stopped gracefully")
}
