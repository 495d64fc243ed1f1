package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradeacademy.io/support-desk/internal/api"
	"tradeacademy.io/support-desk/internal/auth"
	"tradeacademy.io/support-desk/internal/config"
	"tradeacademy.io/support-desk/internal/core"
	"tradeacademy.io/support-desk/internal/limiter"
	"tradeacademy.io/support-desk/internal/logger"
	"tradeacademy.io/support-desk/internal/relay"
	"tradeacademy.io/support-desk/internal/store"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig

	logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ingest := flag.Bool("ingest", false, "Load the knowledge base file into the store and exit")
	tokenFor := flag.String("token", "", "Print a signed agent token for the given agent id and exit")
	flag.Parse()

	if *tokenFor != "" {
		token, err := auth.GenerateJWT(auth.Agent{ID: *tokenFor, Name: *tokenFor, Role: "agent"}, time.Duration(cfg.JWTTTLHours)*time.Hour)
		if err != nil {
			logger.Error("Failed to sign token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	ctx := context.Background()

	dbStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbStore.Close()

	knowledgeService := core.NewKnowledgeService(dbStore)
	if *ingest {
		n, err := knowledgeService.IngestFile(ctx, cfg.KnowledgeFile)
		if err != nil {
			logger.Error("Knowledge base ingestion failed", "file", cfg.KnowledgeFile, "error", err)
			os.Exit(1)
		}
		logger.Info("Knowledge base ingestion complete", "file", cfg.KnowledgeFile, "articles", n)
		return
	}

	hub := relay.NewHub()
	supportService := core.NewSupportService(dbStore, hub)

	// The chatbot answers from the knowledge base alone without an API key.
	var completer core.Completer
	if cfg.GeminiAPIKey != "" {
		llmService, err := core.NewLLMService(ctx, cfg.GeminiAPIKey)
		if err != nil {
			logger.Error("Failed to initialize LLM service", "error", err)
			os.Exit(1)
		}
		defer llmService.Close()
		completer = llmService
	}
	chatbot := core.NewChatbot(knowledgeService, dbStore, hub, completer)

	routerOpts := api.RouterOptions{
		CORSOrigins: cfg.CORSOrigins,
		Relay:       relay.NewHandler(hub, cfg.CORSOrigins),
		SignupLimit: cfg.SignupRateLimit,
	}
	if cfg.RedisURL != "" {
		rdb, err := limiter.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		routerOpts.Limiter = limiter.NewManager(rdb, limiter.StrategyByName(cfg.RateLimitAlgo))
		logger.Info("Rate limiting enabled", "strategy", cfg.RateLimitAlgo, "limit_per_minute", cfg.SignupRateLimit)
	}

	apiHandler := api.NewAPIHandler(supportService, knowledgeService, chatbot)
	router := api.NewRouter(apiHandler, routerOpts)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // chatbot replies may wait on the LLM
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Starting server", "addr", serverAddr, "mongo", cfg.UsesMongo())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Could not listen", "addr", serverAddr, "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	// Shutdown does not track hijacked websocket connections.
	hub.Close()

	logger.Info("Server exiting gracefully")
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.UsesMongo() {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return store.NewMongoStore(connectCtx, cfg.DatabaseURL, cfg.MongoDatabase)
	}
	return store.NewSQLiteStore(cfg.DatabaseURL)
}
