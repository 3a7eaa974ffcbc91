// Loom server: streams assistant responses to HTTP clients, runs local
// tools mid-stream, and appends consolidated records to the conversation
// log.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/loomworks/loom/pkg/api"
	"github.com/loomworks/loom/pkg/config"
	"github.com/loomworks/loom/pkg/history"
	"github.com/loomworks/loom/pkg/llm"
	"github.com/loomworks/loom/pkg/runner"
	"github.com/loomworks/loom/pkg/stream"
	"github.com/loomworks/loom/pkg/tools"
	"github.com/loomworks/loom/pkg/version"
)

func main() {
	envFile := flag.String("env-file", ".env", "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envFile, "error", err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting loom",
		"version", version.Full(),
		"http_port", cfg.HTTPPort,
		"model", cfg.Model,
		"web_search", cfg.WebSearch)

	ctx := context.Background()

	// 1. Conversation log (Redis).
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			slog.Error("Error closing redis client", "error", err)
		}
	}()
	store := history.NewRedisStore(redisClient)
	if err := store.Ping(ctx); err != nil {
		slog.Error("Failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to redis", "addr", cfg.RedisAddr)

	// 2. Tool registry.
	registry, err := tools.NewRegistry(tools.CurrentTime())
	if err != nil {
		slog.Error("Failed to build tool registry", "error", err)
		os.Exit(1)
	}

	// 3. OpenAI Responses streamer.
	var toolSpecs []llm.ToolSpec
	for _, t := range registry.List() {
		toolSpecs = append(toolSpecs, llm.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.ParametersSchema(),
		})
	}
	streamer, err := llm.NewOpenAIStreamer(llm.OpenAIOptions{
		Model:        cfg.Model,
		Instructions: cfg.Instructions,
		Tools:        toolSpecs,
		WebSearch:    cfg.WebSearch,
		BaseURL:      cfg.OpenAIBaseURL,
		APIKey:       cfg.OpenAIAPIKey,
	})
	if err != nil {
		slog.Error("Failed to initialize the response streamer", "error", err)
		os.Exit(1)
	}

	// 4. Turn runner.
	turnRunner := runner.New(streamer, registry, store, runner.Config{
		MergePolicy:   stream.MergePolicy{SynthesizeQueries: cfg.SynthesizeQueries},
		MaxToolRounds: cfg.MaxToolRounds,
	})

	// 5. HTTP server.
	gin.SetMode(gin.ReleaseMode)
	server := api.NewServer(turnRunner, store, cfg.QueueCapacity, cfg.TurnTimeout)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// 6. Graceful shutdown: stop accepting, let in-flight turns finish.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	slog.Info("Shutdown complete")
}
