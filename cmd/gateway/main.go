package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/autumn-voice/gateway/internal/asr"
	"github.com/autumn-voice/gateway/internal/chat"
	"github.com/autumn-voice/gateway/internal/tools"
	"github.com/autumn-voice/gateway/internal/trace"
	"github.com/autumn-voice/gateway/internal/whisperproc"
	"github.com/autumn-voice/gateway/internal/ws"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := loadConfig()

	if cfg.openaiAPIKey == "" {
		slog.Error("OPENAI_API_KEY is required")
		os.Exit(1)
	}

	// ASR backend: either an externally operated whisper-server or a
	// managed child process when no URL is configured.
	whisperURL := cfg.whisperServerURL
	var whisperSrv *whisperproc.Server
	if whisperURL == "" {
		whisperSrv = whisperproc.New(whisperproc.Config{
			Bin:       cfg.whisperBin,
			ModelsDir: cfg.whisperModelsDir,
			Model:     cfg.whisperModel,
			Port:      cfg.whisperPort,
			Threads:   cfg.whisperThreads,
		})
		if err := whisperSrv.Start(); err != nil {
			slog.Error("whisper-server startup failed", "error", err)
			os.Exit(1)
		}
		whisperURL = whisperSrv.URL()
	}

	asrClient := asr.NewClient(asr.Config{
		URL:         whisperURL,
		Language:    cfg.whisperLanguage,
		Temperature: cfg.whisperTemp,
		PoolSize:    cfg.asrPoolSize,
		Timeout:     cfg.asrTimeout,
	})
	warmupCtx, warmupCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := asrClient.Warmup(warmupCtx); err != nil {
		slog.Warn("asr warmup", "error", err)
	}
	warmupCancel()

	registry := tools.NewRegistry()
	registry.Register(tools.NewWeatherTool(tools.WeatherConfig{PoolSize: cfg.weatherPoolSize}))

	model := chat.NewOpenAIClient(cfg.openaiAPIKey, cfg.openaiModel, cfg.llmMaxTokens)
	orch := chat.NewOrchestrator(model, registry, cfg.llmSystemPrompt)

	var traceStore *trace.Store
	if cfg.traceDBURL != "" {
		store, err := trace.Open(cfg.traceDBURL)
		if err != nil {
			slog.Warn("trace store disabled", "error", err)
		} else {
			traceStore = store
			defer traceStore.Close()
			slog.Info("tracing enabled")
		}
	}

	manager := ws.NewManager()
	wsHandler := ws.NewHandler(manager, ws.HandlerConfig{
		ASR:           asrClient,
		Orchestrator:  orch,
		TraceStore:    traceStore,
		MaxConcurrent: cfg.maxConcurrentCalls,
	})

	mux := http.NewServeMux()
	registerRoutes(mux, &deps{
		asr:        asrClient,
		orch:       orch,
		manager:    manager,
		wsHandler:  wsHandler,
		traceStore: traceStore,
	})

	addr := ":" + cfg.port
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if whisperSrv != nil {
			whisperSrv.Stop()
		}
		srv.Shutdown(ctx)
	}()

	slog.Info("gateway starting", "addr", addr, "model", cfg.openaiModel, "max_concurrent", cfg.maxConcurrentCalls)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("gateway stopped")
}
