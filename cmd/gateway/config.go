package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/autumn-voice/gateway/internal/env"
	"github.com/autumn-voice/gateway/internal/prompts"
)

type config struct {
	port            string
	openaiAPIKey    string
	openaiModel     string
	llmSystemPrompt string
	llmMaxTokens    int

	whisperServerURL string
	whisperBin       string
	whisperModelsDir string
	whisperModel     string
	whisperPort      int
	whisperThreads   int
	whisperLanguage  string
	whisperTemp      float64
	asrPoolSize      int
	asrTimeout       time.Duration

	weatherPoolSize    int
	maxConcurrentCalls int
	traceDBURL         string
}

func loadConfig() config {
	return config{
		port:            env.Str("GATEWAY_PORT", "8000"),
		openaiAPIKey:    os.Getenv("OPENAI_API_KEY"),
		openaiModel:     env.Str("OPENAI_MODEL", "gpt-4.1-nano"),
		llmSystemPrompt: prompts.ForSession(os.Getenv("LLM_SYSTEM_PROMPT")),
		llmMaxTokens:    env.Int("LLM_MAX_TOKENS", 300),

		whisperServerURL: env.Str("WHISPER_SERVER_URL", ""),
		whisperBin:       env.Str("WHISPER_BIN", filepath.Join(os.Getenv("HOME"), ".local/bin/whisper-server")),
		whisperModelsDir: env.Str("WHISPER_MODELS_DIR", filepath.Join(os.Getenv("HOME"), ".local/share/whisper")),
		whisperModel:     env.Str("WHISPER_MODEL", "ggml-base.en.bin"),
		whisperPort:      env.Int("WHISPER_PORT", 8178),
		whisperThreads:   env.Int("WHISPER_THREADS", 4),
		whisperLanguage:  env.Str("WHISPER_LANGUAGE", ""),
		whisperTemp:      env.Float("WHISPER_TEMPERATURE", 0),
		asrPoolSize:      env.Int("ASR_POOL_SIZE", 50),
		asrTimeout:       time.Duration(env.Int("ASR_TIMEOUT_SEC", 30)) * time.Second,

		weatherPoolSize:    env.Int("WEATHER_POOL_SIZE", 10),
		maxConcurrentCalls: env.Int("MAX_CONCURRENT_CALLS", 100),
		traceDBURL:         env.Str("TRACE_DB_URL", ""),
	}
}
