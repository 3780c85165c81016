package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autumn-voice/gateway/internal/asr"
	"github.com/autumn-voice/gateway/internal/audio"
	"github.com/autumn-voice/gateway/internal/chat"
	"github.com/autumn-voice/gateway/internal/trace"
	"github.com/autumn-voice/gateway/internal/ws"
)

const (
	// maxUploadBytes bounds the sync endpoint's request body.
	maxUploadBytes = 32 << 20

	// defaultTraceSessionLimit is how many trace sessions are returned
	// when the caller omits the ?limit= query parameter.
	defaultTraceSessionLimit = 20
)

type deps struct {
	asr        *asr.Client
	orch       *chat.Orchestrator
	manager    *ws.Manager
	wsHandler  http.Handler
	traceStore *trace.Store

	// One conversation shared by all sync callers, matching the
	// process-global history of the HTTP flow. Serialized because
	// Conversation assumes a single writer.
	syncMu   sync.Mutex
	syncConv *chat.Conversation
}

// registerRoutes wires all HTTP endpoints to the shared mux.
func registerRoutes(mux *http.ServeMux, d *deps) {
	d.syncConv = chat.NewConversation()

	mux.Handle("/ws/audio", d.wsHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("POST /audio", d.handleAudio)
	mux.HandleFunc("GET /api/sessions", d.handleSessions)
	registerTraceRoutes(mux, d.traceStore)
}

func (d *deps) handleSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"active": d.manager.Count()})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleAudio is the synchronous one-shot path: upload a clip, get the
// assistant's answer in the response body. Uses strict transcription, so
// silent or empty audio is a client error rather than a null reply.
func (d *deps) handleAudio(w http.ResponseWriter, r *http.Request) {
	raw, err := readAudioUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	samples, err := audio.Normalize(r.Context(), raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := d.asr.TranscribeStrict(r.Context(), samples)
	if err != nil {
		// Silent audio is the caller's problem; engine failures are ours.
		status := http.StatusInternalServerError
		if errors.Is(err, asr.ErrNoSpeech) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	slog.Info("sync transcript", "text", result.Text)

	d.syncMu.Lock()
	defer d.syncMu.Unlock()

	reply, err := d.orch.Respond(r.Context(), d.syncConv, result.Text, uuid.NewString(), nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "success",
		"response": reply,
	})
}

// readAudioUpload accepts either a multipart form with an "audio" file field
// or a raw body of audio bytes.
func readAudioUpload(r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxUploadBytes)

	if file, _, err := r.FormFile("audio"); err == nil {
		defer file.Close()
		return io.ReadAll(file)
	}
	return io.ReadAll(r.Body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"status": "error", "detail": detail})
}

func registerTraceRoutes(mux *http.ServeMux, store *trace.Store) {
	mux.HandleFunc("GET /api/traces/sessions", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "tracing disabled", http.StatusNotFound)
			return
		}
		limit := queryInt(r, "limit", defaultTraceSessionLimit)
		offset := queryInt(r, "offset", 0)
		sessions, total, err := store.ListSessions(limit, offset)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"sessions": sessions, "total": total})
	})

	mux.HandleFunc("GET /api/traces/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "tracing disabled", http.StatusNotFound)
			return
		}
		sess, rounds, err := store.GetSession(r.PathValue("id"))
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"session": sess, "rounds": rounds})
	})

	mux.HandleFunc("GET /api/traces/sessions/{id}/rounds/{roundId}", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "tracing disabled", http.StatusNotFound)
			return
		}
		round, spans, err := store.GetRound(r.PathValue("id"), r.PathValue("roundId"))
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"round": round, "spans": spans})
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
