package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/autumn-voice/gateway/internal/audio"
	"github.com/autumn-voice/gateway/internal/chat"
	"github.com/autumn-voice/gateway/internal/pipeline"
	"github.com/autumn-voice/gateway/internal/trace"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandlerConfig holds the shared backend clients for all sessions.
type HandlerConfig struct {
	ASR           pipeline.Transcriber
	Orchestrator  *chat.Orchestrator
	TraceStore    *trace.Store
	MaxConcurrent int
}

// Handler accepts websocket connections and runs one session per connection
// with admission control.
type Handler struct {
	cfg     HandlerConfig
	manager *Manager
	sem     chan struct{}
}

// NewHandler creates a websocket handler registering sessions with manager.
func NewHandler(manager *Manager, cfg HandlerConfig) *Handler {
	maxConc := cfg.MaxConcurrent
	if maxConc <= 0 {
		maxConc = 100
	}
	return &Handler{
		cfg:     cfg,
		manager: manager,
		sem:     make(chan struct{}, maxConc),
	}
}

// frameMetadata is an optional first text frame describing the audio stream.
// Absent metadata means containerized blobs (decoded via ffmpeg).
type frameMetadata struct {
	Codec      string `json:"codec"`
	SampleRate int    `json:"sample_rate"`
}

// ServeHTTP upgrades the connection and runs the session until disconnect.
// Returns 503 at capacity.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.runSession(conn)
}

func (h *Handler) runSession(conn *websocket.Conn) {
	// Cancelled on disconnect so in-flight decode subprocesses and backend
	// calls for this session are abandoned instead of leaking.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var tracer *trace.Tracer
	sessionID := uuid.NewString()
	if h.cfg.TraceStore != nil {
		if err := h.cfg.TraceStore.CreateSession(sessionID, "websocket"); err != nil {
			slog.Warn("trace session create", "error", err)
		} else {
			tracer = trace.NewTracer(h.cfg.TraceStore, sessionID)
			defer func() {
				tracer.Close()
				h.cfg.TraceStore.EndSession(sessionID)
			}()
		}
	}

	sess := &Session{
		ID:   sessionID,
		Pipe: pipeline.New(pipeline.Config{ASR: h.cfg.ASR, Orchestrator: h.cfg.Orchestrator, Tracer: tracer}),
		conn: conn,
	}
	h.manager.add(sess)
	defer h.manager.remove(sess)

	h.readLoop(ctx, sess)
}

// readLoop processes inbound frames strictly in arrival order. A frame that
// lands while an earlier one is still processing waits on the socket rather
// than being dropped. Other connections run in their own handler goroutines.
func (h *Handler) readLoop(ctx context.Context, sess *Session) {
	codec := audio.CodecAuto
	sampleRate := audio.TargetRate

	for {
		msgType, data, err := sess.conn.ReadMessage()
		if err != nil {
			slog.Info("connection closed", "session_id", sess.ID, "error", err)
			return
		}

		switch msgType {
		case websocket.TextMessage:
			var meta frameMetadata
			if err = json.Unmarshal(data, &meta); err != nil {
				slog.Warn("bad metadata frame", "session_id", sess.ID, "error", err)
				continue
			}
			if meta.Codec != "" {
				codec = audio.Codec(meta.Codec)
			}
			if meta.SampleRate > 0 {
				sampleRate = meta.SampleRate
			}
			slog.Info("stream metadata", "session_id", sess.ID, "codec", codec, "sample_rate", sampleRate)

		case websocket.BinaryMessage:
			if err = sess.Pipe.ProcessFrame(ctx, data, codec, sampleRate, sess.Send); err != nil {
				slog.Error("process frame", "session_id", sess.ID, "error", err)
				sess.Send(pipeline.NewError(err.Error()))
			}
		}
	}
}
