package trace

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const maxIOLen = 500

type traceMsg struct {
	kind string // "round_create", "round_update", "span"
	// round fields
	roundID    string
	durationMs float64
	transcript string
	reply      string
	status     string
	// span fields
	span Span
}

// Tracer writes trace data asynchronously via a buffered channel so the
// pipeline never blocks on the database. All methods are nil-safe.
type Tracer struct {
	store     *Store
	sessionID string
	ch        chan traceMsg
	done      chan struct{}
}

// NewTracer creates a tracer bound to a session. Must call Close when done.
func NewTracer(store *Store, sessionID string) *Tracer {
	t := &Tracer{
		store:     store,
		sessionID: sessionID,
		ch:        make(chan traceMsg, 64),
		done:      make(chan struct{}),
	}
	go t.drain()
	return t
}

func (t *Tracer) drain() {
	defer close(t.done)
	for msg := range t.ch {
		t.handle(msg)
	}
}

func (t *Tracer) handle(m traceMsg) {
	var err error
	switch m.kind {
	case "round_create":
		err = t.store.CreateRound(m.roundID, t.sessionID)
	case "round_update":
		err = t.store.UpdateRound(m.roundID, m.durationMs, m.transcript, m.reply, m.status)
	case "span":
		err = t.store.CreateSpan(m.span)
	default:
		return
	}
	if err != nil {
		slog.Warn("trace write failed", "kind", m.kind, "error", err)
	}
}

// StartRound begins a new round and returns its ID.
func (t *Tracer) StartRound() string {
	if t == nil {
		return ""
	}
	id := uuid.NewString()
	t.ch <- traceMsg{kind: "round_create", roundID: id}
	return id
}

// EndRound finalizes a round.
func (t *Tracer) EndRound(roundID string, durationMs float64, transcript, reply, status string) {
	if t == nil {
		return
	}
	t.ch <- traceMsg{
		kind:       "round_update",
		roundID:    roundID,
		durationMs: durationMs,
		transcript: truncate(transcript, maxIOLen),
		reply:      truncate(reply, maxIOLen),
		status:     status,
	}
}

// RecordSpan records a completed stage span.
func (t *Tracer) RecordSpan(roundID, name string, startedAt time.Time, durationMs float64, input, output, status, errMsg string) {
	if t == nil {
		return
	}
	t.ch <- traceMsg{
		kind: "span",
		span: Span{
			ID:         uuid.NewString(),
			RoundID:    roundID,
			Name:       name,
			StartedAt:  startedAt,
			DurationMs: durationMs,
			Input:      truncate(input, maxIOLen),
			Output:     truncate(output, maxIOLen),
			Status:     status,
			Error:      errMsg,
		},
	}
}

// Close drains pending writes and shuts down the background goroutine.
func (t *Tracer) Close() {
	if t == nil {
		return
	}
	close(t.ch)
	<-t.done
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
