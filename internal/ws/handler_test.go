package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autumn-voice/gateway/internal/asr"
	"github.com/autumn-voice/gateway/internal/chat"
	"github.com/autumn-voice/gateway/internal/tools"
)

// fakeASR labels each utterance by its sample count so tests can tell frames
// apart without a real engine.
type fakeASR struct{}

func (fakeASR) Transcribe(ctx context.Context, samples []float32) (*asr.Result, error) {
	return &asr.Result{Text: fmt.Sprintf("utterance-%d", len(samples))}, nil
}

// echoModel answers "echo: <last user text>". When blockOn matches the
// prompt, the reply waits on the gate channel until the test releases it.
type echoModel struct {
	blockOn string
	gate    chan struct{}
}

func (m *echoModel) Complete(ctx context.Context, turns []chat.Turn, schemas []tools.Tool, offerTools bool) (*chat.Reply, error) {
	var prompt string
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == chat.RoleUser && turns[i].Content != nil {
			prompt = *turns[i].Content
			break
		}
	}
	if m.gate != nil && prompt == m.blockOn {
		<-m.gate
	}
	text := "echo: " + prompt
	return &chat.Reply{Text: &text}, nil
}

func newTestHandler(model chat.ModelClient, maxConcurrent int) (*Handler, *Manager) {
	manager := NewManager()
	orch := chat.NewOrchestrator(model, tools.NewRegistry(), "test")
	h := NewHandler(manager, HandlerConfig{
		ASR:           fakeASR{},
		Orchestrator:  orch,
		MaxConcurrent: maxConcurrent,
	})
	return h, manager
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/audio"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wireMsg struct {
	Type    string  `json:"type"`
	Message string  `json:"message"`
	Text    *string `json:"text"`
	Data    *string `json:"data"`
}

func readMsg(t *testing.T, conn *websocket.Conn) wireMsg {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg wireMsg
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

// readRound consumes one frame's message sequence and returns (transcript, response).
func readRound(t *testing.T, conn *websocket.Conn) (string, *string) {
	t.Helper()
	var transcript string
	for {
		msg := readMsg(t, conn)
		switch msg.Type {
		case "status":
			continue
		case "transcript":
			require.NotNil(t, msg.Text)
			transcript = *msg.Text
		case "response":
			return transcript, msg.Data
		case "error":
			t.Fatalf("unexpected error message: %s", msg.Message)
		}
	}
}

func TestHandlerStreamRound(t *testing.T) {
	h, manager := newTestHandler(&echoModel{}, 10)
	mux := http.NewServeMux()
	mux.Handle("/ws/audio", h)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dial(t, srv)

	meta, _ := json.Marshal(map[string]any{"codec": "pcm", "sample_rate": 16000})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, meta))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, make([]byte, 320)))

	msg := readMsg(t, conn)
	assert.Equal(t, "status", msg.Type)
	assert.Equal(t, "transcribing", msg.Message)

	msg = readMsg(t, conn)
	require.Equal(t, "transcript", msg.Type)
	assert.Equal(t, "utterance-160", *msg.Text)

	msg = readMsg(t, conn)
	assert.Equal(t, "status", msg.Type)
	assert.Equal(t, "thinking", msg.Message)

	msg = readMsg(t, conn)
	require.Equal(t, "response", msg.Type)
	require.NotNil(t, msg.Data)
	assert.Equal(t, "echo: utterance-160", *msg.Data)

	assert.Equal(t, 1, manager.Count())
	conn.Close()

	require.Eventually(t, func() bool { return manager.Count() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestHandlerFrameOrdering(t *testing.T) {
	h, _ := newTestHandler(&echoModel{}, 10)
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	meta, _ := json.Marshal(map[string]any{"codec": "pcm", "sample_rate": 16000})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, meta))

	// Three frames of distinct sizes land back to back; their rounds must
	// complete in arrival order.
	for _, n := range []int{100, 200, 300} {
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, make([]byte, n*2)))
	}

	for _, n := range []int{100, 200, 300} {
		transcript, response := readRound(t, conn)
		assert.Equal(t, fmt.Sprintf("utterance-%d", n), transcript)
		require.NotNil(t, response)
	}
}

func TestHandlerConnectionsRunConcurrently(t *testing.T) {
	gate := make(chan struct{})
	h, _ := newTestHandler(&echoModel{blockOn: "utterance-1234", gate: gate}, 10)
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	slow, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer slow.Close()
	fast, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer fast.Close()

	meta, _ := json.Marshal(map[string]any{"codec": "pcm", "sample_rate": 16000})
	require.NoError(t, slow.WriteMessage(websocket.TextMessage, meta))
	require.NoError(t, fast.WriteMessage(websocket.TextMessage, meta))

	// The 1234-sample frame blocks inside the model until the gate opens.
	// The other connection must still complete its round in the meantime.
	require.NoError(t, slow.WriteMessage(websocket.BinaryMessage, make([]byte, 2*1234)))
	require.NoError(t, fast.WriteMessage(websocket.BinaryMessage, make([]byte, 2*100)))

	transcript, response := readRound(t, fast)
	assert.Equal(t, "utterance-100", transcript)
	require.NotNil(t, response)

	close(gate)
	transcript, response = readRound(t, slow)
	assert.Equal(t, "utterance-1234", transcript)
	require.NotNil(t, response)
}

func TestHandlerAtCapacity(t *testing.T) {
	h, _ := newTestHandler(&echoModel{}, 1)
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHandlerBadMetadataIgnored(t *testing.T) {
	h, _ := newTestHandler(&echoModel{}, 10)
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	meta, _ := json.Marshal(map[string]any{"codec": "pcm", "sample_rate": 16000})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, meta))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, make([]byte, 320)))

	transcript, _ := readRound(t, conn)
	assert.Equal(t, "utterance-160", transcript)
}
