package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/autumn-voice/gateway/internal/metrics"
	"github.com/autumn-voice/gateway/internal/tools"
)

// SpanRecorder receives per-stage spans for a round. *trace.Tracer satisfies
// it; the orchestrator is shared across sessions while tracers are
// per-session, so the recorder travels with each Respond call.
type SpanRecorder interface {
	RecordSpan(roundID, name string, startedAt time.Time, durationMs float64, input, output, status, errMsg string)
}

// Orchestrator drives the ask-model, maybe-call-tools, ask-again protocol for
// one user utterance at a time. It owns all conversation mutation during a
// round.
type Orchestrator struct {
	model        ModelClient
	registry     *tools.Registry
	systemPrompt string
}

// NewOrchestrator creates an orchestrator over the given model and registry.
func NewOrchestrator(model ModelClient, registry *tools.Registry, systemPrompt string) *Orchestrator {
	return &Orchestrator{model: model, registry: registry, systemPrompt: systemPrompt}
}

// Respond runs one round for the given user utterance and returns the final
// assistant text, which is nil when the model produced no usable reply.
//
// A model call failure aborts the round; everything already appended to the
// conversation stays there. The log is an audit trail, not a transaction.
// Tool failures never abort the round: they are recorded as the tool turn's
// content so the model can react to them on the follow-up call.
func (o *Orchestrator) Respond(ctx context.Context, conv *Conversation, userText, roundID string, rec SpanRecorder) (*string, error) {
	conv.EnsureSystem(o.systemPrompt)
	conv.Append(UserTurn(userText))

	reply, err := o.complete(ctx, conv, o.registry.Describe(), true, roundID, rec)
	if err != nil {
		return nil, err
	}

	if len(reply.ToolCalls) == 0 {
		conv.Append(AssistantTurn(reply.Text))
		return reply.Text, nil
	}

	// Tool round: record the assistant's request, then every result in the
	// model's emitted order.
	conv.Append(AssistantToolCallTurn(reply.Text, reply.ToolCalls))
	for _, call := range reply.ToolCalls {
		conv.Append(ToolTurn(call.ID, call.Name, o.executeTool(ctx, call, roundID, rec)))
	}

	// Exactly one follow-up, with tools not re-offered.
	followUp, err := o.complete(ctx, conv, nil, false, roundID, rec)
	if err != nil {
		return nil, err
	}

	text := followUp.Text
	if len(followUp.ToolCalls) > 0 {
		// Single-follow-up contract: a nested tool request ends the round
		// with no final text.
		slog.Warn("follow-up requested further tool calls, ignoring",
			"count", len(followUp.ToolCalls))
		text = nil
	}
	conv.Append(AssistantTurn(text))
	return text, nil
}

func (o *Orchestrator) complete(ctx context.Context, conv *Conversation, schemas []tools.Tool, offerTools bool, roundID string, rec SpanRecorder) (*Reply, error) {
	start := time.Now()
	reply, err := o.model.Complete(ctx, conv.Turns(), schemas, offerTools)

	status, errMsg, out := "ok", "", ""
	if err != nil {
		status, errMsg = "error", err.Error()
	} else if reply.Text != nil {
		out = *reply.Text
	}
	if rec != nil {
		rec.RecordSpan(roundID, "llm", start, float64(time.Since(start).Milliseconds()),
			lastUserContent(conv), out, status, errMsg)
	}

	return reply, err
}

// executeTool runs one invocation and returns the content for its tool turn:
// the result payload on success, a serialized error otherwise.
func (o *Orchestrator) executeTool(ctx context.Context, call ToolCall, roundID string, rec SpanRecorder) string {
	start := time.Now()
	result, err := o.registry.Execute(ctx, call.Name, call.Arguments)
	metrics.StageDuration.WithLabelValues("tool").Observe(time.Since(start).Seconds())

	status, errMsg := "ok", ""
	content := result
	if err != nil {
		slog.Warn("tool call failed", "tool", call.Name, "call_id", call.ID, "error", err)
		status, errMsg = "error", err.Error()
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		content = string(payload)
	}
	if rec != nil {
		rec.RecordSpan(roundID, "tool", start, float64(time.Since(start).Milliseconds()),
			call.Name, content, status, errMsg)
	}
	return content
}

func lastUserContent(conv *Conversation) string {
	turns := conv.Turns()
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleUser {
			return deref(turns[i].Content)
		}
	}
	return ""
}
