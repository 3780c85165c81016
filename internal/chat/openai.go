package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"github.com/autumn-voice/gateway/internal/metrics"
	"github.com/autumn-voice/gateway/internal/tools"
)

// ModelCallError reports a failed language model call: network, auth, or a
// malformed response. It is never recoverable within a round.
type ModelCallError struct {
	Detail string
	Err    error
}

func (e *ModelCallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model call: %s: %v", e.Detail, e.Err)
	}
	return "model call: " + e.Detail
}

func (e *ModelCallError) Unwrap() error { return e.Err }

// Reply is the model's answer to one completion call: text, tool call
// requests, or both. Text is nil when the message carried no content.
type Reply struct {
	Text      *string
	ToolCalls []ToolCall
	LatencyMs float64
}

// ModelClient produces one chat completion over an ordered turn log.
// offerTools controls whether the tool schemas are included in the request;
// the follow-up call of a tool round sets it to false.
type ModelClient interface {
	Complete(ctx context.Context, turns []Turn, schemas []tools.Tool, offerTools bool) (*Reply, error)
}

// OpenAIClient implements ModelClient on the OpenAI chat completions API
// with automatic tool selection.
type OpenAIClient struct {
	client    openai.Client
	model     openai.ChatModel
	maxTokens int64
}

// NewOpenAIClient creates a model client for the given API key and model name.
func NewOpenAIClient(apiKey, model string, maxTokens int) *OpenAIClient {
	return &OpenAIClient{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		model:     openai.ChatModel(model),
		maxTokens: int64(maxTokens),
	}
}

// Complete sends the full ordered turn log and returns the model's reply.
func (c *OpenAIClient) Complete(ctx context.Context, turns []Turn, schemas []tools.Tool, offerTools bool) (*Reply, error) {
	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: toMessages(turns),
	}
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(c.maxTokens)
	}
	if offerTools && len(schemas) > 0 {
		params.Tools = toToolParams(schemas)
	}

	start := time.Now()
	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		metrics.ModelCalls.WithLabelValues("error").Inc()
		return nil, &ModelCallError{Detail: "chat completion", Err: err}
	}
	if len(completion.Choices) == 0 {
		metrics.ModelCalls.WithLabelValues("error").Inc()
		return nil, &ModelCallError{Detail: "response carried no choices"}
	}

	latency := time.Since(start)
	metrics.ModelCalls.WithLabelValues("ok").Inc()
	metrics.StageDuration.WithLabelValues("llm").Observe(latency.Seconds())

	msg := completion.Choices[0].Message
	reply := &Reply{LatencyMs: float64(latency.Milliseconds())}
	if msg.Content != "" {
		content := msg.Content
		reply.Text = &content
	}

	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err = json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, &ModelCallError{
					Detail: fmt.Sprintf("malformed arguments for tool %s", tc.Function.Name),
					Err:    err,
				}
			}
		}
		reply.ToolCalls = append(reply.ToolCalls, ToolCall{
			ID:           tc.ID,
			Name:         tc.Function.Name,
			Arguments:    args,
			RawArguments: tc.Function.Arguments,
		})
	}

	return reply, nil
}

// toMessages converts the turn log to wire messages, preserving order.
func toMessages(turns []Turn) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch {
		case t.Role == RoleSystem:
			out = append(out, openai.SystemMessage(deref(t.Content)))
		case t.Role == RoleUser:
			out = append(out, openai.UserMessage(deref(t.Content)))
		case t.Role == RoleTool:
			out = append(out, openai.ToolMessage(deref(t.Content), t.ToolCallID))
		case len(t.ToolCalls) > 0:
			out = append(out, assistantToolCallMessage(t))
		default:
			out = append(out, openai.AssistantMessage(deref(t.Content)))
		}
	}
	return out
}

func assistantToolCallMessage(t Turn) openai.ChatCompletionMessageParamUnion {
	calls := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(t.ToolCalls))
	for _, tc := range t.ToolCalls {
		calls = append(calls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: tc.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: tc.RawArguments,
				},
			},
		})
	}
	msg := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
	if t.Content != nil {
		msg.Content.OfString = openai.String(*t.Content)
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &msg}
}

func toToolParams(schemas []tools.Tool) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(schemas))
	for _, t := range schemas {
		out = append(out, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  shared.FunctionParameters(t.Parameters),
		}))
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
