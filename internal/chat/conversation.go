// Package chat holds the per-session conversation log and the orchestrator
// that drives the model/tool round for each user utterance.
package chat

// Role tags one entry in a conversation log.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is the model's structured request to invoke a named tool.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	// RawArguments keeps the model's original serialization so the call can
	// be replayed verbatim on the follow-up request.
	RawArguments string `json:"-"`
}

// Turn is one role-tagged entry in a conversation log. The constructors below
// are the only way turns are built, so role-specific shape holds by
// construction: only assistant turns carry tool calls, only tool turns carry
// a call id, and only assistant turns may have nil content.
type Turn struct {
	Role      Role       `json:"role"`
	Content   *string    `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Set when Role == RoleTool, linking the result to its invocation.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
}

func SystemTurn(text string) Turn {
	return Turn{Role: RoleSystem, Content: &text}
}

func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Content: &text}
}

// AssistantTurn records a final assistant answer; text may be nil when the
// model produced no usable reply.
func AssistantTurn(text *string) Turn {
	return Turn{Role: RoleAssistant, Content: text}
}

// AssistantToolCallTurn records the assistant turn that requested tool calls.
func AssistantToolCallTurn(text *string, calls []ToolCall) Turn {
	return Turn{Role: RoleAssistant, Content: text, ToolCalls: calls}
}

// ToolTurn records a tool result (or serialized failure) for the invocation
// id emitted in the immediately preceding assistant turn.
func ToolTurn(callID, toolName, content string) Turn {
	return Turn{Role: RoleTool, Content: &content, ToolCallID: callID, ToolName: toolName}
}

// Conversation is the ordered turn log owned by exactly one session. It only
// ever grows; there is no rollback, because the log is an audit trail of what
// was actually sent. The single-writer guarantee comes from per-connection
// frame sequencing, so no lock lives here.
type Conversation struct {
	turns []Turn
}

func NewConversation() *Conversation {
	return &Conversation{}
}

// Turns returns the ordered log. Callers must not mutate it.
func (c *Conversation) Turns() []Turn { return c.turns }

func (c *Conversation) Len() int { return len(c.turns) }

// Append adds turns to the end of the log.
func (c *Conversation) Append(turns ...Turn) {
	c.turns = append(c.turns, turns...)
}

// EnsureSystem prepends the behavioral system turn if the log does not carry
// one yet.
func (c *Conversation) EnsureSystem(prompt string) {
	if len(c.turns) > 0 && c.turns[0].Role == RoleSystem {
		return
	}
	c.turns = append([]Turn{SystemTurn(prompt)}, c.turns...)
}
