package roost

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Message roles used across the episode protocol.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// InvalidToolName marks a tool call whose arguments could not be parsed as JSON.
// Such calls are never executed; FilterInvalidToolCalls always routes them to the
// invalid subset so the environment can respond with a failure observation.
const InvalidToolName = "INVALID"

// Message is a single observation or instruction in an episode. It is plain data:
// no provider-specific fields, no wire format of its own.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
}

// NewMessage returns a user-role Message with the given content.
func NewMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// ToolCall is a single execution request (as produced by the LLM).
type ToolCall struct {
	ID       string
	ToolName string
	Args     json.RawMessage // JSON payload of arguments
}

// NewToolCall builds a ToolCall for the named tool, marshaling args to JSON and
// assigning a fresh call ID. args may be nil for tools without parameters.
func NewToolCall(name string, args any) (ToolCall, error) {
	raw := json.RawMessage(`{}`)
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return ToolCall{}, fmt.Errorf("marshal args for tool %s: %w", name, err)
		}
		raw = b
	}
	return ToolCall{ID: newCallID(), ToolName: name, Args: raw}, nil
}

// ToolCallFromTool builds a ToolCall targeting the given tool.
func ToolCallFromTool(t Tool, args any) (ToolCall, error) {
	return NewToolCall(t.Name(), args)
}

// ParseToolCall ingests a tool call from a provider payload. If rawArgs is not
// syntactically valid JSON, the call is renamed to InvalidToolName so it is
// rejected downstream instead of crashing the episode. An empty rawArgs is
// treated as an empty object. A missing id gets a fresh one.
func ParseToolCall(id, name string, rawArgs []byte) ToolCall {
	if id == "" {
		id = newCallID()
	}
	if len(rawArgs) == 0 {
		rawArgs = []byte(`{}`)
	}
	if !json.Valid(rawArgs) {
		return ToolCall{ID: id, ToolName: InvalidToolName, Args: json.RawMessage(`{}`)}
	}
	return ToolCall{ID: id, ToolName: name, Args: rawArgs}
}

func newCallID() string {
	return "call_" + uuid.NewString()
}

// ToolRequestMessage is an assistant message carrying zero or more tool calls.
type ToolRequestMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// NewToolRequest returns an assistant-role ToolRequestMessage for the given calls.
func NewToolRequest(calls ...ToolCall) ToolRequestMessage {
	return ToolRequestMessage{Role: RoleAssistant, ToolCalls: calls}
}

// ToolResponseMessage is a tool-role message pairing a result back to its
// originating request by call ID.
type ToolResponseMessage struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"name"`
}

// NewToolResponse builds a ToolResponseMessage answering the given call.
func NewToolResponse(call ToolCall, content string) ToolResponseMessage {
	return ToolResponseMessage{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		ToolName:   call.ToolName,
	}
}

// Message converts a ToolResponseMessage to a plain Message (e.g. for appending
// to an observation transcript).
func (m ToolResponseMessage) Message() Message {
	return Message{Role: m.Role, Content: m.Content}
}
