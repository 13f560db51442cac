// Package llm implements the model protocol adapter: a provider-neutral
// message model plus a client for the OpenAI Responses API.
//
// The conversation is kept in a neutral shape (role + optional text +
// structured tool calls). The client translates that shape into Responses
// API input items on the way out and normalizes the response's output items
// back into a single assistant Message, so the agent loop never sees the
// wire format.
package llm

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a model-initiated tool invocation. Arguments is the raw
// argument payload exactly as the wire carried it (typically a JSON object
// serialized to a string).
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one entry in a conversation. Content is a pointer so the
// caller can distinguish "said nothing" (nil) from "said an empty string".
type Message struct {
	Role       string     `json:"role"`
	Content    *string    `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// Text returns the message content, or "" when the content is absent.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// SystemMessage creates a system Message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: &text}
}

// UserMessage creates a user Message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: &text}
}

// AssistantMessage creates an assistant Message with text content.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: &text}
}

// ToolMessage creates a tool-result Message keyed to a prior tool call.
func ToolMessage(toolCallID, name, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    &content,
		ToolCallID: toolCallID,
		Name:       name,
	}
}

// ToolSchema describes one callable tool for the model. Parameters is a
// JSON-Schema-shaped object map.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}
