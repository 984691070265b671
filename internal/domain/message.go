package domain

import "time"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Turn is one conversation turn. The same shape is used for persisted
// history and for messages sent to the model provider.
type Turn struct {
	Role       string     `json:"role"` // system | user | assistant | tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

// TurnRecord is a persisted turn together with its storage timestamp.
// CreatedAt drives the duplicate-delivery check in the inbound filter.
type TurnRecord struct {
	ID        int64
	SessionID string
	Turn      Turn
	CreatedAt time.Time
}
