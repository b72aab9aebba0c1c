package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pattern-run/pattern/internal/id"
)

// Role indicates the message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentBlockType tags the variant of a single ContentBlock.
type ContentBlockType string

const (
	BlockText             ContentBlockType = "text"
	BlockThinking         ContentBlockType = "thinking"
	BlockRedactedThinking ContentBlockType = "redacted_thinking"
	BlockToolUse          ContentBlockType = "tool_use"
	BlockToolResult       ContentBlockType = "tool_result"
)

// ContentBlock is one entry in an ordered, typed content sequence.
// Exactly the fields relevant to Type are populated; this mirrors a
// tagged union rather than a class hierarchy, per spec design note §9.
type ContentBlock struct {
	Type ContentBlockType `json:"type"`

	// Text carries BlockText and BlockThinking content.
	Text string `json:"text,omitempty"`

	// RedactedData carries opaque bytes for BlockRedactedThinking;
	// this block type carries no readable content, only opaque data.
	RedactedData []byte `json:"redacted_data,omitempty"`

	// ToolCallID/ToolName/ToolInput carry BlockToolUse.
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	ToolInput  json.RawMessage `json:"tool_input,omitempty"`

	// ToolResultContent/ToolResultIsError carry BlockToolResult.
	ToolResultContent string `json:"tool_result_content,omitempty"`
	ToolResultIsError bool   `json:"tool_result_is_error,omitempty"`
}

// MessagePartType tags a plain content part (text or image), the
// simpler of the two multi-part content shapes a Message may carry.
type MessagePartType string

const (
	PartText  MessagePartType = "text"
	PartImage MessagePartType = "image"
)

// MessagePart is one entry in the "ordered parts of text/image" content
// variant.
type MessagePart struct {
	Type MessagePartType `json:"type"`
	Text string          `json:"text,omitempty"`
	// ImageURL or ImageData (base64) identifies the image; at most one
	// is set.
	ImageURL  string `json:"image_url,omitempty"`
	ImageData string `json:"image_data,omitempty"`
}

// ToolCall represents a bare tool invocation request, used by the
// "bare tool-calls" content variant.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult represents a bare tool invocation outcome, used by the
// "bare tool-responses" content variant.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`

	// RequestHeartbeat raises the §4.9 heartbeat signal: the tool asks
	// for an additional turn without new external input.
	RequestHeartbeat bool `json:"request_heartbeat,omitempty"`
}

// ContentKind tags which of the five content shapes a Message carries.
type ContentKind string

const (
	ContentPlainText   ContentKind = "plain_text"
	ContentParts       ContentKind = "parts"
	ContentBlocks      ContentKind = "blocks"
	ContentToolCalls   ContentKind = "tool_calls"
	ContentToolResults ContentKind = "tool_results"
)

// Content is the sum type over a Message's body. Exactly one field
// matching Kind is populated.
type Content struct {
	Kind        ContentKind    `json:"kind"`
	PlainText   string         `json:"plain_text,omitempty"`
	Parts       []MessagePart  `json:"parts,omitempty"`
	Blocks      []ContentBlock `json:"blocks,omitempty"`
	ToolCalls   []ToolCall     `json:"tool_calls,omitempty"`
	ToolResults []ToolResult   `json:"tool_results,omitempty"`
}

// HasToolCalls reports whether the content carries a tool-use block or
// the bare tool-calls variant. Message.HasToolCalls must always equal
// this, per the data model invariant.
func (c Content) HasToolCalls() bool {
	switch c.Kind {
	case ContentToolCalls:
		return len(c.ToolCalls) > 0
	case ContentBlocks:
		for _, b := range c.Blocks {
			if b.Type == BlockToolUse {
				return true
			}
		}
	}
	return false
}

// WordCount approximates a word count over the readable text of the
// content, skipping redacted-thinking blocks (which carry only opaque
// data).
func (c Content) WordCount() int {
	var sb strings.Builder
	switch c.Kind {
	case ContentPlainText:
		sb.WriteString(c.PlainText)
	case ContentParts:
		for _, p := range c.Parts {
			if p.Type == PartText {
				sb.WriteString(p.Text)
				sb.WriteByte(' ')
			}
		}
	case ContentBlocks:
		for _, b := range c.Blocks {
			switch b.Type {
			case BlockText, BlockThinking:
				sb.WriteString(b.Text)
				sb.WriteByte(' ')
			case BlockToolResult:
				sb.WriteString(b.ToolResultContent)
				sb.WriteByte(' ')
			}
		}
	}
	return len(strings.Fields(sb.String()))
}

// CacheControl is a hint to the LLM provider about prompt caching
// boundaries; the engine never interprets it, only carries it.
type CacheControl struct {
	Type string `json:"type,omitempty"`
}

// MessageOptions carries per-message behavioral hints.
type MessageOptions struct {
	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// Metadata is free-form message metadata with a distinguished custom
// map that callers can merge without clobbering engine-owned keys.
type Metadata struct {
	Custom map[string]any `json:"custom,omitempty"`
}

// Merge returns a new Metadata with other's Custom entries overlaid on
// m's, leaving both inputs unmodified.
func (m Metadata) Merge(other Metadata) Metadata {
	out := Metadata{Custom: make(map[string]any, len(m.Custom)+len(other.Custom))}
	for k, v := range m.Custom {
		out.Custom[k] = v
	}
	for k, v := range other.Custom {
		out.Custom[k] = v
	}
	return out
}

// Message is the canonical, append-only multi-part message used
// throughout the engine. Once a Message is referenced by a completed
// GroupResponseEvent it must not be mutated.
type Message struct {
	ID        id.ID     `json:"id"`
	Role      Role      `json:"role"`
	Owner     id.ID     `json:"owner,omitempty"`
	Content   Content   `json:"content"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	Options   MessageOptions `json:"options,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// HasToolCalls mirrors Content.HasToolCalls(); kept as a denormalized
	// field because callers filter on it without decoding Content.
	HasToolCalls bool `json:"has_tool_calls"`

	// WordCount mirrors Content.WordCount().
	WordCount int `json:"word_count"`

	// Embedding and Model are optional and set by an out-of-scope
	// embedding provider; the engine only stores and returns them.
	Embedding []float32 `json:"embedding,omitempty"`
	Model     string    `json:"model,omitempty"`
}

// NewMessage constructs a Message, deriving HasToolCalls and WordCount
// from content and stamping the current time and a fresh ID.
func NewMessage(role Role, owner id.ID, content Content) Message {
	return Message{
		ID:           id.New(id.PrefixMessage),
		Role:         role,
		Owner:        owner,
		Content:      content,
		Timestamp:    time.Now(),
		HasToolCalls: content.HasToolCalls(),
		WordCount:    content.WordCount(),
	}
}

// PlainText builds a plain-text Content value, the common case for
// synthesized messages (wakeup triggers, ticker syncs).
func PlainText(text string) Content {
	return Content{Kind: ContentPlainText, PlainText: text}
}
