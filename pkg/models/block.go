// Package models defines the shared domain types for the praxis agent
// runtime: content blocks, messages, agent configuration, conversation
// records, run log events, and token usage.
package models

import "encoding/json"

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType discriminates the content block union.
type BlockType string

const (
	BlockTypeText             BlockType = "text"
	BlockTypeThinking         BlockType = "thinking"
	BlockTypeToolUse          BlockType = "tool_use"
	BlockTypeToolResult       BlockType = "tool_result"
	BlockTypeImage            BlockType = "image"
	BlockTypeDocument         BlockType = "document"
	BlockTypeServerToolUse    BlockType = "server_tool_use"
	BlockTypeServerToolResult BlockType = "server_tool_result"
)

// Block is a single content block within a message. It is a closed tagged
// union discriminated by Type; only the fields relevant to the given type
// are populated.
type Block struct {
	Type BlockType `json:"type"`

	// Text carries the body for text and thinking blocks.
	Text string `json:"text,omitempty"`

	// Signature is the provider-issued signature on thinking blocks.
	Signature string `json:"signature,omitempty"`

	// ID and Name identify tool_use and server_tool_use blocks.
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`

	// Input holds the structured tool input for tool_use blocks.
	Input map[string]any `json:"input,omitempty"`

	// ToolUseID links tool_result and server_tool_result blocks back to
	// the tool_use block they answer.
	ToolUseID string `json:"tool_use_id,omitempty"`

	// Content holds the nested blocks of a tool_result.
	Content []Block `json:"content,omitempty"`

	// IsError marks a tool_result that represents a failure.
	IsError bool `json:"is_error,omitempty"`

	// MediaType and Data carry image and document payloads. Data is
	// base64-encoded for the wire; FileID references the stored copy in
	// the file backend when one exists.
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	FileID    string `json:"file_id,omitempty"`

	// Width and Height are pixel dimensions for image blocks, when known.
	// Pages is the page count for document blocks, when known. Both feed
	// the token estimator.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
	Pages  int `json:"pages,omitempty"`
}

// TextBlock builds a text block.
func TextBlock(text string) Block {
	return Block{Type: BlockTypeText, Text: text}
}

// ThinkingBlock builds a thinking block with its signature.
func ThinkingBlock(text, signature string) Block {
	return Block{Type: BlockTypeThinking, Text: text, Signature: signature}
}

// ToolUseBlock builds a tool_use block.
func ToolUseBlock(id, name string, input map[string]any) Block {
	return Block{Type: BlockTypeToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock builds a tool_result block wrapping the given content.
func ToolResultBlock(toolUseID string, content []Block, isError bool) Block {
	return Block{Type: BlockTypeToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// InputJSON renders the tool input of a tool_use block as JSON. Nil input
// becomes the empty object.
func (b Block) InputJSON() string {
	if len(b.Input) == 0 {
		return "{}"
	}
	data, err := json.Marshal(b.Input)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ErrorResultBlock builds a tool_result carrying a single error string.
func ErrorResultBlock(toolUseID, message string) Block {
	return ToolResultBlock(toolUseID, []Block{TextBlock(message)}, true)
}

// Message is one conversation entry: a role plus an ordered list of
// content blocks.
type Message struct {
	Role    Role    `json:"role"`
	Content []Block `json:"content"`
}

// UserText builds a user message holding a single text block.
func UserText(text string) Message {
	return Message{Role: RoleUser, Content: []Block{TextBlock(text)}}
}

// ToolUses returns the tool_use blocks of the message in order.
func (m Message) ToolUses() []Block {
	var uses []Block
	for _, b := range m.Content {
		if b.Type == BlockTypeToolUse {
			uses = append(uses, b)
		}
	}
	return uses
}

// PlainText concatenates the text blocks of the message.
func (m Message) PlainText() string {
	var out string
	for _, b := range m.Content {
		if b.Type == BlockTypeText {
			out += b.Text
		}
	}
	return out
}

// HasToolResults reports whether any block is a tool_result.
func (m Message) HasToolResults() bool {
	for _, b := range m.Content {
		if b.Type == BlockTypeToolResult {
			return true
		}
	}
	return false
}

// ValidateToolResultRefs checks that every tool_result block in history
// refers to a tool_use block appearing earlier. Returns the first dangling
// tool_use_id, or empty string when the history is consistent.
func ValidateToolResultRefs(history []Message) string {
	seen := make(map[string]bool)
	for _, msg := range history {
		for _, b := range msg.Content {
			switch b.Type {
			case BlockTypeToolUse, BlockTypeServerToolUse:
				seen[b.ID] = true
			case BlockTypeToolResult, BlockTypeServerToolResult:
				if !seen[b.ToolUseID] {
					return b.ToolUseID
				}
			}
		}
	}
	return ""
}
