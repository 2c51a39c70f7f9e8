package models

import (
	"encoding/json"
	"testing"
)

func TestBlockJSONRoundTrip(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Content: []Block{
			ThinkingBlock("considering", "sig-1"),
			TextBlock("hello"),
			ToolUseBlock("T1", "add", map[string]any{"a": float64(2), "b": float64(3)}),
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if len(got.Content) != 3 {
		t.Fatalf("content length = %d, want 3", len(got.Content))
	}
	if got.Content[0].Type != BlockTypeThinking || got.Content[0].Signature != "sig-1" {
		t.Errorf("thinking block lost: %+v", got.Content[0])
	}
	if got.Content[2].Type != BlockTypeToolUse || got.Content[2].Input["a"] != float64(2) {
		t.Errorf("tool_use block lost: %+v", got.Content[2])
	}
}

func TestValidateToolResultRefs(t *testing.T) {
	history := []Message{
		UserText("compute"),
		{Role: RoleAssistant, Content: []Block{ToolUseBlock("T1", "add", nil)}},
		{Role: RoleUser, Content: []Block{ToolResultBlock("T1", []Block{TextBlock("5")}, false)}},
	}
	if dangling := ValidateToolResultRefs(history); dangling != "" {
		t.Errorf("valid history reported dangling id %q", dangling)
	}

	bad := []Message{
		UserText("compute"),
		{Role: RoleUser, Content: []Block{ToolResultBlock("T9", nil, false)}},
	}
	if dangling := ValidateToolResultRefs(bad); dangling != "T9" {
		t.Errorf("dangling = %q, want T9", dangling)
	}
}

func TestAgentConfigClone(t *testing.T) {
	cfg := &AgentConfig{
		AgentUUID: "a-1",
		History:   []Message{UserText("hi")},
		Relay: RelayState{
			Awaiting:      true,
			FrontendCalls: []PendingToolCall{{ToolUseID: "F1", Name: "confirm"}},
		},
	}
	clone := cfg.Clone()
	clone.History[0] = UserText("changed")
	clone.Relay.FrontendCalls[0].Name = "other"

	if cfg.History[0].PlainText() != "hi" {
		t.Error("clone shares history backing array")
	}
	if cfg.Relay.FrontendCalls[0].Name != "confirm" {
		t.Error("clone shares relay state")
	}
}

func TestMessageHelpers(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Content: []Block{
			TextBlock("a"),
			ToolUseBlock("T1", "grep", nil),
			TextBlock("b"),
		},
	}
	if got := msg.PlainText(); got != "ab" {
		t.Errorf("PlainText = %q, want ab", got)
	}
	if got := len(msg.ToolUses()); got != 1 {
		t.Errorf("ToolUses = %d, want 1", got)
	}
	if msg.HasToolResults() {
		t.Error("HasToolResults on message without results")
	}
}
