package format

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/haasonsaas/praxis/internal/llm"
)

var errTest = errors.New("boom")

func TestRawFramesEveryEvent(t *testing.T) {
	events := textTurn("hi")
	result, chunks, err := runFormat(t, NewRaw(), events)
	if err != nil {
		t.Fatalf("format: %v", err)
	}

	if len(chunks) != len(events) {
		t.Fatalf("frames = %d, want %d", len(chunks), len(events))
	}
	for i, chunk := range chunks {
		if !strings.HasSuffix(chunk, "\n") {
			t.Errorf("frame %d not newline terminated", i)
		}
		var frame map[string]any
		if err := json.Unmarshal([]byte(chunk), &frame); err != nil {
			t.Errorf("frame %d invalid JSON: %v", i, err)
		}
	}

	var first rawFrame
	if err := json.Unmarshal([]byte(chunks[0]), &first); err != nil {
		t.Fatalf("unmarshal first frame: %v", err)
	}
	if first.Type != string(llm.EventMessageStart) || first.MessageID != "msg-1" {
		t.Errorf("first frame = %+v", first)
	}

	if result.Message.PlainText() != "hi" {
		t.Errorf("assembled text = %q", result.Message.PlainText())
	}
}

func TestRawErrorFrame(t *testing.T) {
	events := []llm.Event{
		{Type: llm.EventMessageStart},
		{Err: llm.NewError("openai", "gpt-4o", errTest)},
	}
	_, chunks, err := runFormat(t, NewRaw(), events)
	if err == nil {
		t.Fatal("expected stream error")
	}
	last := chunks[len(chunks)-1]
	var frame rawFrame
	if err := json.Unmarshal([]byte(last), &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame.Type != "error" || frame.Error == "" {
		t.Errorf("error frame = %+v", frame)
	}
}
