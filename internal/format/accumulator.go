package format

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/haasonsaas/praxis/internal/llm"
	"github.com/haasonsaas/praxis/pkg/models"
)

// Assemble drains a provider stream into a final message without
// emitting chunks. Used for internal calls (summarization) that want the
// assembled response only.
func Assemble(events <-chan llm.Event) (*Result, error) {
	acc := newAccumulator()
	for ev := range events {
		if ev.Err != nil {
			acc.closeAll()
			return acc.finish(), ev.Err
		}
		acc.observe(ev)
	}
	acc.closeAll()
	return acc.finish(), nil
}

// accumulator builds the final assistant message from the event stream
// while the formatter emits chunks. Blocks are keyed by provider index
// and emitted in index order.
type accumulator struct {
	result Result

	open  map[int]*blockState
	done  []*blockState
	order []int
}

type blockState struct {
	index     int
	block     models.Block
	text      strings.Builder
	inputJSON strings.Builder
	signature strings.Builder
}

func newAccumulator() *accumulator {
	return &accumulator{open: make(map[int]*blockState)}
}

// observe folds one event into the accumulated state.
func (a *accumulator) observe(ev llm.Event) {
	switch ev.Type {
	case llm.EventMessageStart:
		a.result.MessageID = ev.MessageID
		a.result.Model = ev.Model
		if ev.Usage != nil {
			a.result.Usage.Add(*ev.Usage)
		}

	case llm.EventBlockStart:
		state := &blockState{index: ev.Index}
		if ev.Block != nil {
			state.block = *ev.Block
		}
		a.open[ev.Index] = state

	case llm.EventTextDelta, llm.EventThinkingDelta:
		if state, ok := a.open[ev.Index]; ok {
			state.text.WriteString(ev.Text)
		}

	case llm.EventSignatureDelta:
		if state, ok := a.open[ev.Index]; ok {
			state.signature.WriteString(ev.Text)
		}

	case llm.EventInputJSONDelta:
		if state, ok := a.open[ev.Index]; ok {
			state.inputJSON.WriteString(ev.PartialJSON)
		}

	case llm.EventBlockStop:
		if state, ok := a.open[ev.Index]; ok {
			delete(a.open, ev.Index)
			a.done = append(a.done, state)
			a.order = append(a.order, ev.Index)
		}

	case llm.EventMessageDelta:
		a.result.StopReason = ev.StopReason
		a.result.StopSequence = ev.StopSequence
		if ev.Usage != nil {
			a.result.Usage.Add(*ev.Usage)
		}
	}
}

// closeAll moves any still-open blocks to done. Called by the cleanup
// pass on abnormal termination.
func (a *accumulator) closeAll() {
	for index, state := range a.open {
		delete(a.open, index)
		a.done = append(a.done, state)
		a.order = append(a.order, index)
	}
}

// finish assembles the result message from the completed blocks.
func (a *accumulator) finish() *Result {
	sort.Slice(a.done, func(i, j int) bool { return a.done[i].index < a.done[j].index })

	content := make([]models.Block, 0, len(a.done))
	for _, state := range a.done {
		content = append(content, state.finalize())
	}
	a.result.Message = models.Message{Role: models.RoleAssistant, Content: content}
	return &a.result
}

// finalize folds the streamed builders into the block shape.
func (s *blockState) finalize() models.Block {
	block := s.block
	switch block.Type {
	case models.BlockTypeText, "":
		block.Type = models.BlockTypeText
		block.Text = s.text.String()

	case models.BlockTypeThinking:
		block.Text = s.text.String()
		block.Signature = s.signature.String()

	case models.BlockTypeToolUse, models.BlockTypeServerToolUse:
		raw := s.inputJSON.String()
		if raw == "" {
			raw = "{}"
		}
		var input map[string]any
		if err := json.Unmarshal([]byte(raw), &input); err != nil {
			input = map[string]any{}
		}
		block.Input = input
	}
	return block
}
