package agent

import (
	"sync"
	"time"

	"github.com/haasonsaas/praxis/pkg/models"
)

// runLog accumulates the event trail of one run and flushes it through
// the run-log store after every step. The mutex exists because the
// retrying driver appends retry events from the run goroutine while
// accessors may read from test goroutines.
type runLog struct {
	mu     sync.Mutex
	events []models.RunLogEvent
}

func newRunLog() *runLog {
	return &runLog{}
}

func (l *runLog) append(event models.RunLogEvent) {
	if event.TS.IsZero() {
		event.TS = time.Now().UTC()
	}
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
}

func (l *runLog) stepStart(step int) {
	l.append(models.RunLogEvent{Type: models.RunLogStepStart, Step: step})
}

func (l *runLog) stepEnd(step int, details string) {
	l.append(models.RunLogEvent{Type: models.RunLogStepEnd, Step: step, Details: details})
}

func (l *runLog) toolCall(step int, name, toolUseID string) {
	l.append(models.RunLogEvent{
		Type:      models.RunLogToolCall,
		Step:      step,
		ToolName:  name,
		ToolUseID: toolUseID,
	})
}

func (l *runLog) toolResult(step int, name, toolUseID string, isError bool) {
	details := ""
	if isError {
		details = "error"
	}
	l.append(models.RunLogEvent{
		Type:      models.RunLogToolResult,
		Step:      step,
		ToolName:  name,
		ToolUseID: toolUseID,
		Details:   details,
	})
}

func (l *runLog) compaction(step int, details string) {
	l.append(models.RunLogEvent{Type: models.RunLogCompaction, Step: step, Details: details})
}

func (l *runLog) retry(step int, errorKind string, delaySeconds float64) {
	l.append(models.RunLogEvent{
		Type:         models.RunLogRetry,
		Step:         step,
		ErrorKind:    errorKind,
		DelaySeconds: delaySeconds,
	})
}

func (l *runLog) errorEvent(step int, errorKind, details string) {
	l.append(models.RunLogEvent{
		Type:      models.RunLogError,
		Step:      step,
		ErrorKind: errorKind,
		Details:   details,
	})
}

func (l *runLog) finish(step int, details string) {
	l.append(models.RunLogEvent{Type: models.RunLogFinish, Step: step, Details: details})
}

// snapshot returns a copy of the accumulated events.
func (l *runLog) snapshot() []models.RunLogEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.RunLogEvent(nil), l.events...)
}
