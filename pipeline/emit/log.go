package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// LogEmitter implements Emitter by writing structured log output to a writer.
//
// Supports two output modes:
//   - Text mode (default): human-readable key=value pairs
//   - JSON mode: one event per line (JSONL)
//
// Example text output:
//
//	[step_succeeded] runID=run-001 entity=ada@example.com step=ada@example.com/gather-news attempt=1
//
// Example JSON output:
//
//	{"runID":"run-001","entityID":"ada@example.com","stepName":"ada@example.com/gather-news","attempt":1,"msg":"step_succeeded","meta":null}
type LogEmitter struct {
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter creates a new LogEmitter writing to the given writer
// (os.Stdout when nil), in JSON mode when jsonMode is true.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{
		writer:   writer,
		jsonMode: jsonMode,
	}
}

// Emit writes the event in the configured format.
func (l *LogEmitter) Emit(event Event) {
	if l.jsonMode {
		l.emitJSON(event)
	} else {
		l.emitText(event)
	}
}

func (l *LogEmitter) emitJSON(event Event) {
	data, err := json.Marshal(struct {
		RunID    string                 `json:"runID"`
		EntityID string                 `json:"entityID"`
		StepName string                 `json:"stepName"`
		Attempt  int                    `json:"attempt"`
		Msg      string                 `json:"msg"`
		Meta     map[string]interface{} `json:"meta"`
	}{
		RunID:    event.RunID,
		EntityID: event.EntityID,
		StepName: event.StepName,
		Attempt:  event.Attempt,
		Msg:      event.Msg,
		Meta:     event.Meta,
	})
	if err != nil {
		fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}

	fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event Event) {
	fmt.Fprintf(l.writer, "[%s] runID=%s", event.Msg, event.RunID)
	if event.EntityID != "" {
		fmt.Fprintf(l.writer, " entity=%s", event.EntityID)
	}
	if event.StepName != "" {
		fmt.Fprintf(l.writer, " step=%s", event.StepName)
	}
	if event.Attempt > 0 {
		fmt.Fprintf(l.writer, " attempt=%d", event.Attempt)
	}

	if len(event.Meta) > 0 {
		metaJSON, err := json.Marshal(event.Meta)
		if err == nil {
			fmt.Fprintf(l.writer, " meta=%s", metaJSON)
		} else {
			fmt.Fprintf(l.writer, " meta=%v", event.Meta)
		}
	}

	fmt.Fprint(l.writer, "\n")
}
