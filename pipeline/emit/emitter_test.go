package emit

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestBufferedEmitter(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{RunID: "r", Msg: MsgRunStarted})
	b.Emit(Event{RunID: "r", StepName: "s", Msg: MsgStepStarted})
	b.Emit(Event{RunID: "r", StepName: "s", Msg: MsgStepSucceeded})

	if got := len(b.Events()); got != 3 {
		t.Fatalf("got %d events, want 3", got)
	}
	if got := b.ByMsg(MsgStepStarted); len(got) != 1 || got[0].StepName != "s" {
		t.Errorf("ByMsg = %+v", got)
	}

	b.Reset()
	if got := len(b.Events()); got != 0 {
		t.Errorf("events after reset = %d", got)
	}
}

func TestLogEmitter(t *testing.T) {
	t.Run("text mode includes run and step", func(t *testing.T) {
		var buf bytes.Buffer
		e := NewLogEmitter(&buf, false)
		e.Emit(Event{RunID: "run-1", StepName: "send-email", Attempt: 2, Msg: MsgStepRetrying})

		out := buf.String()
		for _, want := range []string{"run-1", "send-email", MsgStepRetrying} {
			if !strings.Contains(out, want) {
				t.Errorf("output %q is missing %q", out, want)
			}
		}
	})

	t.Run("json mode produces one parseable line per event", func(t *testing.T) {
		var buf bytes.Buffer
		e := NewLogEmitter(&buf, true)
		e.Emit(Event{RunID: "run-1", Msg: MsgRunFinished, Meta: map[string]interface{}{"status": "succeeded"}})

		line := strings.TrimSpace(buf.String())
		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(line), &decoded); err != nil {
			t.Fatalf("output is not JSON: %v\n%s", err, line)
		}
		if decoded["runID"] != "run-1" {
			t.Errorf("decoded = %v", decoded)
		}
	})
}
