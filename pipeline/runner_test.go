package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/signalist/notifier/pipeline/emit"
	"github.com/signalist/notifier/pipeline/store"
)

func fastRetry() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Retryable:   IsTransient,
	}
}

func newTestRunner(st store.Store, emitter emit.Emitter) *Runner {
	return New(st, emitter, Options{Retry: fastRetry()})
}

func TestRunner_Execute(t *testing.T) {
	t.Run("single entity pipeline succeeds", func(t *testing.T) {
		st := store.NewMemStore()
		buf := emit.NewBufferedEmitter()
		r := newTestRunner(st, buf)

		outcome, err := r.Execute(context.Background(), store.Run{ID: "run-1", TriggerKind: store.TriggerEvent}, Entity{ID: "user@example.com"}, func(ctx context.Context, x *Execution) error {
			_, err := x.Run(ctx, "step-a", func(ctx context.Context) (any, error) {
				return "hello", nil
			})
			return err
		})
		if err != nil {
			t.Fatalf("Execute returned error: %v", err)
		}
		if !outcome.Succeeded() {
			t.Errorf("outcome status = %s, want succeeded", outcome.Status)
		}
		if len(outcome.Entities) != 1 {
			t.Fatalf("got %d entity outcomes, want 1", len(outcome.Entities))
		}
		if outcome.Entities[0].EntityID != "user@example.com" {
			t.Errorf("entity ID = %s", outcome.Entities[0].EntityID)
		}

		run, err := st.GetRun(context.Background(), "run-1")
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if run.Status != store.RunSucceeded {
			t.Errorf("stored run status = %s, want succeeded", run.Status)
		}
	})

	t.Run("empty run ID is rejected", func(t *testing.T) {
		r := newTestRunner(store.NewMemStore(), nil)
		_, err := r.Execute(context.Background(), store.Run{}, Entity{ID: "e"}, func(ctx context.Context, x *Execution) error {
			return nil
		})
		var rErr *RunnerError
		if !errors.As(err, &rErr) || rErr.Code != "MISSING_RUN_ID" {
			t.Fatalf("got %v, want MISSING_RUN_ID RunnerError", err)
		}
	})

	t.Run("step results flow between steps", func(t *testing.T) {
		st := store.NewMemStore()
		r := newTestRunner(st, nil)

		var got string
		_, err := r.Execute(context.Background(), store.Run{ID: "run-2"}, Entity{ID: "e"}, func(ctx context.Context, x *Execution) error {
			first, err := RunAs[string](ctx, x, "produce", func(ctx context.Context) (string, error) {
				return "payload", nil
			})
			if err != nil {
				return err
			}
			_, err = x.Run(ctx, "consume", func(ctx context.Context) (any, error) {
				got = first
				return nil, nil
			})
			return err
		})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if got != "payload" {
			t.Errorf("second step saw %q, want %q", got, "payload")
		}
	})
}

func TestRunner_Memoization(t *testing.T) {
	t.Run("replaying a finished run makes zero external calls", func(t *testing.T) {
		st := store.NewMemStore()
		buf := emit.NewBufferedEmitter()
		r := newTestRunner(st, buf)

		var calls atomic.Int32
		pipeline := func(ctx context.Context, x *Execution) error {
			_, err := RunAs[string](ctx, x, "send-email", func(ctx context.Context) (string, error) {
				calls.Add(1)
				return "sent", nil
			})
			return err
		}

		run := store.Run{ID: "run-memo", TriggerKind: store.TriggerEvent}
		if _, err := r.Execute(context.Background(), run, Entity{ID: "e"}, pipeline); err != nil {
			t.Fatalf("first Execute: %v", err)
		}
		buf.Reset()

		outcome, err := r.Execute(context.Background(), run, Entity{ID: "e"}, pipeline)
		if err != nil {
			t.Fatalf("second Execute: %v", err)
		}
		if !outcome.Succeeded() {
			t.Errorf("replay outcome = %s, want succeeded", outcome.Status)
		}
		if n := calls.Load(); n != 1 {
			t.Errorf("step computation ran %d times, want 1", n)
		}
		if len(buf.ByMsg(emit.MsgStepMemoized)) != 1 {
			t.Errorf("expected one memoized event, got %d", len(buf.ByMsg(emit.MsgStepMemoized)))
		}
	})

	t.Run("memoized step returns the cached payload", func(t *testing.T) {
		st := store.NewMemStore()
		r := newTestRunner(st, nil)

		run := store.Run{ID: "run-cached"}
		pipeline := func(out *string) EntityPipeline {
			return func(ctx context.Context, x *Execution) error {
				v, err := RunAs[string](ctx, x, "compute", func(ctx context.Context) (string, error) {
					return "original", nil
				})
				*out = v
				return err
			}
		}

		var first, second string
		if _, err := r.Execute(context.Background(), run, Entity{ID: "e"}, pipeline(&first)); err != nil {
			t.Fatalf("first Execute: %v", err)
		}
		if _, err := r.Execute(context.Background(), run, Entity{ID: "e"}, pipeline(&second)); err != nil {
			t.Fatalf("second Execute: %v", err)
		}
		if first != "original" || second != "original" {
			t.Errorf("payloads = %q, %q; want both %q", first, second, "original")
		}
	})

	t.Run("crash between steps resumes without repeating the side effect", func(t *testing.T) {
		st := store.NewMemStore()
		r := newTestRunner(st, nil)

		run := store.Run{ID: "run-crash"}
		var sideEffects atomic.Int32

		// First process: the side-effecting step succeeds, then the
		// pipeline dies before the next step.
		crashed := errors.New("process lost")
		_, err := r.Execute(context.Background(), run, Entity{ID: "e"}, func(ctx context.Context, x *Execution) error {
			_, err := x.Run(ctx, "send-email", func(ctx context.Context) (any, error) {
				sideEffects.Add(1)
				return "sent", nil
			})
			if err != nil {
				return err
			}
			return crashed
		})
		if err != nil {
			t.Fatalf("first Execute: %v", err)
		}

		// Second process: the full pipeline replays; the email step is
		// served from its checkpoint.
		outcome, err := r.Execute(context.Background(), run, Entity{ID: "e"}, func(ctx context.Context, x *Execution) error {
			_, err := x.Run(ctx, "send-email", func(ctx context.Context) (any, error) {
				sideEffects.Add(1)
				return "sent", nil
			})
			if err != nil {
				return err
			}
			_, err = x.Run(ctx, "record-result", func(ctx context.Context) (any, error) {
				return "done", nil
			})
			return err
		})
		if err != nil {
			t.Fatalf("second Execute: %v", err)
		}
		if !outcome.Succeeded() {
			t.Errorf("resumed outcome = %s, want succeeded", outcome.Status)
		}
		if n := sideEffects.Load(); n != 1 {
			t.Errorf("side effect ran %d times, want exactly 1", n)
		}
	})
}

func TestRunner_Retry(t *testing.T) {
	t.Run("transient failure retries up to the attempt ceiling", func(t *testing.T) {
		st := store.NewMemStore()
		buf := emit.NewBufferedEmitter()
		r := newTestRunner(st, buf)

		var attempts atomic.Int32
		_, err := r.Execute(context.Background(), store.Run{ID: "run-retry"}, Entity{ID: "e"}, func(ctx context.Context, x *Execution) error {
			_, err := x.Run(ctx, "flaky", func(ctx context.Context) (any, error) {
				attempts.Add(1)
				return nil, Transient("call api", errors.New("timeout"))
			})
			return err
		})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}

		if n := attempts.Load(); n != 3 {
			t.Errorf("step attempted %d times, want 3", n)
		}
		if len(buf.ByMsg(emit.MsgStepRetrying)) != 2 {
			t.Errorf("expected 2 retrying events, got %d", len(buf.ByMsg(emit.MsgStepRetrying)))
		}
		if len(buf.ByMsg(emit.MsgStepFailed)) != 1 {
			t.Errorf("expected 1 failed event, got %d", len(buf.ByMsg(emit.MsgStepFailed)))
		}
	})

	t.Run("transient failure that recovers succeeds", func(t *testing.T) {
		st := store.NewMemStore()
		r := newTestRunner(st, nil)

		var attempts atomic.Int32
		outcome, err := r.Execute(context.Background(), store.Run{ID: "run-recover"}, Entity{ID: "e"}, func(ctx context.Context, x *Execution) error {
			_, err := x.Run(ctx, "flaky", func(ctx context.Context) (any, error) {
				if attempts.Add(1) < 3 {
					return nil, Transient("call api", errors.New("temporarily down"))
				}
				return "ok", nil
			})
			return err
		})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !outcome.Succeeded() {
			t.Errorf("outcome = %s, want succeeded", outcome.Status)
		}
		if n := attempts.Load(); n != 3 {
			t.Errorf("attempts = %d, want 3", n)
		}
	})

	t.Run("permanent failure does not retry", func(t *testing.T) {
		st := store.NewMemStore()
		r := newTestRunner(st, nil)

		var attempts atomic.Int32
		outcome, err := r.Execute(context.Background(), store.Run{ID: "run-perm"}, Entity{ID: "e"}, func(ctx context.Context, x *Execution) error {
			_, err := x.Run(ctx, "bad-request", func(ctx context.Context) (any, error) {
				attempts.Add(1)
				return nil, Permanent("call api", errors.New("invalid payload"))
			})
			return err
		})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if outcome.Status != store.RunFailed {
			t.Errorf("outcome = %s, want failed", outcome.Status)
		}
		if n := attempts.Load(); n != 1 {
			t.Errorf("attempts = %d, want 1", n)
		}
	})

	t.Run("failed step surfaces a StepError with attempt count", func(t *testing.T) {
		st := store.NewMemStore()
		r := newTestRunner(st, nil)

		var stepErr *StepError
		_, err := r.Execute(context.Background(), store.Run{ID: "run-steperr"}, Entity{ID: "e"}, func(ctx context.Context, x *Execution) error {
			_, err := x.Run(ctx, "doomed", func(ctx context.Context) (any, error) {
				return nil, Transient("call api", errors.New("down"))
			})
			if !errors.As(err, &stepErr) {
				t.Errorf("step returned %T, want *StepError", err)
			}
			return err
		})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if stepErr == nil {
			t.Fatal("no StepError captured")
		}
		if stepErr.Attempts != 3 {
			t.Errorf("StepError.Attempts = %d, want 3", stepErr.Attempts)
		}
	})

	t.Run("attempt count persists across process restarts", func(t *testing.T) {
		st := store.NewMemStore()
		r := newTestRunner(st, nil)

		run := store.Run{ID: "run-resume-attempts"}
		var attempts atomic.Int32
		fail := func(ctx context.Context, x *Execution) error {
			_, err := x.Run(ctx, "flaky", func(ctx context.Context) (any, error) {
				attempts.Add(1)
				return nil, Transient("call api", errors.New("down"))
			})
			return err
		}

		// First process exhausts the ceiling; a restarted process picks
		// the count back up instead of granting three fresh attempts.
		if _, err := r.Execute(context.Background(), run, Entity{ID: "e"}, fail); err != nil {
			t.Fatalf("first Execute: %v", err)
		}
		first := attempts.Load()
		if _, err := r.Execute(context.Background(), run, Entity{ID: "e"}, fail); err != nil {
			t.Fatalf("second Execute: %v", err)
		}

		if first != 3 {
			t.Fatalf("first process attempts = %d, want 3", first)
		}
		if total := attempts.Load(); total != 4 {
			// The resumed run gets one more attempt (4 > ceiling) and
			// fails immediately rather than re-running the full ladder.
			t.Errorf("total attempts = %d, want 4", total)
		}
	})
}

func TestRunner_ExecuteBatch(t *testing.T) {
	t.Run("one failing entity does not block the others", func(t *testing.T) {
		st := store.NewMemStore()
		r := New(st, nil, Options{Retry: fastRetry(), MaxParallel: 4})

		entities := []Entity{{ID: "a"}, {ID: "b"}, {ID: "c"}}
		outcome, err := r.ExecuteBatch(context.Background(), store.Run{ID: "run-batch", TriggerKind: store.TriggerScheduled}, entities, func(ctx context.Context, x *Execution) error {
			_, err := x.Run(ctx, "work", func(ctx context.Context) (any, error) {
				if x.EntityID() == "b" {
					return nil, Permanent("work", errors.New("broken user"))
				}
				return "ok", nil
			})
			return err
		})
		if err != nil {
			t.Fatalf("ExecuteBatch: %v", err)
		}

		if outcome.Status != store.RunPartial {
			t.Errorf("run status = %s, want partial", outcome.Status)
		}
		if len(outcome.Entities) != 3 {
			t.Fatalf("got %d outcomes, want 3", len(outcome.Entities))
		}
		// Positional aggregation: outcomes line up with submission order.
		for i, want := range []OutcomeStatus{OutcomeSucceeded, OutcomeFailed, OutcomeSucceeded} {
			if outcome.Entities[i].Status != want {
				t.Errorf("entity %d status = %s, want %s", i, outcome.Entities[i].Status, want)
			}
		}
		failed := outcome.Failed()
		if len(failed) != 1 || failed[0].EntityID != "b" {
			t.Errorf("Failed() = %+v, want exactly entity b", failed)
		}
	})

	t.Run("a panicking entity is contained", func(t *testing.T) {
		st := store.NewMemStore()
		r := newTestRunner(st, nil)

		outcome, err := r.ExecuteBatch(context.Background(), store.Run{ID: "run-panic"}, []Entity{{ID: "a"}, {ID: "b"}}, func(ctx context.Context, x *Execution) error {
			if x.EntityID() == "a" {
				panic("pipeline bug")
			}
			_, err := x.Run(ctx, "work", func(ctx context.Context) (any, error) { return "ok", nil })
			return err
		})
		if err != nil {
			t.Fatalf("ExecuteBatch: %v", err)
		}
		if outcome.Entities[0].Status != OutcomeFailed {
			t.Errorf("panicked entity status = %s, want failed", outcome.Entities[0].Status)
		}
		if outcome.Entities[1].Status != OutcomeSucceeded {
			t.Errorf("sibling entity status = %s, want succeeded", outcome.Entities[1].Status)
		}
	})

	t.Run("a panicking step is converted to a permanent error", func(t *testing.T) {
		st := store.NewMemStore()
		r := newTestRunner(st, nil)

		outcome, err := r.Execute(context.Background(), store.Run{ID: "run-step-panic"}, Entity{ID: "e"}, func(ctx context.Context, x *Execution) error {
			_, err := x.Run(ctx, "boom", func(ctx context.Context) (any, error) {
				panic("step bug")
			})
			return err
		})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if outcome.Status != store.RunFailed {
			t.Errorf("run status = %s, want failed", outcome.Status)
		}
	})

	t.Run("entity checkpoints are namespaced and isolated", func(t *testing.T) {
		st := store.NewMemStore()
		r := New(st, nil, Options{Retry: fastRetry(), MaxParallel: 2})

		_, err := r.ExecuteBatch(context.Background(), store.Run{ID: "run-ns"}, []Entity{{ID: "a"}, {ID: "b"}}, func(ctx context.Context, x *Execution) error {
			_, err := x.Run(ctx, "greet", func(ctx context.Context) (any, error) {
				return "hello " + x.EntityID(), nil
			})
			return err
		})
		if err != nil {
			t.Fatalf("ExecuteBatch: %v", err)
		}

		for _, id := range []string{"a", "b"} {
			rec, err := st.Get(context.Background(), "run-ns", store.StepName(id, "greet"))
			if err != nil {
				t.Fatalf("Get %s: %v", id, err)
			}
			want := fmt.Sprintf("%q", "hello "+id)
			if string(rec.Payload) != want {
				t.Errorf("payload for %s = %s, want %s", id, rec.Payload, want)
			}
		}
	})

	t.Run("empty batch succeeds trivially", func(t *testing.T) {
		st := store.NewMemStore()
		r := newTestRunner(st, nil)

		outcome, err := r.ExecuteBatch(context.Background(), store.Run{ID: "run-empty"}, nil, func(ctx context.Context, x *Execution) error {
			return nil
		})
		if err != nil {
			t.Fatalf("ExecuteBatch: %v", err)
		}
		if outcome.Status != store.RunSucceeded {
			t.Errorf("status = %s, want succeeded", outcome.Status)
		}
	})
}

func TestRunner_Events(t *testing.T) {
	t.Run("lifecycle events are emitted in order", func(t *testing.T) {
		st := store.NewMemStore()
		buf := emit.NewBufferedEmitter()
		r := newTestRunner(st, buf)

		_, err := r.Execute(context.Background(), store.Run{ID: "run-events"}, Entity{ID: "e"}, func(ctx context.Context, x *Execution) error {
			_, err := x.Run(ctx, "only-step", func(ctx context.Context) (any, error) { return nil, nil })
			return err
		})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}

		want := []string{emit.MsgRunStarted, emit.MsgStepStarted, emit.MsgStepSucceeded, emit.MsgRunFinished}
		events := buf.Events()
		if len(events) != len(want) {
			t.Fatalf("got %d events %v, want %d", len(events), events, len(want))
		}
		for i, msg := range want {
			if events[i].Msg != msg {
				t.Errorf("event %d = %s, want %s", i, events[i].Msg, msg)
			}
		}
	})
}
