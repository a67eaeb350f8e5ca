package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/signalist/notifier/pipeline/emit"
	"github.com/signalist/notifier/pipeline/store"
)

// Runner executes durable step workflows against a Store.
//
// The Runner is the core runtime that:
//   - Replays succeeded steps from their checkpoints instead of re-executing
//     them (at-most-once for non-idempotent side effects)
//   - Retries failed steps per RetryPolicy with backoff and jitter
//   - Isolates entities in a batch: one entity's exhausted retries never
//     abort its siblings
//   - Bounds each entity's pipeline with an overall deadline
//   - Records one outcome per entity; no error escapes the batch boundary
//
// Example:
//
//	st := store.NewMemStore()
//	runner := pipeline.New(st, emit.NewLogEmitter(os.Stdout, true), pipeline.Options{})
//
//	outcome, err := runner.Execute(ctx, store.Run{ID: runID, TriggerKind: store.TriggerEvent},
//	    pipeline.Entity{ID: user.Email},
//	    func(ctx context.Context, x *pipeline.Execution) error {
//	        intro, err := pipeline.RunAs(ctx, x, "generate-intro", generate)
//	        if err != nil {
//	            return err
//	        }
//	        _, err = x.Run(ctx, "send-email", func(ctx context.Context) (any, error) {
//	            return nil, mailer.Send(ctx, user.Email, intro)
//	        })
//	        return err
//	    })
type Runner struct {
	store   store.Store
	emitter emit.Emitter
	opts    Options
}

// Options configures Runner behavior. Zero values are valid: the runner
// falls back to DefaultRetryPolicy, no step timeout, a five minute entity
// deadline and sequential batch processing.
type Options struct {
	// Retry is the default retry policy for steps without an override.
	Retry RetryPolicy

	// StepTimeout bounds a single step attempt. Zero means unlimited.
	StepTimeout time.Duration

	// EntityTimeout bounds one entity's whole pipeline, independent of its
	// siblings, so an unbounded hang cannot stall the batch.
	// Zero applies the five minute default.
	EntityTimeout time.Duration

	// MaxParallel limits concurrent entity pipelines within a batch.
	// Values <= 1 process entities sequentially.
	MaxParallel int

	// Metrics receives execution metrics when non-nil.
	Metrics *Metrics
}

const defaultEntityTimeout = 5 * time.Minute

// Entity identifies one independent pipeline inside a run, typically a user.
// The ID namespaces the entity's step checkpoints within the run.
type Entity struct {
	ID string
}

// EntityPipeline is one entity's strictly sequential pipeline. It uses the
// Execution handle to run named steps; code between steps re-executes on
// replay, step computations do not.
type EntityPipeline func(ctx context.Context, x *Execution) error

// New creates a Runner. The emitter may be nil to disable events.
func New(st store.Store, emitter emit.Emitter, opts Options) *Runner {
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.EntityTimeout == 0 {
		opts.EntityTimeout = defaultEntityTimeout
	}
	return &Runner{store: st, emitter: emitter, opts: opts}
}

// Execute runs a single-entity workflow. It is ExecuteBatch with one entity.
func (r *Runner) Execute(ctx context.Context, run store.Run, entity Entity, pl EntityPipeline) (RunOutcome, error) {
	return r.ExecuteBatch(ctx, run, []Entity{entity}, pl)
}

// ExecuteBatch runs one pipeline per entity and aggregates outcomes.
//
// Entities are processed with bounded parallelism (Options.MaxParallel);
// result aggregation is positional and does not depend on completion order.
// A run that already exists in the store is resumed: entities whose steps
// all succeeded previously replay entirely from checkpoints with zero
// external calls.
//
// The returned error reports runner/store-level failures only; entity
// failures are captured in the outcome.
func (r *Runner) ExecuteBatch(ctx context.Context, run store.Run, entities []Entity, pl EntityPipeline) (RunOutcome, error) {
	if r.store == nil {
		return RunOutcome{}, &RunnerError{Message: "store is required", Code: "MISSING_STORE"}
	}
	if run.ID == "" {
		return RunOutcome{}, &RunnerError{Message: "run ID cannot be empty", Code: "MISSING_RUN_ID"}
	}

	if err := r.ensureRun(ctx, run); err != nil {
		return RunOutcome{}, err
	}

	r.emitter.Emit(emit.Event{
		RunID: run.ID,
		Msg:   emit.MsgRunStarted,
		Meta:  map[string]interface{}{"trigger": string(run.TriggerKind), "entities": len(entities)},
	})

	outcomes := make([]EntityOutcome, len(entities))

	g := new(errgroup.Group)
	if r.opts.MaxParallel > 1 {
		g.SetLimit(r.opts.MaxParallel)
	} else {
		g.SetLimit(1)
	}

	for i, entity := range entities {
		g.Go(func() error {
			outcomes[i] = r.runEntity(ctx, run.ID, entity, pl)
			return nil
		})
	}
	// Goroutines never return errors; failures land in their outcome slot.
	_ = g.Wait()

	status := aggregateStatus(outcomes)
	if err := r.store.UpdateRunStatus(ctx, run.ID, status); err != nil {
		return RunOutcome{}, &RunnerError{Message: "failed to update run status: " + err.Error(), Code: "STORE_ERROR"}
	}

	r.emitter.Emit(emit.Event{
		RunID: run.ID,
		Msg:   emit.MsgRunFinished,
		Meta:  map[string]interface{}{"status": string(status)},
	})
	r.opts.Metrics.RunFinished(string(run.TriggerKind), string(status))

	return RunOutcome{RunID: run.ID, Status: status, Entities: outcomes}, nil
}

// ensureRun creates the run record, or resumes it when it already exists.
// Resumption preserves partial progress from a crashed process: whatever
// status the run's step records reached is replayed, not recomputed.
func (r *Runner) ensureRun(ctx context.Context, run store.Run) error {
	err := r.store.CreateRun(ctx, run)
	if err != nil {
		var conflict *store.ConflictError
		if !errors.As(err, &conflict) {
			return &RunnerError{Message: "failed to create run: " + err.Error(), Code: "STORE_ERROR"}
		}
	}
	if err := r.store.UpdateRunStatus(ctx, run.ID, store.RunRunning); err != nil {
		return &RunnerError{Message: "failed to update run status: " + err.Error(), Code: "STORE_ERROR"}
	}
	return nil
}

// runEntity executes one entity's pipeline under its own deadline and
// converts any failure, including panics, into the entity's outcome.
func (r *Runner) runEntity(ctx context.Context, runID string, entity Entity, pl EntityPipeline) (outcome EntityOutcome) {
	outcome = EntityOutcome{EntityID: entity.ID, Status: OutcomeSucceeded}

	defer func() {
		if rec := recover(); rec != nil {
			outcome.Status = OutcomeFailed
			outcome.Error = (&RunnerError{Message: "entity pipeline panicked", Code: "PANIC"}).Error()
		}
		r.opts.Metrics.EntityOutcome(string(outcome.Status))
	}()

	entityCtx := ctx
	if r.opts.EntityTimeout > 0 {
		var cancel context.CancelFunc
		entityCtx, cancel = context.WithTimeout(ctx, r.opts.EntityTimeout)
		defer cancel()
	}

	x := &Execution{runner: r, runID: runID, entityID: entity.ID}
	if err := pl(entityCtx, x); err != nil {
		outcome.Status = OutcomeFailed
		outcome.Error = err.Error()
	}
	return outcome
}

// Execution binds a run and an entity. Pipelines use it to run named,
// checkpointed steps.
type Execution struct {
	runner   *Runner
	runID    string
	entityID string
}

// RunID returns the owning run's identifier.
func (x *Execution) RunID() string { return x.runID }

// EntityID returns the entity this execution is namespaced to.
func (x *Execution) EntityID() string { return x.entityID }

// Run executes the named step with the runner's default policy and timeout.
// See RunStep.
func (x *Execution) Run(ctx context.Context, name string, fn StepFunc) (json.RawMessage, error) {
	return x.RunStep(ctx, Step{Name: name, Fn: fn})
}

// RunStep executes a step with memoization and retry.
//
// Before invoking the computation, the store is consulted: an existing
// succeeded record for this (runID, namespaced step name) short-circuits
// the call and returns the cached payload. This is the at-most-once
// guarantee for non-idempotent steps — a welcome email already sent before
// a crash is not sent again on replay.
//
// On failure the step's retry policy decides whether to re-invoke after a
// backoff delay; when the attempt ceiling is exhausted (or the error is
// permanent) a failed record is written and a StepError returned.
func (x *Execution) RunStep(ctx context.Context, step Step) (json.RawMessage, error) {
	r := x.runner
	name := store.StepName(x.entityID, step.Name)

	record, err := r.store.Get(ctx, x.runID, name)
	switch {
	case err == nil && record.Status == store.StepSucceeded:
		r.emitter.Emit(emit.Event{
			RunID:    x.runID,
			EntityID: x.entityID,
			StepName: name,
			Msg:      emit.MsgStepMemoized,
			Meta:     map[string]interface{}{"memoized": true},
		})
		r.opts.Metrics.MemoizedHit(step.Name)
		return record.Payload, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, &RunnerError{Message: "failed to read step record: " + err.Error(), Code: "STORE_ERROR"}
	}

	policy := r.opts.Retry
	if step.Retry != nil {
		policy = *step.Retry
	}
	if err := policy.Validate(); err != nil {
		return nil, &RunnerError{Message: "invalid retry policy for step " + step.Name, Code: "INVALID_POLICY"}
	}

	// A crashed process resumes counting from the persisted attempt, so the
	// ceiling holds across restarts.
	attempt := record.Attempt

	for {
		attempt++
		r.emitter.Emit(emit.Event{
			RunID:    x.runID,
			EntityID: x.entityID,
			StepName: name,
			Attempt:  attempt,
			Msg:      emit.MsgStepStarted,
		})

		started := time.Now()
		result, runErr := invokeWithTimeout(ctx, step.Fn, step.Timeout, r.opts.StepTimeout)
		elapsed := time.Since(started)

		if runErr == nil {
			payload, marshalErr := json.Marshal(result)
			if marshalErr != nil {
				runErr = Permanent("marshal step result", marshalErr)
			} else {
				return x.commit(ctx, step.Name, name, attempt, payload, elapsed)
			}
		}

		r.opts.Metrics.ObserveStep(step.Name, "error", elapsed)

		if policy.Retryable != nil && policy.Retryable(runErr) && attempt < policy.MaxAttempts {
			delay := computeBackoff(attempt-1, policy.BaseDelay, policy.MaxDelay, nil)
			x.putAttempt(ctx, name, store.StepPending, attempt, runErr)
			r.emitter.Emit(emit.Event{
				RunID:    x.runID,
				EntityID: x.entityID,
				StepName: name,
				Attempt:  attempt,
				Msg:      emit.MsgStepRetrying,
				Meta:     map[string]interface{}{"error": runErr.Error(), "delay_ms": delay.Milliseconds()},
			})
			r.opts.Metrics.Retry(step.Name)

			select {
			case <-ctx.Done():
				// Cancellation preserves the pending record; the next run
				// resumes from it.
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		x.putAttempt(ctx, name, store.StepFailed, attempt, runErr)
		r.emitter.Emit(emit.Event{
			RunID:    x.runID,
			EntityID: x.entityID,
			StepName: name,
			Attempt:  attempt,
			Msg:      emit.MsgStepFailed,
			Meta:     map[string]interface{}{"error": runErr.Error()},
		})
		return nil, &StepError{RunID: x.runID, StepName: name, Attempts: attempt, Cause: runErr}
	}
}

// commit persists the succeeded record. A concurrent writer winning the
// race surfaces as ErrAlreadySucceeded; the stored payload wins then, which
// keeps the at-most-once contract intact.
func (x *Execution) commit(ctx context.Context, baseName, name string, attempt int, payload json.RawMessage, elapsed time.Duration) (json.RawMessage, error) {
	r := x.runner

	err := r.store.Put(ctx, x.runID, name, store.StepRecord{
		Status:  store.StepSucceeded,
		Attempt: attempt,
		Payload: payload,
	})
	if errors.Is(err, store.ErrAlreadySucceeded) {
		stored, getErr := r.store.Get(ctx, x.runID, name)
		if getErr != nil {
			return nil, &RunnerError{Message: "failed to read winning step record: " + getErr.Error(), Code: "STORE_ERROR"}
		}
		return stored.Payload, nil
	}
	if err != nil {
		return nil, &RunnerError{Message: "failed to persist step result: " + err.Error(), Code: "STORE_ERROR"}
	}

	r.emitter.Emit(emit.Event{
		RunID:    x.runID,
		EntityID: x.entityID,
		StepName: name,
		Attempt:  attempt,
		Msg:      emit.MsgStepSucceeded,
		Meta:     map[string]interface{}{"duration_ms": elapsed.Milliseconds()},
	})
	r.opts.Metrics.ObserveStep(baseName, "success", elapsed)
	return payload, nil
}

// putAttempt records non-terminal progress. Store failures here are not
// fatal: the attempt continues and the worst case is a lost attempt count.
func (x *Execution) putAttempt(ctx context.Context, name string, status store.StepStatus, attempt int, cause error) {
	_ = x.runner.store.Put(ctx, x.runID, name, store.StepRecord{
		Status:    status,
		Attempt:   attempt,
		LastError: cause.Error(),
	})
}

// RunAs runs a typed step and decodes the (possibly cached) payload into T.
// It is the typed sugar over Execution.Run for steps whose result feeds a
// later step.
func RunAs[T any](ctx context.Context, x *Execution, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T

	payload, err := x.Run(ctx, name, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return out, err
	}

	if err := json.Unmarshal(payload, &out); err != nil {
		return out, Permanent("decode step payload", err)
	}
	return out, nil
}
