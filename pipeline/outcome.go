package pipeline

import "github.com/signalist/notifier/pipeline/store"

// OutcomeStatus tags a single entity's result within a run.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
)

// EntityOutcome is one entity's result. Every entity in a batch yields
// exactly one outcome; no failure is silently dropped.
type EntityOutcome struct {
	EntityID string        `json:"entityId"`
	Status   OutcomeStatus `json:"status"`
	Error    string        `json:"error,omitempty"`
}

// RunOutcome summarizes a run: its terminal status plus per-entity results
// in the order the entities were submitted (not completion order).
type RunOutcome struct {
	RunID    string          `json:"runId"`
	Status   store.RunStatus `json:"status"`
	Entities []EntityOutcome `json:"entities"`
}

// Succeeded reports whether every entity in the run succeeded.
func (o RunOutcome) Succeeded() bool {
	return o.Status == store.RunSucceeded
}

// Failed returns the outcomes of entities that failed.
func (o RunOutcome) Failed() []EntityOutcome {
	var failed []EntityOutcome
	for _, e := range o.Entities {
		if e.Status == OutcomeFailed {
			failed = append(failed, e)
		}
	}
	return failed
}

// aggregateStatus folds entity outcomes into the run's terminal status:
// all succeeded -> succeeded, some -> partial, none -> failed.
// An empty batch succeeds vacuously.
func aggregateStatus(outcomes []EntityOutcome) store.RunStatus {
	if len(outcomes) == 0 {
		return store.RunSucceeded
	}

	succeeded := 0
	for _, o := range outcomes {
		if o.Status == OutcomeSucceeded {
			succeeded++
		}
	}

	switch succeeded {
	case len(outcomes):
		return store.RunSucceeded
	case 0:
		return store.RunFailed
	default:
		return store.RunPartial
	}
}
