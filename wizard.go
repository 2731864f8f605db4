package main

import (
	"fmt"
	"slices"
)

// Sync wizard steps, in order.
const (
	StepSource = "source"
	StepTarget = "target"
	StepScope  = "scope"
	StepReview = "review"
	StepDone   = "done"
)

var syncSteps = []string{StepSource, StepTarget, StepScope, StepReview, StepDone}

// Datasets a sync can copy.
const (
	DatasetGifts  = "gifts"
	DatasetEvents = "events"
)

// Wizard actions.
const (
	ActionNext   = "next"
	ActionBack   = "back"
	ActionSubmit = "submit"
	ActionReset  = "reset"
)

// SyncState is the whole data-sync workflow. It round-trips through the
// client unchanged, so every step can be replayed from JSON.
type SyncState struct {
	Step      string      `json:"step"`
	Source    string      `json:"source,omitempty"`
	Target    string      `json:"target,omitempty"`
	Datasets  []string    `json:"datasets,omitempty"`
	Overwrite bool        `json:"overwrite,omitempty"`
	Result    *SyncCounts `json:"result,omitempty"`
}

// SyncAction moves the wizard. Form fields are read only for the step being
// left and ignored otherwise.
type SyncAction struct {
	Action    string   `json:"action"`
	Source    string   `json:"source,omitempty"`
	Target    string   `json:"target,omitempty"`
	Datasets  []string `json:"datasets,omitempty"`
	Overwrite bool     `json:"overwrite,omitempty"`
}

// NewSyncState returns the wizard's initial state.
func NewSyncState() SyncState {
	return SyncState{Step: StepSource}
}

// Advance applies a to s and returns the next state. Validation failures
// leave the state unchanged and return ErrInvalid.
func (c *Console) Advance(s SyncState, a SyncAction) (SyncState, error) {
	if s.Step == "" {
		s.Step = StepSource
	}
	idx := slices.Index(syncSteps, s.Step)
	if idx < 0 {
		return s, invalidf("unknown step %q", s.Step)
	}

	switch a.Action {
	case ActionReset:
		return NewSyncState(), nil

	case ActionBack:
		if s.Step == StepSource || s.Step == StepDone {
			return s, fmt.Errorf("cannot go back from %s: %w", s.Step, ErrInvalidState)
		}
		s.Step = syncSteps[idx-1]
		return s, nil

	case ActionNext:
		envs := c.Environments()
		next := s
		switch s.Step {
		case StepSource:
			if !slices.Contains(envs, a.Source) {
				return s, invalidf("unknown source environment %q", a.Source)
			}
			next.Source = a.Source
		case StepTarget:
			if !slices.Contains(envs, a.Target) {
				return s, invalidf("unknown target environment %q", a.Target)
			}
			if a.Target == s.Source {
				return s, invalidf("target must differ from source")
			}
			next.Target = a.Target
		case StepScope:
			if len(a.Datasets) == 0 {
				return s, invalidf("select at least one dataset")
			}
			for _, ds := range a.Datasets {
				if ds != DatasetGifts && ds != DatasetEvents {
					return s, invalidf("unknown dataset %q", ds)
				}
			}
			next.Datasets = slices.Compact(slices.Sorted(slices.Values(a.Datasets)))
			next.Overwrite = a.Overwrite
		default:
			return s, fmt.Errorf("no next step from %s: %w", s.Step, ErrInvalidState)
		}
		next.Step = syncSteps[idx+1]
		return next, nil

	case ActionSubmit:
		if s.Step != StepReview {
			return s, fmt.Errorf("submit is only allowed at review, not %s: %w", s.Step, ErrInvalidState)
		}
		// The state comes back from the client; check it as a whole.
		if s.Source == s.Target || len(s.Datasets) == 0 {
			return s, invalidf("incomplete sync state")
		}
		counts, err := c.syncData(s.Source, s.Target, s.Datasets, s.Overwrite)
		if err != nil {
			return s, err
		}
		s.Step = StepDone
		s.Result = &counts
		return s, nil
	}
	return s, invalidf("unknown action %q", a.Action)
}
