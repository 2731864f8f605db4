package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func advance(t *testing.T, c *Console, s SyncState, a SyncAction) SyncState {
	t.Helper()
	next, err := c.Advance(s, a)
	require.NoError(t, err)
	return next
}

func TestWizard_HappyPath(t *testing.T) {
	c := newSeededConsole(t)
	s := NewSyncState()

	s = advance(t, c, s, SyncAction{Action: ActionNext, Source: "dev"})
	assert.Equal(t, StepTarget, s.Step)
	s = advance(t, c, s, SyncAction{Action: ActionNext, Target: "prod"})
	assert.Equal(t, StepScope, s.Step)
	s = advance(t, c, s, SyncAction{Action: ActionNext, Datasets: []string{DatasetEvents, DatasetGifts, DatasetEvents}})
	assert.Equal(t, StepReview, s.Step)
	assert.Equal(t, []string{DatasetEvents, DatasetGifts}, s.Datasets)

	s = advance(t, c, s, SyncAction{Action: ActionSubmit})
	assert.Equal(t, StepDone, s.Step)
	require.NotNil(t, s.Result)
	assert.Equal(t, SyncCounts{Gifts: 1, Events: 1}, *s.Result)
	assert.Len(t, c.ListGifts(GiftFilter{Env: "prod", Query: "dragon"}), 1)

	s = advance(t, c, s, SyncAction{Action: ActionReset})
	assert.Equal(t, NewSyncState(), s)
}

func TestWizard_StateRoundTripsThroughJSON(t *testing.T) {
	c := newSeededConsole(t)
	s := advance(t, c, NewSyncState(), SyncAction{Action: ActionNext, Source: "prod"})
	s = advance(t, c, s, SyncAction{Action: ActionNext, Target: "dev"})

	data, err := json.Marshal(s)
	require.NoError(t, err)
	var restored SyncState
	require.NoError(t, json.Unmarshal(data, &restored))

	next := advance(t, c, restored, SyncAction{Action: ActionNext, Datasets: []string{DatasetGifts}, Overwrite: true})
	assert.Equal(t, StepReview, next.Step)
	assert.Equal(t, "prod", next.Source)
	assert.Equal(t, "dev", next.Target)
	assert.True(t, next.Overwrite)
}

func TestWizard_ValidationKeepsState(t *testing.T) {
	c := newSeededConsole(t)
	s := advance(t, c, NewSyncState(), SyncAction{Action: ActionNext, Source: "dev"})

	tests := []struct {
		name   string
		state  SyncState
		action SyncAction
		err    error
	}{
		{"unknown source", NewSyncState(), SyncAction{Action: ActionNext, Source: "qa"}, ErrInvalid},
		{"same target", s, SyncAction{Action: ActionNext, Target: "dev"}, ErrInvalid},
		{"unknown target", s, SyncAction{Action: ActionNext, Target: "qa"}, ErrInvalid},
		{"no datasets", SyncState{Step: StepScope, Source: "dev", Target: "prod"}, SyncAction{Action: ActionNext}, ErrInvalid},
		{"bad dataset", SyncState{Step: StepScope, Source: "dev", Target: "prod"}, SyncAction{Action: ActionNext, Datasets: []string{"players"}}, ErrInvalid},
		{"back from source", NewSyncState(), SyncAction{Action: ActionBack}, ErrInvalidState},
		{"next from review", SyncState{Step: StepReview}, SyncAction{Action: ActionNext}, ErrInvalidState},
		{"submit early", s, SyncAction{Action: ActionSubmit}, ErrInvalidState},
		{"forged review", SyncState{Step: StepReview, Source: "dev", Target: "dev", Datasets: []string{DatasetGifts}}, SyncAction{Action: ActionSubmit}, ErrInvalid},
		{"unknown step", SyncState{Step: "launch"}, SyncAction{Action: ActionNext}, ErrInvalid},
		{"unknown action", s, SyncAction{Action: "jump"}, ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Advance(tt.state, tt.action)
			assert.ErrorIs(t, err, tt.err)
			want := tt.state
			if want.Step == "" {
				want.Step = StepSource
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestWizard_Back(t *testing.T) {
	c := newSeededConsole(t)
	s := SyncState{Step: StepReview, Source: "dev", Target: "prod", Datasets: []string{DatasetGifts}}
	s = advance(t, c, s, SyncAction{Action: ActionBack})
	assert.Equal(t, StepScope, s.Step)
	assert.Equal(t, []string{DatasetGifts}, s.Datasets, "values survive going back")
}
