// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package model_test covers request validation, the word band heuristic and
// the session state machine.
package model_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-script-factory/internal/core/model"
)

var limits = model.Limits{MaxDuration: 15, MaxShotCount: 5, MaxBatchSize: 10}

func validRequest() *model.GenerationRequest {
	r := &model.GenerationRequest{Topic: " เก็บเงิน ", Duration: 15, ShotCount: 5, BatchSize: 3}
	r.Normalize()
	return r
}

func TestNormalizeDefaults(t *testing.T) {
	r := &model.GenerationRequest{Topic: "  topic  "}
	r.Normalize()
	assert.Equal(t, "topic", r.Topic)
	assert.Equal(t, model.DefaultStyle, r.Style)
	assert.Equal(t, 1, r.BatchSize)
}

func TestValidateAcceptsRequestAtCeiling(t *testing.T) {
	assert.NoError(t, validRequest().Validate(model.KindScript, limits, true))
}

// Every combination over the ceiling must be rejected as a validation failure.
func TestValidateRejectsOverCeiling(t *testing.T) {
	cases := []struct{ duration, shots int }{{16, 5}, {15, 6}, {30, 10}, {60, 1}}
	for _, c := range cases {
		t.Run(fmt.Sprintf("%ds_%dshots", c.duration, c.shots), func(t *testing.T) {
			r := validRequest()
			r.Duration, r.ShotCount = c.duration, c.shots
			err := r.Validate(model.KindScript, limits, true)
			var failure *model.Failure
			require.ErrorAs(t, err, &failure)
			assert.Equal(t, model.FailureValidation, failure.Kind)
			assert.Contains(t, failure.Message, "15")

			// Variants that do not enforce the ceiling accept the same input.
			assert.NoError(t, r.Validate(model.KindScript, limits, false))
		})
	}
}

func TestValidateRejectsBadInput(t *testing.T) {
	empty := validRequest()
	empty.Topic = ""
	assert.Error(t, empty.Validate(model.KindScript, limits, true))

	batch := validRequest()
	batch.BatchSize = 11
	assert.Error(t, batch.Validate(model.KindScript, limits, true))

	zero := validRequest()
	zero.Duration = 0
	assert.Error(t, zero.Validate(model.KindScript, limits, false))

	// Storyboards do not use duration or shot count.
	assert.NoError(t, zero.Validate(model.KindStoryboard, limits, true))
}

func TestWordBand(t *testing.T) {
	minWords, maxWords := model.WordBand(15)
	assert.Equal(t, 30, minWords)
	assert.Equal(t, 42, maxWords)

	minWords, maxWords = model.WordBand(3)
	assert.Equal(t, 6, minWords)
	assert.Equal(t, 9, maxWords)

	minWords, maxWords = model.WordBand(10)
	assert.Equal(t, 20, minWords)
	assert.Equal(t, 28, maxWords)
}

func TestUnitRequest(t *testing.T) {
	r := validRequest()
	unit := r.Unit(1, 1)
	assert.Equal(t, 2, unit.UnitNumber())
	assert.Equal(t, 3, unit.TotalUnits)
	assert.Equal(t, 3, unit.ShotSeconds)
	assert.Equal(t, 30, unit.MinWords)
	assert.Equal(t, 42, unit.MaxWords)
	assert.Equal(t, "เก็บเงิน", unit.Topic)
}

func TestProgress(t *testing.T) {
	assert.Equal(t, 0, model.Progress(0, 3))
	assert.Equal(t, 33, model.Progress(1, 3))
	assert.Equal(t, 66, model.Progress(2, 3))
	assert.Equal(t, 100, model.Progress(3, 3))
	assert.Equal(t, 14, model.Progress(1, 7))
}

func TestEstimatedDuration(t *testing.T) {
	s := model.GetExampleScript()
	assert.Equal(t, 9, s.EstimatedDuration())

	s.Shots = []model.BilingualText{{TH: "no timing"}, {EN: "none either"}}
	assert.Equal(t, 11, s.EstimatedDuration())
}

func TestSessionLifecycle(t *testing.T) {
	s := model.NewSession()
	assert.Equal(t, model.StateIdle, s.State())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Begin("req-1", "sequential", cancel))
	assert.ErrorIs(t, s.Begin("req-2", "sequential", cancel), model.ErrSessionRunning)
	assert.ErrorIs(t, s.Reset(), model.ErrSessionRunning)

	s.SetProgress(50)
	s.Append(model.GetExampleScript())
	s.Finish()

	snap := s.Snapshot()
	assert.Equal(t, model.StateFinished, snap.State)
	assert.Equal(t, 100, snap.Progress)
	assert.Len(t, snap.Results, 1)
	assert.Error(t, ctx.Err(), "terminal state releases the run context")

	// Writes after the run ended are ignored.
	s.Append(model.GetExampleScript())
	assert.Len(t, s.Snapshot().Results, 1)

	require.NoError(t, s.Reset())
	assert.Equal(t, model.StateIdle, s.State())
	assert.Empty(t, s.Snapshot().Results)
}

func TestSessionWarn(t *testing.T) {
	s := model.NewSession()
	require.NoError(t, s.Begin("req-1", "sequential", func() {}))
	s.Finish()

	s.Warn("req-1", model.SettlementWarning)
	s.Warn("req-0", "stale")
	assert.Equal(t, []string{model.SettlementWarning}, s.Snapshot().Warnings)

	require.NoError(t, s.Begin("req-2", "sequential", func() {}))
	assert.Empty(t, s.Snapshot().Warnings, "a new run starts without warnings")
}

func TestSessionCancel(t *testing.T) {
	s := model.NewSession()
	assert.False(t, s.Cancel())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Begin("req-1", "sequential", cancel))
	s.Append(model.GetExampleScript())
	s.SetProgress(50)

	assert.True(t, s.Cancel())
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.Equal(t, model.StateRunning, s.State(), "state changes once the run observes the signal")

	s.MarkCancelled()
	snap := s.Snapshot()
	assert.Equal(t, model.StateCancelled, snap.State)
	assert.Equal(t, 0, snap.Progress)
	assert.Len(t, snap.Results, 1)

	// A new run starts from a clean slate.
	require.NoError(t, s.Begin("req-2", "sequential", func() {}))
	assert.Empty(t, s.Snapshot().Results)
}

func TestSessionFail(t *testing.T) {
	s := model.NewSession()
	require.NoError(t, s.Begin("req-1", "batch", func() {}))
	s.SetProgress(40)
	s.Fail(model.ClassifyFailure(model.ErrTransport))

	snap := s.Snapshot()
	assert.Equal(t, model.StateFailed, snap.State)
	assert.Equal(t, 40, snap.Progress)
	require.NotNil(t, snap.Failure)
	assert.Equal(t, model.FailureConnection, snap.Failure.Kind)
}

func TestClassifyFailure(t *testing.T) {
	assert.Nil(t, model.ClassifyFailure(nil))

	cancelled := model.ClassifyFailure(fmt.Errorf("call: %w", context.Canceled))
	assert.Equal(t, model.FailureCancelled, cancelled.Kind)

	malformed := model.ClassifyFailure(fmt.Errorf("unit 1: %w", model.ErrMalformedResponse))
	assert.Equal(t, model.FailureConnection, malformed.Kind)
	assert.Equal(t, model.ConnectionMessage, malformed.Message)

	badKey := model.ClassifyFailure(errors.New("Error 400, Message: API key not valid"))
	assert.Equal(t, model.FailureConnection, badKey.Kind)
	assert.Contains(t, badKey.Message, model.APIKeyHint)

	unknown := model.ClassifyFailure(errors.New("boom"))
	assert.Equal(t, model.FailureUnknown, unknown.Kind)
	assert.Equal(t, model.UnknownPrefix+"boom", unknown.Message)

	validation := model.NewValidationFailure("nope")
	assert.Same(t, validation, model.ClassifyFailure(fmt.Errorf("start: %w", validation)))
}
