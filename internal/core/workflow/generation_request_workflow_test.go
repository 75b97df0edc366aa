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

package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-script-factory/internal/cloud"
	"github.com/jaycherian/gcp-go-script-factory/internal/core/model"
	"github.com/jaycherian/gcp-go-script-factory/internal/core/services"
	"github.com/jaycherian/gcp-go-script-factory/internal/core/workflow"
	"github.com/jaycherian/gcp-go-script-factory/internal/testutil"
)

type fakeStarter struct {
	err      error
	requests []*model.GenerationRequest
}

func (f *fakeStarter) Start(_ context.Context, req *model.GenerationRequest) error {
	f.requests = append(f.requests, req)
	return f.err
}

func TestGenerationRequestWorkflowStartsRun(t *testing.T) {
	starter := &fakeStarter{}
	w := workflow.NewGenerationRequestWorkflow(starter)

	ok := cloud.HandleMessage(ctx, w, []byte(testutil.GetTestGenerationMessage()))
	assert.True(t, ok)
	require.Len(t, starter.requests, 1)
	req := starter.requests[0]
	assert.Equal(t, "user-pubsub", req.UserID)
	assert.Equal(t, "5f0b7a8e-3f7e-4d5c-9d7e-2f1a3b4c5d6e", req.RequestID)
	assert.Equal(t, 2, req.BatchSize)
}

func TestGenerationRequestWorkflowAssignsRequestID(t *testing.T) {
	starter := &fakeStarter{}
	w := workflow.NewGenerationRequestWorkflow(starter)

	assert.True(t, cloud.HandleMessage(ctx, w, []byte(`{"user_id":"u1","topic":"t"}`)))
	require.Len(t, starter.requests, 1)
	assert.NotEmpty(t, starter.requests[0].RequestID)
}

func TestGenerationRequestWorkflowAcksValidationFailures(t *testing.T) {
	starter := &fakeStarter{err: model.NewValidationFailure("too long")}
	w := workflow.NewGenerationRequestWorkflow(starter)
	assert.True(t, cloud.HandleMessage(ctx, w, []byte(testutil.GetTestGenerationMessage())))
}

func TestGenerationRequestWorkflowFailures(t *testing.T) {
	busy := &fakeStarter{err: model.ErrSessionRunning}
	assert.False(t, cloud.HandleMessage(ctx, workflow.NewGenerationRequestWorkflow(busy), []byte(testutil.GetTestGenerationMessage())))

	broken := &fakeStarter{err: errors.New("ledger unavailable")}
	assert.False(t, cloud.HandleMessage(ctx, workflow.NewGenerationRequestWorkflow(broken), []byte(testutil.GetTestGenerationMessage())))

	unused := &fakeStarter{}
	w := workflow.NewGenerationRequestWorkflow(unused)
	assert.False(t, cloud.HandleMessage(ctx, w, []byte("not json")))
	assert.False(t, cloud.HandleMessage(ctx, w, []byte(`{"topic":"no user"}`)))
	assert.Empty(t, unused.requests)
}

func TestGenerationRequestWorkflowAcksRedeliveryWithoutRerun(t *testing.T) {
	config := testutil.NewTestConfig()
	fake := &testutil.FakeGenerator{Respond: func(call int, _ string) (string, error) {
		return testutil.ScriptJSON(testutil.UnitTitle(call)), nil
	}}
	units, err := workflow.NewScriptUnitWorkflow(config, "sequential", fake)
	require.NoError(t, err)
	ledger := services.NewMemoryLedger(10, time.Hour)
	svc := services.NewGenerationService("sequential", ledger,
		services.NewOrchestrator("sequential", config.Variants["sequential"], config.Limits, units, ledger))
	w := workflow.NewGenerationRequestWorkflow(svc)

	assert.True(t, cloud.HandleMessage(ctx, w, []byte(testutil.GetTestGenerationMessage())))
	svc.Wait()
	assert.True(t, cloud.HandleMessage(ctx, w, []byte(testutil.GetTestGenerationMessage())), "a redelivery is acked")
	svc.Wait()

	assert.Equal(t, 2, fake.Calls())
	b, err := ledger.Balance(ctx, "user-pubsub")
	require.NoError(t, err)
	assert.Equal(t, 8, b)
}
