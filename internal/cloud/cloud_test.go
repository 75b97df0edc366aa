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

package cloud_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"google.golang.org/genai"

	"github.com/jaycherian/gcp-go-script-factory/internal/cloud"
	"github.com/jaycherian/gcp-go-script-factory/internal/core/cor"
	"github.com/jaycherian/gcp-go-script-factory/internal/testutil"
)

func TestLoadConfigLayersRuntimeOverlay(t *testing.T) {
	dir := t.TempDir()
	base := `
default_variant = "sequential"

[application]
name = "script-factory"
backend = "gemini"

[limits]
max_duration = 15
max_shot_count = 5

[variants.sequential]
kind = "script"
mode = "per_unit"
unit_cost = 1

[prompt_templates]
script_unit = "topic={{.Topic}}"
`
	overlay := `
[application]
api_key = "overlay-key"

[limits]
max_duration = 30
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.toml"), []byte(base), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local.toml"), []byte(overlay), 0o600))
	testutil.HandleErr(testutil.SetupOS(dir, "local"), t)

	config := cloud.NewConfig()
	require.NoError(t, cloud.LoadConfig(config))

	assert.Equal(t, "gemini", config.Application.Backend)
	assert.Equal(t, "overlay-key", config.Application.APIKey)
	assert.Equal(t, 30, config.Limits.MaxDuration)
	assert.Equal(t, 5, config.Limits.MaxShotCount)
	assert.Equal(t, 10, config.Limits.MaxBatchSize, "defaults survive when not overridden")
	assert.Equal(t, 1500*time.Millisecond, config.Limits.InterUnitDelay())
	assert.Equal(t, "per_unit", config.Variants["sequential"].Mode)
	assert.Equal(t, 3, config.Variants["sequential"].Cost(3))
	assert.Equal(t, "topic={{.Topic}}", config.PromptTemplates["script_unit"])
}

func TestLoadConfigRejectsInvalidToml(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.toml"), []byte("[application\nname="), 0o600))
	testutil.HandleErr(testutil.SetupOS(dir, "test"), t)

	assert.Error(t, cloud.LoadConfig(cloud.NewConfig()))
}

func TestNewGenAIClientConfig(t *testing.T) {
	gemini := cloud.NewGenAIClientConfig(cloud.Application{Backend: cloud.BackendGemini, APIKey: "k", EndpointURL: "http://localhost:9999"})
	assert.Equal(t, genai.BackendGeminiAPI, gemini.Backend)
	assert.Equal(t, "k", gemini.APIKey)
	assert.Equal(t, "http://localhost:9999", gemini.HTTPOptions.BaseURL)

	vertex := cloud.NewGenAIClientConfig(cloud.Application{Backend: cloud.BackendVertex, GoogleProjectId: "p", GoogleLocation: "us-central1"})
	assert.Equal(t, genai.BackendVertexAI, vertex.Backend)
	assert.Equal(t, "p", vertex.Project)
}

func TestNewGenerateContentConfig(t *testing.T) {
	cfg := cloud.NewGenerateContentConfig(cloud.VertexAiLLMModel{Temperature: 0.85, MaxTokens: 8192, SystemInstructions: "You are a creative director."})
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.85, *cfg.Temperature, 0.0001)
	assert.Nil(t, cfg.TopP)
	assert.Equal(t, int32(8192), cfg.MaxOutputTokens)
	assert.Equal(t, "You are a creative director.", cfg.SystemInstruction.Parts[0].Text)

	model := cloud.NewQuotaAwareModel(cfg, "gemini-2.0-flash", nil, 2)
	scripted := model.WithResponseSchema(cloud.SchemaForKind("script"))
	assert.Equal(t, "application/json", scripted.GenerativeContentConfig.ResponseMIMEType)
	assert.Equal(t, genai.TypeArray, scripted.GenerativeContentConfig.ResponseSchema.Type)
	assert.Nil(t, cfg.ResponseSchema, "original config is untouched")
	assert.Same(t, model.RateLimit, scripted.RateLimit)
	assert.Nil(t, cloud.SchemaForKind("unknown"))
}

func counters() (in, out, retry noop.Int64Counter) {
	return noop.Int64Counter{}, noop.Int64Counter{}, noop.Int64Counter{}
}

func fastPolicy(attempts int) cloud.RetryPolicy {
	return cloud.RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond}
}

func TestGenerateMultiModalResponseTrimsFence(t *testing.T) {
	gen := &testutil.FakeGenerator{Respond: func(int, string) (string, error) {
		return "```json\n[{\"a\":1}]\n```", nil
	}}
	in, out, retry := counters()
	value, err := cloud.GenerateMultiModalResponse(context.Background(), in, out, retry, fastPolicy(1), gen, cloud.NewTextContent("p"))
	require.NoError(t, err)
	assert.Equal(t, `[{"a":1}]`, value)
	assert.Equal(t, []string{"p"}, gen.Prompts())
}

func TestGenerateMultiModalResponseRetries(t *testing.T) {
	gen := &testutil.FakeGenerator{Respond: func(call int, _ string) (string, error) {
		if call < 3 {
			return "", errors.New("Error 500, Message: internal")
		}
		return `[]`, nil
	}}
	in, out, retry := counters()
	value, err := cloud.GenerateMultiModalResponse(context.Background(), in, out, retry, fastPolicy(3), gen, cloud.NewTextContent("p"))
	require.NoError(t, err)
	assert.Equal(t, `[]`, value)
	assert.Equal(t, 3, gen.Calls())
}

func TestGenerateMultiModalResponseGivesUp(t *testing.T) {
	gen := &testutil.FakeGenerator{Respond: func(int, string) (string, error) {
		return "", nil
	}}
	in, out, retry := counters()
	_, err := cloud.GenerateMultiModalResponse(context.Background(), in, out, retry, fastPolicy(3), gen, cloud.NewTextContent("p"))
	assert.ErrorIs(t, err, cloud.ErrEmptyResponse)
	assert.Equal(t, 3, gen.Calls())
}

func TestGenerateMultiModalResponseBacksOffBeforeEachRetry(t *testing.T) {
	gen := &testutil.FakeGenerator{Respond: func(int, string) (string, error) {
		return "", errors.New("Error 500, Message: internal")
	}}
	in, out, retry := counters()
	policy := cloud.RetryPolicy{MaxAttempts: 3, BaseDelay: 5 * time.Millisecond}

	start := time.Now()
	_, err := cloud.GenerateMultiModalResponse(context.Background(), in, out, retry, policy, gen, cloud.NewTextContent("p"))
	assert.Error(t, err)
	// 10ms before the second attempt and 20ms before the third
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 3, gen.Calls())
}

func TestGenerateMultiModalResponseStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := &testutil.FakeGenerator{Respond: func(int, string) (string, error) {
		cancel()
		return "", errors.New("aborted")
	}}
	in, out, retry := counters()
	_, err := cloud.GenerateMultiModalResponse(ctx, in, out, retry, fastPolicy(3), gen, cloud.NewTextContent("p"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, gen.Calls(), "no retry after cancellation")

	_, err = cloud.GenerateMultiModalResponse(ctx, in, out, retry, fastPolicy(3), gen, cloud.NewTextContent("p"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, gen.Calls(), "a cancelled context issues no call")
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := cloud.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
	assert.Equal(t, 2*time.Second, p.Backoff(1), "wait before the first retry")
	assert.Equal(t, 4*time.Second, p.Backoff(2), "wait before the second retry")
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, cloud.SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.ErrorIs(t, cloud.SleepContext(ctx, time.Hour), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

type recordingCommand struct {
	cor.BaseCommand
	got  string
	fail bool
}

func (r *recordingCommand) Execute(context cor.Context) {
	r.got = context.Get(r.GetInputParam()).(string)
	if r.fail {
		r.Fail(context, errors.New("rejected"))
		return
	}
	r.Succeed(context, r.got)
}

func TestHandleMessage(t *testing.T) {
	ok := &recordingCommand{BaseCommand: *cor.NewBaseCommand("ok")}
	assert.True(t, cloud.HandleMessage(context.Background(), ok, []byte("body")))
	assert.Equal(t, "body", ok.got)

	bad := &recordingCommand{BaseCommand: *cor.NewBaseCommand("bad"), fail: true}
	assert.False(t, cloud.HandleMessage(context.Background(), bad, []byte("body")))
}
