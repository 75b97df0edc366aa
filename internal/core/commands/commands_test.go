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

package commands_test

import (
	"context"
	"errors"
	"testing"
	"text/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-script-factory/internal/cloud"
	"github.com/jaycherian/gcp-go-script-factory/internal/core/commands"
	"github.com/jaycherian/gcp-go-script-factory/internal/core/cor"
	"github.com/jaycherian/gcp-go-script-factory/internal/core/model"
	"github.com/jaycherian/gcp-go-script-factory/internal/testutil"
)

func unit() *model.UnitRequest {
	req := &model.GenerationRequest{UserID: "u1", Topic: "กาแฟ", Duration: 10, ShotCount: 4, BatchSize: 2}
	req.Normalize()
	return req.Unit(0, 1)
}

func TestScriptGeneratorPrompt(t *testing.T) {
	tmpl := template.Must(template.New("unit").Parse(testutil.ScriptUnitTemplate))
	gen := commands.NewScriptGenerator("gen", model.KindScript, &testutil.FakeGenerator{}, tmpl, cloud.RetryPolicy{MaxAttempts: 1})

	prompt, err := gen.Prompt(unit())
	require.NoError(t, err)
	assert.Contains(t, prompt, "topic=กาแฟ")
	assert.Contains(t, prompt, "style="+model.DefaultStyle)
	assert.Contains(t, prompt, "clip=1/2")
	assert.Contains(t, prompt, "words=20-28")
	assert.Contains(t, prompt, "timing=[0-3s]")

	params := gen.GenerateParams(unit())
	assert.Contains(t, params.Styles, model.StylePresets[0])
}

func TestScriptGeneratorExecute(t *testing.T) {
	tmpl := template.Must(template.New("unit").Parse(testutil.ScriptUnitTemplate))
	fake := &testutil.FakeGenerator{Respond: func(int, string) (string, error) { return "```json\n[]\n```", nil }}
	gen := commands.NewScriptGenerator("gen", model.KindScript, fake, tmpl, cloud.RetryPolicy{MaxAttempts: 1})

	chCtx := cor.NewContextWithInput(context.Background(), unit())
	gen.Execute(chCtx)
	require.NoError(t, chCtx.Err())
	assert.Equal(t, "[]", chCtx.Get(cor.CtxOut))

	wrong := cor.NewContextWithInput(context.Background(), "not a unit")
	gen.Execute(wrong)
	assert.Error(t, wrong.Err())
}

func TestScriptGeneratorTransportError(t *testing.T) {
	tmpl := template.Must(template.New("unit").Parse(testutil.ScriptUnitTemplate))
	fake := &testutil.FakeGenerator{Respond: func(int, string) (string, error) { return "", errors.New("aborted") }}
	gen := commands.NewScriptGenerator("gen", model.KindScript, fake, tmpl, cloud.RetryPolicy{MaxAttempts: 2})

	chCtx := cor.NewContextWithInput(context.Background(), unit())
	gen.Execute(chCtx)
	assert.ErrorIs(t, chCtx.Err(), model.ErrTransport)
	assert.Equal(t, 2, fake.Calls())
}

func TestDecodeRecords(t *testing.T) {
	records, err := commands.DecodeRecords(model.KindScript, "Here you go:\n"+testutil.ScriptListJSON("a", "b"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[1].DisplayTitle())
	assert.Equal(t, 9, records[1].(*model.ScriptRecord).Seconds, "read from the last shot's [6-9s]")

	boards, err := commands.DecodeRecords(model.KindStoryboard, testutil.StoryboardListJSON("c"))
	require.NoError(t, err)
	require.Len(t, boards, 1)
	assert.Equal(t, "c", boards[0].DisplayTitle())

	_, err = commands.DecodeRecords("poem", "[]")
	assert.Error(t, err)
}

func TestRecordDecoder(t *testing.T) {
	decoder := commands.NewRecordDecoder("decode", model.KindScript)

	ok := cor.NewContextWithInput(context.Background(), testutil.ScriptJSON("x"))
	decoder.Execute(ok)
	require.NoError(t, ok.Err())
	assert.Len(t, ok.Get(cor.CtxOut), 1)

	for _, raw := range []string{"[]", "no json at all"} {
		bad := cor.NewContextWithInput(context.Background(), raw)
		decoder.Execute(bad)
		assert.ErrorIs(t, bad.Err(), model.ErrMalformedResponse, raw)
	}
}

func TestGenerationTriggerReader(t *testing.T) {
	reader := commands.NewGenerationTriggerReader("reader")

	chCtx := cor.NewContextWithInput(context.Background(), testutil.GetTestGenerationMessage())
	reader.Execute(chCtx)
	require.NoError(t, chCtx.Err())
	req := chCtx.Get(cor.CtxOut).(*model.GenerationRequest)
	assert.Equal(t, "sequential", req.Variant)
	assert.Equal(t, 15, req.Duration)
	assert.Equal(t, 5, req.ShotCount)

	missing := cor.NewContextWithInput(context.Background(), `{"topic":"x"}`)
	reader.Execute(missing)
	assert.Error(t, missing.Err())
}

type starterFunc func(ctx context.Context, req *model.GenerationRequest) error

func (f starterFunc) Start(ctx context.Context, req *model.GenerationRequest) error { return f(ctx, req) }

func TestGenerationStarter(t *testing.T) {
	req := &model.GenerationRequest{RequestID: "r", UserID: "u"}
	cases := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"started", nil, false},
		{"rejected", model.NewValidationFailure("bad"), false},
		{"busy", model.ErrSessionRunning, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			starter := commands.NewGenerationStarter("start", starterFunc(func(context.Context, *model.GenerationRequest) error { return tc.err }))
			chCtx := cor.NewContextWithInput(context.Background(), req)
			starter.Execute(chCtx)
			if tc.wantErr {
				assert.ErrorIs(t, chCtx.Err(), tc.err)
			} else {
				assert.NoError(t, chCtx.Err())
			}
		})
	}
}
