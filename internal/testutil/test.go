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

// Package testutil provides the configuration, fakes and sample model output
// shared by the package tests.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"

	"google.golang.org/genai"

	"github.com/jaycherian/gcp-go-script-factory/internal/cloud"
	"github.com/jaycherian/gcp-go-script-factory/internal/core/model"
)

// Test prompt templates. They keep every field the real templates use so
// prompt assertions can look for the values.
const (
	ScriptUnitTemplate  = `topic={{.Topic}} style={{.Style}} clip={{.UnitNumber}}/{{.TotalUnits}} duration={{.Duration}} shots={{.ShotCount}} timing=[0-{{.ShotSeconds}}s] words={{.MinWords}}-{{.MaxWords}} example={{.ExampleJSON}}`
	ScriptBatchTemplate = `topic={{.Topic}} style={{.Style}} count={{.RecordCount}} shots={{.ShotCount}} example={{.ExampleJSON}}`
	StoryboardTemplate  = `topic={{.Topic}} style={{.Style}} count={{.RecordCount}} example={{.ExampleJSON}}`
)

// HandleErr fails the test when err is not nil.
func HandleErr(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// SetupOS points the configuration loader at prefix for the given runtime.
func SetupOS(prefix string, runtime string) (err error) {
	if err = os.Setenv(cloud.EnvConfigFilePrefix, prefix); err != nil {
		return err
	}
	return os.Setenv(cloud.EnvConfigRuntime, runtime)
}

// NewTestConfig returns a configuration with the three standard variants and
// no pacing delays.
func NewTestConfig() *cloud.Config {
	config := cloud.NewConfig()
	config.Limits.InterUnitDelayMs = 0
	config.Limits.RetryBaseDelayMs = 1
	config.DefaultVariant = "sequential"
	config.AgentModels["creative-flash"] = cloud.VertexAiLLMModel{Model: "gemini-2.0-flash", Temperature: 0.85, MaxTokens: 8192}
	config.PromptTemplates["script_unit"] = ScriptUnitTemplate
	config.PromptTemplates["script_batch"] = ScriptBatchTemplate
	config.PromptTemplates["storyboard"] = StoryboardTemplate
	config.Variants["sequential"] = cloud.Variant{
		Kind: model.KindScript, Mode: cloud.ModePerUnit, Model: "creative-flash", Prompt: "script_unit",
		UnitCost: 1, DebitMode: cloud.DebitOnSuccess, EnforceCeiling: true, RequireCredit: true, MaxAttempts: 1,
	}
	config.Variants["batch"] = cloud.Variant{
		Kind: model.KindScript, Mode: cloud.ModeSingleCall, Model: "creative-flash", Prompt: "script_batch",
		UnitCost: 2, DebitMode: cloud.DebitOptimistic, EnforceCeiling: true, RequireCredit: true, MaxAttempts: 3,
	}
	config.Variants["storyboard"] = cloud.Variant{
		Kind: model.KindStoryboard, Mode: cloud.ModeSingleCall, Model: "creative-flash", Prompt: "storyboard",
		UnitCost: 1, DebitMode: cloud.DebitOptimistic, RequireCredit: true, MaxAttempts: 1,
	}
	return config
}

// TextResponse wraps text as a single-candidate model response.
func TextResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}}},
		},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 10, CandidatesTokenCount: 20},
	}
}

// FakeGenerator is a scripted cloud.TextGenerator. Respond receives the
// 1-based call number and the prompt text.
type FakeGenerator struct {
	Respond func(call int, prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
}

func (f *FakeGenerator) GenerateContent(ctx context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prompt := ""
	for _, c := range content {
		for _, p := range c.Parts {
			prompt += p.Text
		}
	}
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	call := len(f.prompts)
	f.mu.Unlock()

	text, err := f.Respond(call, prompt)
	if err != nil {
		return nil, err
	}
	return TextResponse(text), nil
}

// Calls returns how many times the model was called.
func (f *FakeGenerator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// Prompts returns the prompt text of every call in order.
func (f *FakeGenerator) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// ScriptJSON returns a one-element script array titled title.
func ScriptJSON(title string) string {
	return ScriptListJSON(title)
}

// ScriptListJSON returns a script array with one record per title.
func ScriptListJSON(titles ...string) string {
	records := make([]*model.ScriptRecord, 0, len(titles))
	for _, title := range titles {
		record := model.GetExampleScript()
		record.Title = title
		records = append(records, record)
	}
	out, _ := json.Marshal(records)
	return string(out)
}

// StoryboardListJSON returns a storyboard array with one record per concept.
func StoryboardListJSON(concepts ...string) string {
	records := make([]*model.StoryboardRecord, 0, len(concepts))
	for _, concept := range concepts {
		record := model.GetExampleStoryboard()
		record.ConceptName = concept
		records = append(records, record)
	}
	out, _ := json.Marshal(records)
	return string(out)
}

// UnitTitle is the title FakeGenerator responders use for the n-th call.
func UnitTitle(call int) string {
	return fmt.Sprintf("clip-%d", call)
}

// GetTestGenerationMessage returns a Pub/Sub generation request body.
func GetTestGenerationMessage() string {
	return `{
  "request_id": "5f0b7a8e-3f7e-4d5c-9d7e-2f1a3b4c5d6e",
  "user_id": "user-pubsub",
  "variant": "sequential",
  "topic": "ออมเงินฉบับมนุษย์เงินเดือน",
  "style": "🎓 สาระความรู้ / How-to",
  "duration": 15,
  "shot_count": 5,
  "batch_size": 2
}`
}
