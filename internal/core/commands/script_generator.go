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

// Package commands holds the concrete cor.Command steps used by the
// generation workflows.
//
// ScriptGenerator renders the prompt for one unit of work from a Go template
// and sends it to the generative model. The template receives PromptParams:
// the unit request (topic, style, duration, shot count, word band, position
// in the batch) plus a complete example record so the model sees the exact
// JSON shape expected back. The raw response text is handed to the next
// command for parsing.
package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"go.opentelemetry.io/otel/metric"

	"github.com/jaycherian/gcp-go-script-factory/internal/cloud"
	"github.com/jaycherian/gcp-go-script-factory/internal/core/cor"
	"github.com/jaycherian/gcp-go-script-factory/internal/core/model"
)

// PromptParams is the data passed to prompt templates.
type PromptParams struct {
	*model.UnitRequest
	ExampleJSON string // a complete record of the expected kind
	Styles      string // the preset styles, comma separated
}

// ScriptGenerator prompts the model for one unit.
type ScriptGenerator struct {
	cor.BaseCommand
	generator                cloud.TextGenerator
	template                 *template.Template
	policy                   cloud.RetryPolicy
	exampleJSON              string
	geminiInputTokenCounter  metric.Int64Counter
	geminiOutputTokenCounter metric.Int64Counter
	geminiRetryCounter       metric.Int64Counter
}

// NewScriptGenerator creates the command for records of kind.
//
// Inputs:
//   - name: command name used for spans and counters.
//   - kind: model.KindScript or model.KindStoryboard, selects the example.
//   - generator: the (rate limited) model.
//   - template: parsed prompt template executed with PromptParams.
//   - policy: retry policy for the model call.
func NewScriptGenerator(
	name string,
	kind string,
	generator cloud.TextGenerator,
	template *template.Template,
	policy cloud.RetryPolicy) *ScriptGenerator {

	out := &ScriptGenerator{
		BaseCommand: *cor.NewBaseCommand(name),
		generator:   generator,
		template:    template,
		policy:      policy,
	}

	var example interface{} = model.GetExampleScript()
	if kind == model.KindStoryboard {
		example = model.GetExampleStoryboard()
	}
	exampleJSON, _ := json.Marshal([]interface{}{example})
	out.exampleJSON = string(exampleJSON)

	out.geminiInputTokenCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.input", out.GetName()))
	out.geminiOutputTokenCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.output", out.GetName()))
	out.geminiRetryCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.retry", out.GetName()))
	return out
}

// GenerateParams builds the template data for unit.
func (t *ScriptGenerator) GenerateParams(unit *model.UnitRequest) PromptParams {
	return PromptParams{
		UnitRequest: unit,
		ExampleJSON: t.exampleJSON,
		Styles:      strings.Join(model.StylePresets, ", "),
	}
}

// Prompt renders the prompt text for unit.
func (t *ScriptGenerator) Prompt(unit *model.UnitRequest) (string, error) {
	var buffer bytes.Buffer
	if err := t.template.Execute(&buffer, t.GenerateParams(unit)); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buffer.String(), nil
}

func (t *ScriptGenerator) Execute(context cor.Context) {
	unit, ok := context.Get(t.GetInputParam()).(*model.UnitRequest)
	if !ok {
		t.Fail(context, fmt.Errorf("%s expects a unit request as input", t.GetName()))
		return
	}

	prompt, err := t.Prompt(unit)
	if err != nil {
		t.Fail(context, err)
		return
	}

	out, err := cloud.GenerateMultiModalResponse(
		context.GetContext(),
		t.geminiInputTokenCounter,
		t.geminiOutputTokenCounter,
		t.geminiRetryCounter,
		t.policy,
		t.generator,
		cloud.NewTextContent(prompt))
	if err != nil {
		t.Fail(context, fmt.Errorf("%w: unit %d of %d: %w", model.ErrTransport, unit.UnitNumber(), unit.TotalUnits, err))
		return
	}

	t.Succeed(context, out)
}
