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

// Package workflow assembles commands into the chains the application runs.
package workflow

import (
	"context"
	"fmt"
	"text/template"

	"github.com/jaycherian/gcp-go-script-factory/internal/cloud"
	"github.com/jaycherian/gcp-go-script-factory/internal/core/commands"
	"github.com/jaycherian/gcp-go-script-factory/internal/core/cor"
	"github.com/jaycherian/gcp-go-script-factory/internal/core/model"
)

// ScriptUnitWorkflow generates the records for one model call of a variant:
// render prompt, call the model, normalize and decode the response.
type ScriptUnitWorkflow struct {
	cor.BaseCommand
	variantName string
	variant     cloud.Variant
	generator   cloud.TextGenerator
	template    *template.Template
	policy      cloud.RetryPolicy
	chain       cor.Chain
}

func (w *ScriptUnitWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

func (w *ScriptUnitWorkflow) initializeChain() {
	out := cor.NewBaseChain(w.GetName())
	out.AddCommand(commands.NewScriptGenerator(w.variantName+"-generate", w.variant.Kind, w.generator, w.template, w.policy))
	out.AddCommand(commands.NewRecordDecoder(w.variantName+"-decode", w.variant.Kind))
	w.chain = out
}

// Generate runs the chain for unit and returns the decoded records. A
// cancelled ctx is reported through the returned error.
func (w *ScriptUnitWorkflow) Generate(ctx context.Context, unit *model.UnitRequest) ([]model.Record, error) {
	chCtx := cor.NewContextWithInput(ctx, unit)
	w.Execute(chCtx)
	if err := chCtx.Err(); err != nil {
		return nil, err
	}
	records, ok := chCtx.Get(cor.CtxIn).([]model.Record)
	if !ok {
		return nil, fmt.Errorf("%w: workflow %s produced no records", model.ErrMalformedResponse, w.GetName())
	}
	return records, nil
}

// NewScriptUnitWorkflow builds the workflow for the named variant using
// generator as the model.
func NewScriptUnitWorkflow(config *cloud.Config, variantName string, generator cloud.TextGenerator) (*ScriptUnitWorkflow, error) {
	variant, ok := config.Variants[variantName]
	if !ok {
		return nil, fmt.Errorf("unknown variant %q", variantName)
	}
	text, ok := config.PromptTemplates[variant.Prompt]
	if !ok {
		return nil, fmt.Errorf("variant %q: unknown prompt template %q", variantName, variant.Prompt)
	}
	tmpl, err := template.New(variant.Prompt).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("variant %q: invalid prompt template: %w", variantName, err)
	}
	attempts := variant.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	out := &ScriptUnitWorkflow{
		BaseCommand: *cor.NewBaseCommand(variantName + "-unit-workflow"),
		variantName: variantName,
		variant:     variant,
		generator:   generator,
		template:    tmpl,
		policy:      cloud.RetryPolicy{MaxAttempts: attempts, BaseDelay: config.Limits.RetryBaseDelay()},
	}
	out.initializeChain()
	return out, nil
}

// NewScriptUnitWorkflows builds one workflow per configured variant, each
// bound to its agent model constrained to the variant's response schema.
func NewScriptUnitWorkflows(config *cloud.Config, serviceClients *cloud.ServiceClients) (map[string]*ScriptUnitWorkflow, error) {
	out := make(map[string]*ScriptUnitWorkflow, len(config.Variants))
	for name, variant := range config.Variants {
		agent, ok := serviceClients.AgentModels[variant.Model]
		if !ok {
			return nil, fmt.Errorf("variant %q: unknown agent model %q", name, variant.Model)
		}
		w, err := NewScriptUnitWorkflow(config, name, agent.WithResponseSchema(cloud.SchemaForKind(variant.Kind)))
		if err != nil {
			return nil, err
		}
		out[name] = w
	}
	return out, nil
}
