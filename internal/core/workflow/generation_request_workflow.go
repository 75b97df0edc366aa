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

package workflow

import (
	"github.com/jaycherian/gcp-go-script-factory/internal/core/commands"
	"github.com/jaycherian/gcp-go-script-factory/internal/core/cor"
)

// GenerationRequestWorkflow is attached to the generation-request
// subscription: it parses the message and starts the run.
type GenerationRequestWorkflow struct {
	cor.BaseCommand
	starter commands.Starter
	chain   cor.Chain
}

func (w *GenerationRequestWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

func (w *GenerationRequestWorkflow) initializeChain() {
	out := cor.NewBaseChain(w.GetName())
	out.AddCommand(commands.NewGenerationTriggerReader("generation-trigger-reader"))
	out.AddCommand(commands.NewGenerationStarter("generation-starter", w.starter))
	w.chain = out
}

func NewGenerationRequestWorkflow(starter commands.Starter) *GenerationRequestWorkflow {
	out := &GenerationRequestWorkflow{
		BaseCommand: *cor.NewBaseCommand("generation-request-workflow"),
		starter:     starter,
	}
	out.initializeChain()
	return out
}
