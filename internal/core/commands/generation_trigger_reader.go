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

package commands

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jaycherian/gcp-go-script-factory/internal/core/cor"
	"github.com/jaycherian/gcp-go-script-factory/internal/core/model"
)

// GenerationTriggerReader parses a Pub/Sub message body into a
// *model.GenerationRequest. Publishers should set request_id so a redelivered
// message is recognised and not run twice; a missing id is replaced with a
// new one.
type GenerationTriggerReader struct {
	cor.BaseCommand
}

func NewGenerationTriggerReader(name string) *GenerationTriggerReader {
	return &GenerationTriggerReader{BaseCommand: *cor.NewBaseCommand(name)}
}

func (c *GenerationTriggerReader) Execute(context cor.Context) {
	in, ok := context.Get(c.GetInputParam()).(string)
	if !ok {
		c.Fail(context, fmt.Errorf("%s expects a message body as input", c.GetName()))
		return
	}

	var out model.GenerationRequest
	if err := json.Unmarshal([]byte(in), &out); err != nil {
		c.Fail(context, fmt.Errorf("failed to unmarshal generation request: %w", err))
		return
	}
	if out.UserID == "" {
		c.Fail(context, fmt.Errorf("generation request has no user_id"))
		return
	}
	if out.RequestID == "" {
		out.RequestID = uuid.NewString()
	}

	c.Succeed(context, &out)
}
