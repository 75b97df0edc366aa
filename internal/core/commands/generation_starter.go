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
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-script-factory/internal/core/cor"
	"github.com/jaycherian/gcp-go-script-factory/internal/core/model"
)

// Starter begins a generation run. It is implemented by the generation
// service.
type Starter interface {
	Start(ctx context.Context, req *model.GenerationRequest) error
}

// GenerationStarter hands a parsed request to the Starter. Requests rejected
// by validation are logged and treated as handled since redelivery cannot fix
// them; any other error fails the command so the message is redelivered.
type GenerationStarter struct {
	cor.BaseCommand
	starter Starter
}

func NewGenerationStarter(name string, starter Starter) *GenerationStarter {
	return &GenerationStarter{BaseCommand: *cor.NewBaseCommand(name), starter: starter}
}

func (c *GenerationStarter) Execute(context cor.Context) {
	req, ok := context.Get(c.GetInputParam()).(*model.GenerationRequest)
	if !ok {
		c.Fail(context, fmt.Errorf("%s expects a generation request as input", c.GetName()))
		return
	}

	err := c.starter.Start(context.GetContext(), req)
	var failure *model.Failure
	switch {
	case err == nil:
		slog.InfoContext(context.GetContext(), "generation started", "request_id", req.RequestID, "user_id", req.UserID)
	case errors.As(err, &failure) && failure.Kind == model.FailureValidation:
		slog.WarnContext(context.GetContext(), "generation request rejected", "request_id", req.RequestID, "reason", failure.Message)
	default:
		c.Fail(context, fmt.Errorf("failed to start generation %s: %w", req.RequestID, err))
		return
	}
	c.Succeed(context, req)
}
