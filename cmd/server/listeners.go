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

package main

import (
	"context"
	"log/slog"

	"github.com/jaycherian/gcp-go-script-factory/internal/cloud"
	"github.com/jaycherian/gcp-go-script-factory/internal/core/commands"
	"github.com/jaycherian/gcp-go-script-factory/internal/core/workflow"
)

// GenerationRequestsListener is the topic_subscriptions key of the
// subscription that accepts asynchronous generation requests.
const GenerationRequestsListener = "GenerationRequests"

// SetupListeners attaches the request workflow to its subscription and starts
// receiving.
func SetupListeners(ctx context.Context, cloudClients *cloud.ServiceClients, starter commands.Starter) {
	listener, ok := cloudClients.PubSubListeners[GenerationRequestsListener]
	if !ok {
		slog.Info("no generation request subscription configured")
		return
	}
	listener.SetCommand(workflow.NewGenerationRequestWorkflow(starter))
	listener.Listen(ctx)
}
