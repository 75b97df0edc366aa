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
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jaycherian/gcp-go-script-factory/internal/api"
	"github.com/jaycherian/gcp-go-script-factory/internal/cloud"
	"github.com/jaycherian/gcp-go-script-factory/internal/core/services"
	"github.com/jaycherian/gcp-go-script-factory/internal/core/workflow"
)

// StateManager holds the shared components of the server.
type StateManager struct {
	config      *cloud.Config
	cloud       *cloud.ServiceClients
	generations *services.GenerationService
	handlers    *api.Handlers
}

var state = &StateManager{}

// SetupOS defaults the configuration directory and runtime when the
// environment leaves them unset.
func SetupOS() (err error) {
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err = os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		err = os.Setenv(cloud.EnvConfigRuntime, "local")
	}
	return err
}

func GetConfig() (*cloud.Config, error) {
	if state.config == nil {
		if err := SetupOS(); err != nil {
			return nil, fmt.Errorf("failed to set up environment: %w", err)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			return nil, err
		}
		state.config = config
	}
	return state.config, nil
}

// NewLedger picks the Redis ledger when an address is configured.
func NewLedger(config *cloud.Config, clients *cloud.ServiceClients) services.Ledger {
	if clients.RedisClient != nil {
		slog.Info("using redis ledger", "addr", config.Ledger.RedisAddr)
		return services.NewRedisLedger(clients.RedisClient, config.Ledger.KeyPrefix, config.Ledger.StartingBalance, config.Ledger.IdempotencyTTL())
	}
	slog.Warn("no redis address configured; credits are kept in memory")
	return services.NewMemoryLedger(config.Ledger.StartingBalance, config.Ledger.IdempotencyTTL())
}

// NewRequestRegistry shares started request ids through Redis when it is
// configured, so Pub/Sub redeliveries to another replica are refused too.
func NewRequestRegistry(config *cloud.Config, clients *cloud.ServiceClients) services.RequestRegistry {
	if clients.RedisClient != nil {
		return services.NewRedisRequestRegistry(clients.RedisClient, config.Ledger.KeyPrefix, config.Ledger.IdempotencyTTL())
	}
	return services.NewMemoryRequestRegistry(config.Ledger.IdempotencyTTL())
}

func InitState(ctx context.Context, config *cloud.Config) error {
	cloudClients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return err
	}
	state.cloud = cloudClients

	workflows, err := workflow.NewScriptUnitWorkflows(config, cloudClients)
	if err != nil {
		return err
	}

	var history *services.HistoryService
	var opts []services.OrchestratorOption
	if cloudClients.BiqQueryClient != nil && config.BigQueryDataSource.HistoryTable != "" {
		history = &services.HistoryService{
			BigqueryClient: cloudClients.BiqQueryClient,
			DatasetName:    config.BigQueryDataSource.DatasetName,
			HistoryTable:   config.BigQueryDataSource.HistoryTable,
		}
		opts = append(opts, services.WithRecorder(history))
	}

	ledger := NewLedger(config, cloudClients)
	orchestrators := make([]*services.Orchestrator, 0, len(workflows))
	for name, w := range workflows {
		orchestrators = append(orchestrators, services.NewOrchestrator(name, config.Variants[name], config.Limits, w, ledger, opts...))
	}
	state.generations = services.NewGenerationService(config.DefaultVariant, ledger, orchestrators...)
	state.generations.UseRequestRegistry(NewRequestRegistry(config, cloudClients))

	state.handlers = &api.Handlers{
		Generations: state.generations,
		Exporter: &services.Exporter{
			StorageClient: cloudClients.StorageClient,
			IAMClient:     cloudClients.IAMClient,
			SignerEmail:   config.Application.SignerServiceAccountEmail,
			Bucket:        config.Storage.ExportBucket,
			Expires:       time.Duration(config.Storage.SignedURLMinutes) * time.Minute,
		},
	}
	if config.Voice.EndpointURL != "" {
		state.handlers.Voice = services.NewVoiceClient(config.Voice.EndpointURL, time.Duration(config.Voice.TimeoutSeconds)*time.Second)
	}
	if history != nil {
		state.handlers.History = history
	}

	SetupListeners(ctx, cloudClients, state.generations)
	return nil
}
