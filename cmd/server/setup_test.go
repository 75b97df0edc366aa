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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-script-factory/internal/cloud"
	"github.com/jaycherian/gcp-go-script-factory/internal/core/model"
	"github.com/jaycherian/gcp-go-script-factory/internal/core/services"
	"github.com/jaycherian/gcp-go-script-factory/internal/core/workflow"
	"github.com/jaycherian/gcp-go-script-factory/internal/testutil"
)

func loadShippedConfig(t *testing.T) *cloud.Config {
	t.Helper()
	require.NoError(t, testutil.SetupOS("../../configs", "test"))
	state.config = nil
	config, err := GetConfig()
	require.NoError(t, err)
	t.Cleanup(func() { state.config = nil })
	return config
}

func TestShippedConfigIsConsistent(t *testing.T) {
	config := loadShippedConfig(t)

	assert.Equal(t, "sequential", config.DefaultVariant)
	require.Contains(t, config.Variants, config.DefaultVariant)
	for name, v := range config.Variants {
		if v.Kind == model.KindScript {
			assert.True(t, v.EnforceCeiling, name)
		}
		assert.Contains(t, config.AgentModels, v.Model, name)
		assert.Contains(t, config.PromptTemplates, v.Prompt, name)
		assert.Positive(t, v.MaxAttempts, name)
	}
	assert.Equal(t, 10, config.Ledger.StartingBalance)
	assert.Equal(t, 10, config.Variants["batch"].Cost(5))
	assert.Equal(t, float32(0.8), config.AgentModels["director-flash"].Temperature)
}

func TestShippedTemplatesRender(t *testing.T) {
	config := loadShippedConfig(t)

	clients := &cloud.ServiceClients{AgentModels: map[string]*cloud.QuotaAwareGenerativeAIModel{}}
	for name, values := range config.AgentModels {
		clients.AgentModels[name] = cloud.NewQuotaAwareModel(cloud.NewGenerateContentConfig(values), values.Model, nil, values.RateLimit)
	}
	workflows, err := workflow.NewScriptUnitWorkflows(config, clients)
	require.NoError(t, err)
	assert.Len(t, workflows, 3)
}

func TestNewLedgerFallsBackToMemory(t *testing.T) {
	config := cloud.NewConfig()
	ledger := NewLedger(config, &cloud.ServiceClients{})
	_, ok := ledger.(*services.MemoryLedger)
	assert.True(t, ok)
}

func TestNewRequestRegistryFallsBackToMemory(t *testing.T) {
	registry := NewRequestRegistry(cloud.NewConfig(), &cloud.ServiceClients{})
	_, ok := registry.(*services.MemoryRequestRegistry)
	assert.True(t, ok)
}
