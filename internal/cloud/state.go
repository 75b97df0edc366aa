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

package cloud

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/bigquery"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"google.golang.org/genai"
)

// ServiceClients holds every external client the application uses. GCP data
// clients are only created when a project is configured and Redis only when
// an address is set, so a local run needs nothing but a Gemini API key.
type ServiceClients struct {
	StorageClient   *storage.Client
	PubsubClient    *pubsub.Client
	GenAIClient     *genai.Client
	BiqQueryClient  *bigquery.Client
	IAMClient       *credentials.IamCredentialsClient
	RedisClient     *redis.Client
	PubSubListeners map[string]*PubSubListener
	AgentModels     map[string]*QuotaAwareGenerativeAIModel
}

// Close releases every client that was created.
func (c *ServiceClients) Close() {
	if c.StorageClient != nil {
		_ = c.StorageClient.Close()
	}
	if c.PubsubClient != nil {
		_ = c.PubsubClient.Close()
	}
	if c.BiqQueryClient != nil {
		_ = c.BiqQueryClient.Close()
	}
	if c.IAMClient != nil {
		_ = c.IAMClient.Close()
	}
	if c.RedisClient != nil {
		_ = c.RedisClient.Close()
	}
}

// NewGenAIClientConfig maps the application settings onto the SDK config.
func NewGenAIClientConfig(app Application) *genai.ClientConfig {
	out := &genai.ClientConfig{}
	if app.Backend == BackendGemini {
		out.Backend = genai.BackendGeminiAPI
		out.APIKey = app.APIKey
	} else {
		out.Backend = genai.BackendVertexAI
		out.Project = app.GoogleProjectId
		out.Location = app.GoogleLocation
	}
	if app.EndpointURL != "" {
		out.HTTPOptions = genai.HTTPOptions{BaseURL: app.EndpointURL}
	}
	return out
}

// NewGenerateContentConfig builds the SDK generation config for one model.
func NewGenerateContentConfig(values VertexAiLLMModel) *genai.GenerateContentConfig {
	out := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](values.Temperature),
		MaxOutputTokens:  values.MaxTokens,
		SafetySettings:   DefaultSafetySettings,
		ResponseMIMEType: values.OutputFormat,
	}
	if values.TopP > 0 {
		out.TopP = genai.Ptr[float32](values.TopP)
	}
	if values.TopK > 0 {
		out.TopK = genai.Ptr[float32](values.TopK)
	}
	if values.SystemInstructions != "" {
		out.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: values.SystemInstructions}}}
	}
	return out
}

// NewRedisClient returns a client for the ledger, or nil when no address is
// configured.
func NewRedisClient(ledger Ledger) *redis.Client {
	if ledger.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     ledger.RedisAddr,
		Password: ledger.RedisPassword,
		DB:       ledger.RedisDB,
	})
}

// NewCloudServiceClients creates the clients described by config.
func NewCloudServiceClients(ctx context.Context, config *Config) (cloud *ServiceClients, err error) {
	cloud = &ServiceClients{
		PubSubListeners: make(map[string]*PubSubListener),
		AgentModels:     make(map[string]*QuotaAwareGenerativeAIModel),
	}

	gc, err := genai.NewClient(ctx, NewGenAIClientConfig(config.Application))
	if err != nil {
		return nil, fmt.Errorf("error creating genai client: %w", err)
	}
	cloud.GenAIClient = gc

	for name, values := range config.AgentModels {
		cloud.AgentModels[name] = NewQuotaAwareModel(NewGenerateContentConfig(values), values.Model, gc.Models, values.RateLimit)
		slog.Info("configured agent model", "name", name, "model", values.Model, "rate_limit", values.RateLimit)
	}

	if config.Application.GoogleProjectId != "" {
		if cloud.StorageClient, err = storage.NewClient(ctx); err != nil {
			return nil, fmt.Errorf("error creating storage client: %w", err)
		}
		if cloud.PubsubClient, err = pubsub.NewClient(ctx, config.Application.GoogleProjectId); err != nil {
			cloud.Close()
			return nil, fmt.Errorf("error creating pubsub client: %w", err)
		}
		if cloud.BiqQueryClient, err = bigquery.NewClient(ctx, config.Application.GoogleProjectId); err != nil {
			cloud.Close()
			return nil, fmt.Errorf("error creating bigquery client: %w", err)
		}
		if config.Application.SignerServiceAccountEmail != "" {
			if cloud.IAMClient, err = credentials.NewIamCredentialsClient(ctx); err != nil {
				cloud.Close()
				return nil, fmt.Errorf("error creating iam credentials client: %w", err)
			}
		}
		for key, values := range config.TopicSubscriptions {
			cloud.PubSubListeners[key] = NewPubSubListener(cloud.PubsubClient, values.Name, nil)
		}
	} else {
		slog.Warn("no google project configured; storage, pubsub and bigquery are disabled")
	}

	cloud.RedisClient = NewRedisClient(config.Ledger)
	return cloud, nil
}
