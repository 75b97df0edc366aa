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
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// TextGenerator is the slice of the model API the application needs. It is
// satisfied by QuotaAwareGenerativeAIModel and by test fakes.
type TextGenerator interface {
	GenerateContent(ctx context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error)
}

// QuotaAwareGenerativeAIModel binds a model name and generation config to the
// SDK's model service and throttles calls through a shared rate limiter.
type QuotaAwareGenerativeAIModel struct {
	GenerativeContentConfig *genai.GenerateContentConfig
	ModelName               string
	ModelHandle             *genai.Models
	RateLimit               *rate.Limiter // shared by every copy made with WithResponseSchema
}

// NewQuotaAwareModel wraps models for modelName. requestsPerSecond <= 0
// disables throttling.
func NewQuotaAwareModel(config *genai.GenerateContentConfig, modelName string, models *genai.Models, requestsPerSecond int) *QuotaAwareGenerativeAIModel {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Every(time.Second / time.Duration(requestsPerSecond))
	}
	return &QuotaAwareGenerativeAIModel{
		GenerativeContentConfig: config,
		ModelName:               modelName,
		ModelHandle:             models,
		RateLimit:               rate.NewLimiter(limit, 1),
	}
}

// WithResponseSchema returns a copy that constrains output to schema as JSON.
// The copy shares the rate limiter with the original.
func (q *QuotaAwareGenerativeAIModel) WithResponseSchema(schema *genai.Schema) *QuotaAwareGenerativeAIModel {
	cfg := genai.GenerateContentConfig{}
	if q.GenerativeContentConfig != nil {
		cfg = *q.GenerativeContentConfig
	}
	cfg.ResponseMIMEType = "application/json"
	cfg.ResponseSchema = schema
	out := *q
	out.GenerativeContentConfig = &cfg
	return &out
}

// GenerateContent waits for the rate limiter and then calls the model. The
// wait is abandoned when ctx is cancelled.
func (q *QuotaAwareGenerativeAIModel) GenerateContent(ctx context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error) {
	if err := q.RateLimit.Wait(ctx); err != nil {
		return nil, err
	}
	return q.ModelHandle.GenerateContent(ctx, q.ModelName, content, q.GenerativeContentConfig)
}
