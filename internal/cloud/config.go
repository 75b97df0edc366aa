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

// Package cloud holds configuration and the clients for the external services
// the application talks to: the generative model, Cloud Storage, Pub/Sub,
// BigQuery, IAM credentials and Redis.
package cloud

import (
	"time"

	"google.golang.org/genai"
)

// Variant modes.
const (
	ModePerUnit    = "per_unit"    // one model call per unit, appended as each completes
	ModeSingleCall = "single_call" // one model call returning the whole batch
)

// Debit modes.
const (
	DebitOnSuccess  = "on_success" // charge completed units after the run finishes
	DebitOptimistic = "optimistic" // charge the full cost up front, refund on failure
)

// Model backends.
const (
	BackendVertex = "vertex"
	BackendGemini = "gemini"
)

// DefaultSafetySettings only blocks content rated high probability of harm.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
}

// Application identifies the deployment and how to reach the model.
type Application struct {
	Name                      string `toml:"name"`
	GoogleProjectId           string `toml:"google_project_id"`
	GoogleLocation            string `toml:"location"`
	Backend                   string `toml:"backend"`      // BackendVertex or BackendGemini
	APIKey                    string `toml:"api_key"`      // Gemini API key, only for BackendGemini
	EndpointURL               string `toml:"endpoint_url"` // optional override of the model API base URL
	SignerServiceAccountEmail string `toml:"signer_service_account_email"`
	ListenAddress             string `toml:"listen_address"`
	EnableTelemetry           bool   `toml:"enable_telemetry"`
	LogFile                   string `toml:"log_file"`
	LogLevel                  string `toml:"log_level"`
}

// Limits are the safety ceilings and pacing used by the orchestrator.
type Limits struct {
	MaxDuration      int `toml:"max_duration"`        // seconds per clip
	MaxShotCount     int `toml:"max_shot_count"`      // shots per clip
	MaxBatchSize     int `toml:"max_batch_size"`      // units per run
	InterUnitDelayMs int `toml:"inter_unit_delay_ms"` // pause between per-unit calls
	RetryBaseDelayMs int `toml:"retry_base_delay_ms"` // first backoff step
}

func (l Limits) InterUnitDelay() time.Duration {
	return time.Duration(l.InterUnitDelayMs) * time.Millisecond
}

func (l Limits) RetryBaseDelay() time.Duration {
	return time.Duration(l.RetryBaseDelayMs) * time.Millisecond
}

// VertexAiLLMModel describes one generative model and its sampling settings.
type VertexAiLLMModel struct {
	Model              string  `toml:"model"`
	SystemInstructions string  `toml:"system_instructions"`
	Temperature        float32 `toml:"temperature"`
	TopP               float32 `toml:"top_p"`
	TopK               float32 `toml:"top_k"`
	MaxTokens          int32   `toml:"max_tokens"`
	OutputFormat       string  `toml:"output_format"`
	RateLimit          int     `toml:"rate_limit"` // requests per second, 0 means unlimited
}

// Variant is one flavour of the generator. All variants share the same
// orchestrator and differ only in these settings.
type Variant struct {
	Kind           string `toml:"kind"`            // model.KindScript or model.KindStoryboard
	Mode           string `toml:"mode"`            // ModePerUnit or ModeSingleCall
	Model          string `toml:"model"`           // key into AgentModels
	Prompt         string `toml:"prompt"`          // key into PromptTemplates
	UnitCost       int    `toml:"unit_cost"`       // credits per unit
	DebitMode      string `toml:"debit_mode"`      // DebitOnSuccess or DebitOptimistic
	EnforceCeiling bool   `toml:"enforce_ceiling"` // storyboard opt-out; script variants always apply the ceilings
	RequireCredit  bool   `toml:"require_credit"`  // check the balance before starting
	MaxAttempts    int    `toml:"max_attempts"`    // attempts per model call, 1 disables retries
}

// Cost is the credit cost of a batch of n units.
func (v Variant) Cost(n int) int {
	return v.UnitCost * n
}

// Voice points at the remote speech synthesis server.
type Voice struct {
	EndpointURL    string `toml:"endpoint_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Ledger configures the credit store. With no Redis address the in-memory
// ledger is used.
type Ledger struct {
	RedisAddr         string `toml:"redis_addr"`
	RedisPassword     string `toml:"redis_password"`
	RedisDB           int    `toml:"redis_db"`
	KeyPrefix         string `toml:"key_prefix"`
	StartingBalance   int    `toml:"starting_balance"`
	IdempotencyTTLMin int    `toml:"idempotency_ttl_minutes"`
}

func (l Ledger) IdempotencyTTL() time.Duration {
	return time.Duration(l.IdempotencyTTLMin) * time.Minute
}

// Storage holds the bucket used for uploaded exports.
type Storage struct {
	ExportBucket     string `toml:"export_bucket"`
	SignedURLMinutes int    `toml:"signed_url_minutes"`
}

// BigQueryDataSource names the history table.
type BigQueryDataSource struct {
	DatasetName  string `toml:"dataset"`
	HistoryTable string `toml:"history_table"`
}

type TopicSubscription struct {
	Name             string `toml:"name"`
	DeadLetterTopic  string `toml:"dead_letter_topic"`
	TimeoutInSeconds int    `toml:"timeout_in_seconds"`
}

// Config is the root of the TOML configuration.
type Config struct {
	Application        Application                  `toml:"application"`
	Limits             Limits                       `toml:"limits"`
	DefaultVariant     string                       `toml:"default_variant"`
	Variants           map[string]Variant           `toml:"variants"`
	AgentModels        map[string]VertexAiLLMModel  `toml:"agent_models"`
	PromptTemplates    map[string]string            `toml:"prompt_templates"`
	Voice              Voice                        `toml:"voice"`
	Ledger             Ledger                       `toml:"ledger"`
	Storage            Storage                      `toml:"storage"`
	BigQueryDataSource BigQueryDataSource           `toml:"big_query_data_source"`
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"`
}

// NewConfig returns a config with the defaults the TOML files override.
func NewConfig() *Config {
	return &Config{
		Application: Application{
			Name:          "script-factory",
			Backend:       BackendVertex,
			ListenAddress: ":8080",
			LogLevel:      "info",
		},
		Limits: Limits{
			MaxDuration:      15,
			MaxShotCount:     5,
			MaxBatchSize:     10,
			InterUnitDelayMs: 1500,
			RetryBaseDelayMs: 1000,
		},
		Voice: Voice{TimeoutSeconds: 60},
		Ledger: Ledger{
			KeyPrefix:         "credits",
			StartingBalance:   10,
			IdempotencyTTLMin: 24 * 60,
		},
		Storage:            Storage{SignedURLMinutes: 15},
		Variants:           make(map[string]Variant),
		AgentModels:        make(map[string]VertexAiLLMModel),
		PromptTemplates:    make(map[string]string),
		TopicSubscriptions: make(map[string]TopicSubscription),
	}
}
