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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"
)

const (
	ConfigFileBaseName  = ".env"
	ConfigFileExtension = ".toml"
	ConfigSeparator     = "."
	EnvConfigFilePrefix = "GCP_CONFIG_PREFIX" // directory holding the config files
	EnvConfigRuntime    = "GCP_RUNTIME"       // runtime overlay name, e.g. "local" or "test"
	MaxRetries          = 3                   // default attempts per model call
)

// ErrEmptyResponse is returned when the model answers without any text.
var ErrEmptyResponse = errors.New("model returned no candidates")

func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// LoadConfig decodes the base configuration file and then the runtime
// overlay into baseConfig. Both files are optional; values in the overlay
// replace those in the base file.
//
// File names are <prefix>/.env.toml and <prefix>/.env.<runtime>.toml where
// prefix comes from GCP_CONFIG_PREFIX and runtime from GCP_RUNTIME
// (default "test").
func LoadConfig(baseConfig interface{}) error {
	configurationFilePrefix := os.Getenv(EnvConfigFilePrefix)
	if len(configurationFilePrefix) > 0 && !strings.HasSuffix(configurationFilePrefix, string(os.PathSeparator)) {
		configurationFilePrefix = configurationFilePrefix + string(os.PathSeparator)
	}

	runtimeEnvironment := os.Getenv(EnvConfigRuntime)
	if runtimeEnvironment == "" {
		runtimeEnvironment = "test"
	}

	baseConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigFileExtension
	envConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigSeparator + runtimeEnvironment + ConfigFileExtension

	for _, fileName := range []string{baseConfigFileName, envConfigFileName} {
		if !fileExists(fileName) {
			slog.Debug("configuration file not found, skipping", "file", fileName)
			continue
		}
		if _, err := toml.DecodeFile(fileName, baseConfig); err != nil {
			return fmt.Errorf("failed to decode configuration file %s: %w", fileName, err)
		}
		slog.Info("loaded configuration file", "file", fileName)
	}
	return nil
}

// RetryPolicy bounds the attempts made for a single model call. Before retry
// attempt n (0-based, so n >= 1) the caller waits BaseDelay * 2^n: with a one
// second base that is 2s, then 4s.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Backoff returns the wait before the given attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	return p.BaseDelay << attempt
}

// SleepContext waits for d or until ctx is done, whichever comes first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// GenerateMultiModalResponse sends content to the model and returns the
// concatenated candidate text with any JSON code fence trimmed.
//
// Failed calls and empty responses are retried according to policy.
// Cancellation is checked before every attempt and during backoff; a
// cancelled context is returned as is and never retried.
func GenerateMultiModalResponse(
	ctx context.Context,
	inputTokenCounter metric.Int64Counter,
	outputTokenCounter metric.Int64Counter,
	retryCounter metric.Int64Counter,
	policy RetryPolicy,
	model TextGenerator,
	content []*genai.Content) (string, error) {

	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if attempt > 0 {
			retryCounter.Add(ctx, 1)
		}

		value, err := generateOnce(ctx, inputTokenCounter, outputTokenCounter, model, content)
		if err == nil {
			return value, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
		slog.WarnContext(ctx, "model call failed", "attempt", attempt+1, "max_attempts", attempts, "error", err)

		if attempt < attempts-1 {
			if err := SleepContext(ctx, policy.Backoff(attempt+1)); err != nil {
				return "", err
			}
		}
	}
	return "", fmt.Errorf("model call failed after %d attempts: %w", attempts, lastErr)
}

func generateOnce(
	ctx context.Context,
	inputTokenCounter metric.Int64Counter,
	outputTokenCounter metric.Int64Counter,
	model TextGenerator,
	content []*genai.Content) (string, error) {

	resp, err := model.GenerateContent(ctx, content)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}
	if resp.UsageMetadata != nil {
		inputTokenCounter.Add(ctx, int64(resp.UsageMetadata.PromptTokenCount))
		outputTokenCounter.Add(ctx, int64(resp.UsageMetadata.CandidatesTokenCount))
	}

	var value strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				value.WriteString(part.Text)
			}
		}
	}
	out := strings.TrimSpace(value.String())
	if out == "" {
		return "", ErrEmptyResponse
	}
	out = strings.TrimPrefix(out, "```json")
	out = strings.TrimSuffix(out, "```")
	return strings.TrimSpace(out), nil
}

// NewTextContent wraps a prompt as a single user turn.
func NewTextContent(prompt string) []*genai.Content {
	return []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
	}
}
