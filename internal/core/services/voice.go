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

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/imroc/req/v3"

	"github.com/jaycherian/gcp-go-script-factory/internal/core/model"
)

// DefaultAudioMIME is assumed when the voice server's payload cannot be
// sniffed.
const DefaultAudioMIME = "audio/mpeg"

// ErrEmptyText rejects a synthesis request with nothing to say.
var ErrEmptyText = errors.New("text must not be empty")

// UpstreamError carries a non-2xx answer of the voice server unchanged.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("voice server returned %d: %s", e.Status, e.Body)
}

// Audio is synthesized speech.
type Audio struct {
	MIMEType string
	Data     []byte
}

// VoiceClient proxies text to the speech synthesis server.
type VoiceClient struct {
	endpoint string
	client   *req.Client
}

func NewVoiceClient(endpoint string, timeout time.Duration) *VoiceClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &VoiceClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   req.C().SetTimeout(timeout),
	}
}

// Synthesize posts {"text": text} to `<endpoint>/generate-voice` and returns
// the audio bytes with their sniffed MIME type.
func (v *VoiceClient) Synthesize(ctx context.Context, text string) (*Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	resp, err := v.client.R().
		SetContext(ctx).
		SetBodyJsonMarshal(map[string]string{"text": text}).
		Post(v.endpoint + "/generate-voice")
	if err != nil {
		return nil, fmt.Errorf("%w: voice request failed: %w", model.ErrTransport, err)
	}
	if !resp.IsSuccessState() {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: resp.String()}
	}

	data := resp.Bytes()
	out := &Audio{MIMEType: DefaultAudioMIME, Data: data}
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		out.MIMEType = kind.MIME.Value
	}
	return out, nil
}
