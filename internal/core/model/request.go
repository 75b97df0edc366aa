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

package model

import (
	"fmt"
	"strings"
)

// DefaultStyle is used when a request leaves the style empty.
const DefaultStyle = "ทั่วไป"

// Limits are the input ceilings applied before any model call is issued.
type Limits struct {
	MaxDuration  int // seconds per clip
	MaxShotCount int // shots per clip
	MaxBatchSize int // units per run
}

// GenerationRequest is the user's input for a single run.
type GenerationRequest struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	Variant   string `json:"variant"`
	Topic     string `json:"topic"`
	Style     string `json:"style"`
	Duration  int    `json:"duration"`
	ShotCount int    `json:"shot_count"`
	BatchSize int    `json:"batch_size"`
}

// Normalize trims free text and fills in the default style and a batch size
// of one.
func (r *GenerationRequest) Normalize() {
	r.Topic = strings.TrimSpace(r.Topic)
	r.Style = strings.TrimSpace(r.Style)
	if r.Style == "" {
		r.Style = DefaultStyle
	}
	if r.BatchSize == 0 {
		r.BatchSize = 1
	}
}

// Validate checks the request against limits. Duration and shot count are
// only required for script requests; the ceilings only apply when
// enforceCeiling is set. The returned error is always a *Failure of kind
// FailureValidation.
func (r *GenerationRequest) Validate(kind string, limits Limits, enforceCeiling bool) error {
	if r.Topic == "" {
		return NewValidationFailure("กรุณาใส่หัวข้อที่ต้องการสร้างสคริปต์")
	}
	if r.BatchSize < 1 || (limits.MaxBatchSize > 0 && r.BatchSize > limits.MaxBatchSize) {
		return NewValidationFailure(fmt.Sprintf("จำนวนคลิปต้องอยู่ระหว่าง 1 ถึง %d", limits.MaxBatchSize))
	}
	if kind != KindScript {
		return nil
	}
	if r.Duration < 1 || r.ShotCount < 1 {
		return NewValidationFailure("ความยาวและจำนวนช็อตต้องมากกว่า 0")
	}
	if enforceCeiling && (r.Duration > limits.MaxDuration || r.ShotCount > limits.MaxShotCount) {
		return NewValidationFailure(fmt.Sprintf("⚠️ เกินลิมิตความปลอดภัย! ความยาวสูงสุด %d วินาที / %d ช็อตต่อคลิป",
			limits.MaxDuration, limits.MaxShotCount))
	}
	return nil
}

// WordBand returns the voice-over word range for a clip of the given length,
// based on a speech rate of 2.0 to 2.8 Thai words per second, rounded up.
func WordBand(duration int) (minWords int, maxWords int) {
	if duration <= 0 {
		return 0, 0
	}
	return duration * 2, (duration*28 + 9) / 10
}

// ShotSeconds is the length of one shot, rounded up.
func ShotSeconds(duration int, shotCount int) int {
	if shotCount <= 0 {
		return duration
	}
	return (duration + shotCount - 1) / shotCount
}

// UnitRequest is the prompt input for a single model call.
type UnitRequest struct {
	*GenerationRequest
	UnitIndex   int // 0-based position in the batch
	TotalUnits  int // batch size
	RecordCount int // records asked for in this call
	MinWords    int
	MaxWords    int
	ShotSeconds int
}

// UnitNumber is the 1-based position used in prompts.
func (u *UnitRequest) UnitNumber() int {
	return u.UnitIndex + 1
}

// Unit builds the request for unit index of a batch that asks for count
// records in one call.
func (r *GenerationRequest) Unit(index int, count int) *UnitRequest {
	minWords, maxWords := WordBand(r.Duration)
	return &UnitRequest{
		GenerationRequest: r,
		UnitIndex:         index,
		TotalUnits:        r.BatchSize,
		RecordCount:       count,
		MinWords:          minWords,
		MaxWords:          maxWords,
		ShotSeconds:       ShotSeconds(r.Duration, r.ShotCount),
	}
}

// Progress is floor(done*100/total), clamped to 0..100.
func Progress(done int, total int) int {
	if total <= 0 || done <= 0 {
		return 0
	}
	if done >= total {
		return 100
	}
	return done * 100 / total
}
