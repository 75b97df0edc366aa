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

// Package model defines the data structures shared across the application:
// generation requests, the script and storyboard records produced by the
// model, and the per-user generation session.
package model

import (
	"regexp"
	"strconv"
)

// Record kinds. A variant produces exactly one kind.
const (
	KindScript     = "script"
	KindStoryboard = "storyboard"
)

// Storyboard asset types as returned by the model.
const (
	AssetUserImage = "user_image"
	AssetUserVideo = "user_video"
	AssetGenerated = "generated"
)

// Record is a single generated unit held in a session's result list.
type Record interface {
	// Kind returns KindScript or KindStoryboard.
	Kind() string
	// DisplayTitle is the title used for exports and history rows.
	DisplayTitle() string
	// TagList returns the record's hashtags as generated. Exports and
	// history rows render them through this method.
	TagList() []string
}

// BilingualText is a Thai/English pair. Shot prompts carry their timing
// annotation, e.g. "[0-3s]", inside the text itself.
type BilingualText struct {
	EN string `json:"en"`
	TH string `json:"th"`
}

// ScriptRecord is one short-video script.
type ScriptRecord struct {
	Title       string          `json:"title"`
	Thumbnail   BilingualText   `json:"thumbnail_prompt"`
	Shots       []BilingualText `json:"shot_prompts"`
	VoiceOver   string          `json:"voice_over_script"`
	Description string          `json:"description"`
	Hashtags    []string        `json:"hashtags"`

	// Seconds is the estimated clip length, filled in after decoding.
	Seconds int `json:"estimated_duration,omitempty"`
}

func (s *ScriptRecord) Kind() string         { return KindScript }
func (s *ScriptRecord) DisplayTitle() string { return s.Title }
func (s *ScriptRecord) TagList() []string    { return s.Hashtags }

var shotTiming = regexp.MustCompile(`\[(\d+)-(\d+)s\]`)

// EstimatedDuration returns the clip length in seconds, read from the end of
// the last shot's "[a-bs]" annotation. Without an annotation it falls back to
// four seconds per shot plus three for the outro.
func (s *ScriptRecord) EstimatedDuration() int {
	if len(s.Shots) > 0 {
		last := s.Shots[len(s.Shots)-1]
		for _, text := range []string{last.TH, last.EN} {
			if m := shotTiming.FindStringSubmatch(text); m != nil {
				if end, err := strconv.Atoi(m[2]); err == nil {
					return end
				}
			}
		}
	}
	return len(s.Shots)*4 + 3
}

// StoryboardScene is one scene of a storyboard. AssetIndex is 1-based and
// refers to the user's uploaded images when AssetType is AssetUserImage.
type StoryboardScene struct {
	AssetType      string `json:"asset_type"`
	AssetIndex     int    `json:"asset_index,omitempty"`
	VisualPromptTH string `json:"visual_prompt_th"`
	VisualPromptEN string `json:"visual_prompt_en"`
	VoiceOver      string `json:"voiceover"`
}

// StoryboardRecord is one storyboard concept.
type StoryboardRecord struct {
	ConceptName string            `json:"concept_name"`
	Insight     string            `json:"insight"`
	Hook        string            `json:"hook"`
	Scenes      []StoryboardScene `json:"scenes"`
	Hashtags    []string          `json:"hashtags"`
}

func (s *StoryboardRecord) Kind() string         { return KindStoryboard }
func (s *StoryboardRecord) DisplayTitle() string { return s.ConceptName }
func (s *StoryboardRecord) TagList() []string    { return s.Hashtags }
