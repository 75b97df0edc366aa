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

import "google.golang.org/genai"

func stringSchema() *genai.Schema {
	return &genai.Schema{Type: genai.TypeString}
}

func bilingualSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"en": stringSchema(),
			"th": stringSchema(),
		},
		Required: []string{"en", "th"},
	}
}

func hashtagSchema() *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Items: stringSchema()}
}

// ScriptListSchema constrains output to an array of scripts.
func ScriptListSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"title":             stringSchema(),
				"thumbnail_prompt":  bilingualSchema(),
				"shot_prompts":      {Type: genai.TypeArray, Items: bilingualSchema()},
				"voice_over_script": stringSchema(),
				"description":       stringSchema(),
				"hashtags":          hashtagSchema(),
			},
			Required: []string{"title", "thumbnail_prompt", "shot_prompts", "voice_over_script", "description", "hashtags"},
		},
	}
}

// StoryboardListSchema constrains output to an array of storyboards.
func StoryboardListSchema() *genai.Schema {
	scene := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"asset_type":       {Type: genai.TypeString, Enum: []string{"user_image", "user_video", "generated"}},
			"asset_index":      {Type: genai.TypeInteger},
			"visual_prompt_th": stringSchema(),
			"visual_prompt_en": stringSchema(),
			"voiceover":        stringSchema(),
		},
		Required: []string{"asset_type", "voiceover", "visual_prompt_en"},
	}
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"concept_name": stringSchema(),
				"insight":      stringSchema(),
				"hook":         stringSchema(),
				"scenes":       {Type: genai.TypeArray, Items: scene},
				"hashtags":     hashtagSchema(),
			},
			Required: []string{"concept_name", "insight", "hook", "scenes", "hashtags"},
		},
	}
}

// SchemaForKind returns the response schema for a record kind, or nil.
func SchemaForKind(kind string) *genai.Schema {
	switch kind {
	case "script":
		return ScriptListSchema()
	case "storyboard":
		return StoryboardListSchema()
	}
	return nil
}
