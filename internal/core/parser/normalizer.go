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

// Package parser recovers structured records from raw model output. The
// model is asked for a JSON array but the text it returns may be wrapped in
// Markdown fences, surrounded by commentary or cut off mid-object. Normalize
// tries an ordered list of repairs and only checks the top-level shape: an
// array of objects.
package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/jaycherian/gcp-go-script-factory/internal/core/model"
)

// ErrNoResult is returned by Decode when no repair produced an array of
// objects.
var ErrNoResult = fmt.Errorf("%w: no JSON array of objects could be recovered", model.ErrMalformedResponse)

// maxTailCuts bounds how many closing braces dropTail tries.
const maxTailCuts = 64

// Strategy turns the fence-stripped text into a candidate document. ok is
// false when the strategy does not apply to the text.
type Strategy struct {
	Name  string
	Apply func(text string) (candidate string, ok bool)
}

// Strategies are tried in order; the first candidate that parses as an
// array of objects wins.
var Strategies = []Strategy{
	{Name: "as-is", Apply: asIs},
	{Name: "bracket-span", Apply: bracketSpan},
	{Name: "close-array", Apply: closeArray},
	{Name: "wrap-object", Apply: wrapObject},
	{Name: "heal-tail", Apply: healTail},
	{Name: "drop-tail", Apply: dropTail},
}

// Normalize returns the elements of the recovered array and true, or nil and
// false when every strategy failed. Well-formed input is returned unchanged.
func Normalize(raw string) ([]json.RawMessage, bool) {
	if out, ok := objectArray(strings.TrimSpace(raw)); ok {
		return out, true
	}
	text := StripFences(raw)
	for _, s := range Strategies {
		candidate, ok := s.Apply(text)
		if !ok {
			continue
		}
		if out, ok := objectArray(candidate); ok {
			return out, true
		}
	}
	return nil, false
}

// Decode normalizes raw and unmarshals every element into T.
func Decode[T any](raw string) ([]*T, error) {
	elements, ok := Normalize(raw)
	if !ok {
		return nil, ErrNoResult
	}
	out := make([]*T, 0, len(elements))
	for i, element := range elements {
		value := new(T)
		if err := json.Unmarshal(element, value); err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", model.ErrMalformedResponse, i, err)
		}
		out = append(out, value)
	}
	return out, nil
}

// StripFences removes Markdown code fence markers anywhere in the text.
func StripFences(raw string) string {
	text := strings.ReplaceAll(raw, "```json", "")
	text = strings.ReplaceAll(text, "```JSON", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

func objectArray(candidate string) ([]json.RawMessage, bool) {
	if candidate == "" || !gjson.Valid(candidate) {
		return nil, false
	}
	doc := gjson.Parse(candidate)
	if !doc.IsArray() {
		return nil, false
	}
	out := make([]json.RawMessage, 0)
	valid := true
	doc.ForEach(func(_, element gjson.Result) bool {
		if !element.IsObject() {
			valid = false
			return false
		}
		out = append(out, json.RawMessage(element.Raw))
		return true
	})
	if !valid {
		return nil, false
	}
	return out, true
}

func asIs(text string) (string, bool) {
	return text, text != ""
}

// bracketSpan keeps the first '[' through the last ']', dropping any
// commentary around the array.
func bracketSpan(text string) (string, bool) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// closeArray handles a response cut off after the last complete element.
func closeArray(text string) (string, bool) {
	start := strings.Index(text, "[")
	if start < 0 {
		return "", false
	}
	return strings.TrimRight(text[start:], ", \n\r\t") + "]", true
}

// wrapObject turns a bare object into a one-element array.
func wrapObject(text string) (string, bool) {
	if !strings.HasPrefix(text, "{") {
		return "", false
	}
	return "[" + text + "]", true
}

// healTail closes a trailing object that was cut off after a complete value.
func healTail(text string) (string, bool) {
	body, ok := arrayBody(text)
	if !ok {
		return "", false
	}
	return body + "}]", true
}

// dropTail discards the incomplete trailing element by cutting after the
// last closing brace that leaves a valid array.
func dropTail(text string) (string, bool) {
	body, ok := arrayBody(text)
	if !ok {
		return "", false
	}
	end := len(body)
	for i := 0; i < maxTailCuts; i++ {
		cut := strings.LastIndex(body[:end], "}")
		if cut < 0 {
			return "", false
		}
		candidate := body[:cut+1] + "]"
		if gjson.Valid(candidate) {
			return candidate, true
		}
		end = cut
	}
	return "", false
}

// arrayBody returns the text from the opening '[', wrapping a leading bare
// object so both shapes share one repair path.
func arrayBody(text string) (string, bool) {
	if strings.HasPrefix(text, "{") {
		return "[" + text, true
	}
	start := strings.Index(text, "[")
	if start < 0 {
		return "", false
	}
	return text[start:], true
}
