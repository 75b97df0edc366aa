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

package commands

import (
	"fmt"

	"github.com/jaycherian/gcp-go-script-factory/internal/core/cor"
	"github.com/jaycherian/gcp-go-script-factory/internal/core/model"
	"github.com/jaycherian/gcp-go-script-factory/internal/core/parser"
)

// RecordDecoder turns the raw model text into []model.Record using the
// response normalizer. An empty result counts as a malformed response.
type RecordDecoder struct {
	cor.BaseCommand
	kind string
}

func NewRecordDecoder(name string, kind string) *RecordDecoder {
	return &RecordDecoder{BaseCommand: *cor.NewBaseCommand(name), kind: kind}
}

func (s *RecordDecoder) Execute(context cor.Context) {
	in, ok := context.Get(s.GetInputParam()).(string)
	if !ok {
		s.Fail(context, fmt.Errorf("%s expects raw model text as input", s.GetName()))
		return
	}

	records, err := DecodeRecords(s.kind, in)
	if err != nil {
		s.Fail(context, err)
		return
	}
	if len(records) == 0 {
		s.Fail(context, fmt.Errorf("%w: API response was empty or malformed", model.ErrMalformedResponse))
		return
	}
	s.Succeed(context, records)
}

// DecodeRecords parses raw as a list of records of kind.
func DecodeRecords(kind string, raw string) ([]model.Record, error) {
	switch kind {
	case model.KindScript:
		scripts, err := parser.Decode[model.ScriptRecord](raw)
		if err != nil {
			return nil, err
		}
		out := make([]model.Record, 0, len(scripts))
		for _, s := range scripts {
			s.Seconds = s.EstimatedDuration()
			out = append(out, s)
		}
		return out, nil
	case model.KindStoryboard:
		boards, err := parser.Decode[model.StoryboardRecord](raw)
		if err != nil {
			return nil, err
		}
		out := make([]model.Record, 0, len(boards))
		for _, b := range boards {
			out = append(out, b)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown record kind %q", kind)
}
