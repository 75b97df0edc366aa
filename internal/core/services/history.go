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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/jaycherian/gcp-go-script-factory/internal/core/model"
)

// DefaultHistoryLimit caps a history listing when the caller asks for none.
const DefaultHistoryLimit = 50

// HistoryRow is one persisted record. The record itself is kept as JSON so
// scripts and storyboards share a table.
type HistoryRow struct {
	RequestID   string    `bigquery:"request_id" json:"request_id"`
	UserID      string    `bigquery:"user_id" json:"user_id"`
	Variant     string    `bigquery:"variant" json:"variant"`
	Kind        string    `bigquery:"kind" json:"kind"`
	Topic       string    `bigquery:"topic" json:"topic"`
	Style       string    `bigquery:"style" json:"style"`
	RecordIndex int       `bigquery:"record_index" json:"record_index"`
	Title       string    `bigquery:"title" json:"title"`
	Hashtags    string    `bigquery:"hashtags" json:"hashtags"`
	Payload     string    `bigquery:"payload" json:"payload"`
	CreatedAt   time.Time `bigquery:"created_at" json:"created_at"`
}

// NewHistoryRows flattens the records of a finished run into rows.
func NewHistoryRows(req *model.GenerationRequest, records []model.Record, now time.Time) ([]*HistoryRow, error) {
	out := make([]*HistoryRow, 0, len(records))
	for i, record := range records {
		payload, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal record %d of %s: %w", i, req.RequestID, err)
		}
		out = append(out, &HistoryRow{
			RequestID:   req.RequestID,
			UserID:      req.UserID,
			Variant:     req.Variant,
			Kind:        record.Kind(),
			Topic:       req.Topic,
			Style:       req.Style,
			RecordIndex: i,
			Title:       record.DisplayTitle(),
			Hashtags:    Hashtags(record.TagList()),
			Payload:     string(payload),
			CreatedAt:   now,
		})
	}
	return out, nil
}

// HistoryService stores and lists finished runs in BigQuery.
type HistoryService struct {
	BigqueryClient *bigquery.Client // Client for interacting with Google BigQuery.
	DatasetName    string           // The BigQuery dataset, e.g. "script_factory".
	HistoryTable   string           // The table holding one row per generated record.
}

// GetFQN returns the history table name in the dotted form standard SQL
// expects, e.g. `gcp-project-id.script_factory.history`.
func (s *HistoryService) GetFQN() string {
	fqn := s.BigqueryClient.Dataset(s.DatasetName).Table(s.HistoryTable).FullyQualifiedName()
	return strings.Replace(fqn, ":", ".", -1)
}

// Record streams the records of a finished run into the history table.
func (s *HistoryService) Record(ctx context.Context, req *model.GenerationRequest, records []model.Record) error {
	rows, err := NewHistoryRows(req, records, time.Now().UTC())
	if err != nil {
		return err
	}
	inserter := s.BigqueryClient.Dataset(s.DatasetName).Table(s.HistoryTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("bigquery insert failed for request %s: %w", req.RequestID, err)
	}
	return nil
}

// List returns up to limit of the user's most recent rows.
func (s *HistoryService) List(ctx context.Context, userID string, limit int) ([]*HistoryRow, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	q := s.BigqueryClient.Query(fmt.Sprintf(QryHistoryByUser, s.GetFQN()))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "limit", Value: limit},
	}
	itr, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*HistoryRow, 0)
	for {
		var row HistoryRow
		err := itr.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return out, err
		}
		out = append(out, &row)
	}
	return out, nil
}
