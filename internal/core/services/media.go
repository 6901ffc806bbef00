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

	"cloud.google.com/go/bigquery"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
	"google.golang.org/api/iterator"
)

// MediaService reads the analysis rows mirrored to BigQuery. The local
// artifact remains the cache of record; this is the query surface for
// analysts and dashboards.
type MediaService struct {
	BigqueryClient *bigquery.Client
	DatasetName    string // BigQuery dataset, e.g. "ad_analysis"
	AnalysisTable  string // table holding one row per analyzed file
}

// DatasetSummary is one row of QryFailedCount.
type DatasetSummary struct {
	Dataset string `bigquery:"dataset" json:"dataset"`
	Failed  int64  `bigquery:"failed" json:"failed"`
	Total   int64  `bigquery:"total" json:"total"`
}

// GetFQN returns the fully qualified, dot separated analysis table name.
func (s *MediaService) GetFQN() string {
	fqn := s.BigqueryClient.Dataset(s.DatasetName).Table(s.AnalysisTable).FullyQualifiedName()
	return strings.Replace(fqn, ":", ".", -1)
}

// List returns the mirrored rows of a dataset.
func (s *MediaService) List(ctx context.Context, dataset string) (out []*model.AnalysisRow, err error) {
	q := s.BigqueryClient.Query(fmt.Sprintf(QryListAnalysis, s.GetFQN()))
	q.Parameters = []bigquery.QueryParameter{{Name: "dataset", Value: dataset}}
	itr, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read from BigQuery: %w", err)
	}

	out = make([]*model.AnalysisRow, 0)
	seen := make(map[string]bool)
	for {
		r := &model.AnalysisRow{}
		err := itr.Next(r)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("failed to iterate results: %w", err)
		}
		if seen[r.Filename] {
			continue
		}
		seen[r.Filename] = true
		out = append(out, r)
	}
	return out, nil
}

// Get returns the latest mirrored record of one file.
func (s *MediaService) Get(ctx context.Context, dataset, filename string) (model.AnalysisRecord, error) {
	q := s.BigqueryClient.Query(fmt.Sprintf(QryGetAnalysis, s.GetFQN()))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "dataset", Value: dataset},
		{Name: "filename", Value: filename},
	}
	itr, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read from BigQuery: %w", err)
	}
	row := &model.AnalysisRow{}
	if err := itr.Next(row); err != nil {
		if errors.Is(err, iterator.Done) {
			return nil, fmt.Errorf("%w: %s/%s", ErrDatasetNotFound, dataset, filename)
		}
		return nil, err
	}
	return row.Record()
}

// Summaries counts failed and total files per mirrored dataset.
func (s *MediaService) Summaries(ctx context.Context) ([]*DatasetSummary, error) {
	itr, err := s.BigqueryClient.Query(fmt.Sprintf(QryFailedCount, s.GetFQN())).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read from BigQuery: %w", err)
	}
	out := make([]*DatasetSummary, 0)
	for {
		r := &DatasetSummary{}
		err := itr.Next(r)
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("failed to iterate results: %w", err)
		}
		out = append(out, r)
	}
}
