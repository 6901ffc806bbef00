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
	"log/slog"

	"cloud.google.com/go/bigquery"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/cor"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/services"
)

// AnalysisPersistToBigQuery mirrors one row per analyzed file into the
// analysis table. Like the GCS mirror it never fails the run.
type AnalysisPersistToBigQuery struct {
	cor.BaseCommand
	client  *bigquery.Client
	dataset string
	table   string
}

func NewAnalysisPersistToBigQuery(name string, client *bigquery.Client, dataset string, table string) *AnalysisPersistToBigQuery {
	return &AnalysisPersistToBigQuery{BaseCommand: *cor.NewBaseCommand(name), client: client, dataset: dataset, table: table}
}

func (s *AnalysisPersistToBigQuery) IsExecutable(context cor.Context) bool {
	return s.client != nil && s.dataset != "" && s.table != "" &&
		s.BaseCommand.IsExecutable(context) &&
		context.Get(services.DatasetParam) != nil
}

// Rows converts a mapping into table rows in filename order.
func Rows(dataset string, mapping model.AnalysisMapping) ([]*model.AnalysisRow, error) {
	rows := make([]*model.AnalysisRow, 0, len(mapping))
	for _, name := range mapping.Filenames() {
		row, err := model.NewAnalysisRow(dataset, name, mapping[name])
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *AnalysisPersistToBigQuery) Execute(context cor.Context) {
	mapping := context.Get(s.GetInputParam()).(model.AnalysisMapping)
	dataset := context.Get(services.DatasetParam).(string)
	context.Add(s.GetOutputParam(), mapping)

	rows, err := Rows(dataset, mapping)
	if err != nil {
		s.GetErrorCounter().Add(context.GetContext(), 1)
		slog.Warn("failed to build analysis rows", "dataset", dataset, "error", err)
		return
	}

	inserter := s.client.Dataset(s.dataset).Table(s.table).Inserter()
	if err := inserter.Put(context.GetContext(), rows); err != nil {
		s.GetErrorCounter().Add(context.GetContext(), 1)
		slog.Warn("bigquery insert failed", "dataset", dataset, "rows", len(rows), "error", err)
		return
	}

	s.Succeed(context)
	slog.Info("analysis rows persisted", "dataset", dataset, "rows", len(rows))
}
