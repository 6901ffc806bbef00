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

	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/cor"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/services"
)

// SearchIndexer rebuilds the dataset's search index from the new mapping.
// A failure is logged only; the index is rebuilt lazily from the artifact on
// the next search.
type SearchIndexer struct {
	cor.BaseCommand
	search *services.SearchService
}

func NewSearchIndexer(name string, search *services.SearchService) *SearchIndexer {
	return &SearchIndexer{BaseCommand: *cor.NewBaseCommand(name), search: search}
}

func (c *SearchIndexer) IsExecutable(context cor.Context) bool {
	return c.search != nil && c.BaseCommand.IsExecutable(context) && context.Get(services.DatasetParam) != nil
}

func (c *SearchIndexer) Execute(context cor.Context) {
	mapping := context.Get(c.GetInputParam()).(model.AnalysisMapping)
	dataset := context.Get(services.DatasetParam).(string)
	context.Add(c.GetOutputParam(), mapping)

	idx, err := c.search.Reindex(context.GetContext(), dataset, mapping)
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		slog.Warn("search indexing failed", "dataset", dataset, "error", err)
		return
	}
	stats, _ := idx.Stats()
	slog.Info("search index built", "dataset", dataset, "files", stats.TotalFiles)
	c.Succeed(context)
}
