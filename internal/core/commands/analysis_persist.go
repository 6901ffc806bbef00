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
	"log/slog"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/cor"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/services"
)

// AnalysisPersist writes the mapping as the dataset's artifact. This is the
// only step whose failure fails a run after analysis: without the artifact
// the dataset is not cached.
type AnalysisPersist struct {
	cor.BaseCommand
	store *services.ArtifactStore
}

func NewAnalysisPersist(name string, store *services.ArtifactStore) *AnalysisPersist {
	return &AnalysisPersist{BaseCommand: *cor.NewBaseCommand(name), store: store}
}

func (c *AnalysisPersist) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) && context.Get(services.DatasetParam) != nil
}

func (c *AnalysisPersist) Execute(context cor.Context) {
	mapping := context.Get(c.GetInputParam()).(model.AnalysisMapping)
	dataset := context.Get(services.DatasetParam).(string)

	// Only a completed run becomes the dataset's cache entry.
	if err := context.GetContext().Err(); err != nil {
		c.Fail(context, fmt.Errorf("%w: run stopped before persisting: %w", services.ErrProcessing, err))
		return
	}

	data, err := mapping.Encode()
	if err != nil {
		c.Fail(context, fmt.Errorf("%w: %w", services.ErrPersistence, err))
		return
	}
	if err := c.store.Write(dataset, data); err != nil {
		c.Fail(context, fmt.Errorf("%w: %w", services.ErrPersistence, err))
		return
	}

	slog.Info("analysis persisted", "dataset", dataset, "path", c.store.ArtifactPath(dataset), "bytes", len(data))
	c.Succeed(context)
	context.Add(services.MappingParam, mapping)
	context.Add(services.ArtifactParam, data)
	context.Add(c.GetOutputParam(), mapping)
}
