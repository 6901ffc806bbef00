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

	"github.com/jaycherian/gcp-go-ad-analysis/internal/cloud"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/analysis"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/cor"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/media"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/services"
)

// BatchAnalyzer runs the batch orchestrator over the preprocessing records
// and outputs the dataset's analysis mapping. Compressed attachments are
// written below the dataset's compressed directory, which is registered as
// a temporary path of the chain.
type BatchAnalyzer struct {
	cor.BaseCommand
	generator analysis.ContentGenerator
	builder   *analysis.PromptBuilder
	options   analysis.Options
	media     cloud.Media
	store     *services.ArtifactStore
}

func NewBatchAnalyzer(
	name string,
	generator analysis.ContentGenerator,
	builder *analysis.PromptBuilder,
	options analysis.Options,
	media cloud.Media,
	store *services.ArtifactStore) *BatchAnalyzer {
	return &BatchAnalyzer{
		BaseCommand: *cor.NewBaseCommand(name),
		generator:   generator,
		builder:     builder,
		options:     options,
		media:       media,
		store:       store,
	}
}

func (c *BatchAnalyzer) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) && context.Get(services.DatasetParam) != nil
}

func (c *BatchAnalyzer) Execute(context cor.Context) {
	records := context.Get(c.GetInputParam()).([]*model.PreprocessingRecord)
	dataset := context.Get(services.DatasetParam).(string)

	workDir := c.store.CompressedDir(dataset)
	context.AddTempFile(workDir)

	orchestrator := analysis.NewOrchestrator(c.generator, media.NewCompressor(c.media, workDir), c.builder, c.options)
	mapping, report := orchestrator.Run(context.GetContext(), records)

	// Batches that failed because the run was stopped are not results.
	if err := context.GetContext().Err(); err != nil {
		c.Fail(context, fmt.Errorf("%w: analysis interrupted: %w", services.ErrProcessing, err))
		return
	}

	c.Succeed(context)
	context.Add(services.ReportParam, report)
	context.Add(c.GetOutputParam(), mapping)
}
