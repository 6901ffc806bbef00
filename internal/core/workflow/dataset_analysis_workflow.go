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

// Package workflow assembles commands into the chains the server runs: the
// dataset analysis chain behind every archive submission, and the trigger
// chain that feeds archives dropped into the upload bucket to it.
package workflow

import (
	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/cloud"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/analysis"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/commands"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/cor"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/preprocess"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/services"
)

// DatasetAnalysisWorkflow extracts an archive, preprocesses and analyzes
// its media, persists the artifact, mirrors it and refreshes the search
// index. It expects services.DatasetParam and services.ArchiveParam in the
// chain context.
type DatasetAnalysisWorkflow struct {
	cor.BaseCommand
	config         *cloud.Config
	generator      analysis.ContentGenerator
	builder        *analysis.PromptBuilder
	store          *services.ArtifactStore
	search         *services.SearchService
	storageClient  *storage.Client
	bigqueryClient *bigquery.Client
	chain          cor.Chain
}

func (w *DatasetAnalysisWorkflow) IsExecutable(context cor.Context) bool {
	return context != nil && context.GetContext() != nil &&
		context.Get(services.DatasetParam) != nil && context.Get(services.ArchiveParam) != nil
}

func (w *DatasetAnalysisWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

// OrchestratorOptions maps the analysis configuration onto the orchestrator.
func OrchestratorOptions(config cloud.Analysis) analysis.Options {
	opts := analysis.DefaultOptions()
	if config.ImageBatchSize > 0 {
		opts.BatchSizes[model.MediaKindImage] = config.ImageBatchSize
	}
	if config.VideoBatchSize > 0 {
		opts.BatchSizes[model.MediaKindVideo] = config.VideoBatchSize
	}
	if config.MaxConcurrentBatches > 0 {
		opts.MaxConcurrentBatches = config.MaxConcurrentBatches
	}
	if config.CallTimeoutSeconds > 0 {
		opts.CallTimeout = config.CallTimeout()
	}
	if config.MaxRetries >= 0 {
		opts.MaxRetries = config.MaxRetries
	}
	if config.RetryBackoffMillis >= 0 {
		opts.RetryBackoff = config.RetryBackoff()
	}
	return opts
}

// NewPromptBuilder applies the configured template and field overrides.
func NewPromptBuilder(config *cloud.Config) (*analysis.PromptBuilder, error) {
	return analysis.NewPromptBuilder(
		analysis.WithTemplate(model.MediaKindImage, config.PromptTemplates.ImagePrompt),
		analysis.WithTemplate(model.MediaKindVideo, config.PromptTemplates.VideoPrompt),
		analysis.WithSchema(model.MediaKindImage, config.AnalysisFields.Image),
		analysis.WithSchema(model.MediaKindVideo, config.AnalysisFields.Video),
		analysis.WithMaxTextChars(config.Analysis.MaxPromptTextChars),
	)
}

func (w *DatasetAnalysisWorkflow) initializeChain() {
	out := cor.NewBaseChain(w.GetName())

	out.AddCommand(commands.NewArchiveExtractor("extract-archive", w.store))

	out.AddCommand(commands.NewMediaPreprocess("preprocess-media",
		preprocess.NewPreprocessor(w.config.Media, w.config.Analysis.PreprocessWorkers)))

	out.AddCommand(commands.NewBatchAnalyzer("analyze-batches",
		w.generator, w.builder, OrchestratorOptions(w.config.Analysis), w.config.Media, w.store))

	out.AddCommand(commands.NewAnalysisPersist("persist-artifact", w.store))

	// Mirrors skip themselves when their client or target is not configured.
	out.AddCommand(commands.NewArtifactUploadToGCS("mirror-artifact-to-gcs", w.storageClient, w.config.Storage.ArtifactBucket))

	out.AddCommand(commands.NewAnalysisPersistToBigQuery(
		"write-to-bigquery",
		w.bigqueryClient,
		w.config.BigQueryDataSource.DatasetName,
		w.config.BigQueryDataSource.AnalysisTable))

	out.AddCommand(commands.NewSearchIndexer("index-for-search", w.search))

	out.AddCommand(commands.NewMediaCleanup("cleanup-compressed-media", w.store))

	w.chain = out
}

// NewDatasetAnalysisWorkflow builds the chain. clients may be nil, which
// turns the GCS and BigQuery mirrors off.
func NewDatasetAnalysisWorkflow(
	config *cloud.Config,
	generator analysis.ContentGenerator,
	store *services.ArtifactStore,
	search *services.SearchService,
	clients *cloud.ServiceClients) (*DatasetAnalysisWorkflow, error) {

	builder, err := NewPromptBuilder(config)
	if err != nil {
		return nil, err
	}

	w := &DatasetAnalysisWorkflow{
		BaseCommand: *cor.NewBaseCommand("dataset-analysis-pipeline"),
		config:      config,
		generator:   generator,
		builder:     builder,
		store:       store,
		search:      search,
	}
	if clients != nil {
		w.storageClient = clients.StorageClient
		w.bigqueryClient = clients.BiqQueryClient
	}
	w.initializeChain()
	return w, nil
}
