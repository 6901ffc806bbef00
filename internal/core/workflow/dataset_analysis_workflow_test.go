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

package workflow_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/cloud"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/cor"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/services"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-ad-analysis/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	config    *cloud.Config
	generator *test.StubGenerator
	store     *services.ArtifactStore
	search    *services.SearchService
	datasets  *services.DatasetService
}

func newHarness(t *testing.T, generator *test.StubGenerator, opts ...func(*cloud.Config)) *harness {
	t.Helper()
	c := test.CopyConfig(t)
	c.Analysis.ImageBatchSize = 1
	c.Media.TesseractCommand = ""
	for _, opt := range opts {
		opt(c)
	}

	store := services.NewArtifactStore(c.Storage.DatasetRoot)
	search := services.NewSearchService(services.NewHashingEmbedder(c.Search.Dimension), c.Search.CandidatePool, store)
	pipeline, err := workflow.NewDatasetAnalysisWorkflow(c, generator, store, search, nil)
	require.NoError(t, err)

	return &harness{
		config:    c,
		generator: generator,
		store:     store,
		search:    search,
		datasets:  services.NewDatasetService(store, pipeline),
	}
}

func TestDatasetAnalysisEndToEnd(t *testing.T) {
	h := newHarness(t, test.NewEchoGenerator())
	archive := test.ZipBytes(t, test.AdArchive(t))

	result, err := h.datasets.ProcessArchive(ctx, "summer-campaign.zip", archive, "")
	require.NoError(t, err)
	assert.Equal(t, "summer-campaign", result.Dataset)
	assert.False(t, result.Cached)
	assert.NotEmpty(t, result.RunID)

	require.Len(t, result.Mapping, 3)
	assert.ElementsMatch(t, []string{"ad_blue.png", "ad_corrupt.png", "ad_red.png"}, result.Mapping.Filenames())

	corrupt := result.Mapping["ad_corrupt.png"]
	assert.Contains(t, corrupt, model.KeyError)
	assert.Equal(t, model.StatusFailed, corrupt[model.KeyStatus])

	for _, name := range []string{"ad_red.png", "ad_blue.png"} {
		rec := result.Mapping[name]
		assert.False(t, rec.HasError(), name)
		assert.Equal(t, 0.9, rec["luxury_index"], name)
		assert.Equal(t, name, rec["source_attachment"], name)
		assert.Equal(t, "PNG", rec["format"], name)
	}
	assert.Equal(t, "16x16", result.Mapping["ad_red.png"]["resolution"])
	assert.Equal(t, "24x12", result.Mapping["ad_blue.png"]["resolution"])

	// One call per decodable image; the corrupt file never reaches the model.
	assert.Equal(t, 2, h.generator.Calls())

	require.NotNil(t, result.Report)
	assert.Equal(t, 2, result.Report.Kinds[model.MediaKindImage].Batches)
	assert.Zero(t, result.Report.Kinds[model.MediaKindImage].FailedBatches)

	// The artifact on disk is what the result carries.
	data, err := h.store.Read(result.Dataset)
	require.NoError(t, err)
	assert.Equal(t, result.Data, data)

	_, err = os.Stat(h.store.CompressedDir(result.Dataset))
	assert.True(t, os.IsNotExist(err), "compressed media should be removed after the run")
	_, err = os.Stat(h.store.MediaDir(result.Dataset))
	assert.NoError(t, err, "extracted media is kept for reruns")
}

func TestDatasetAnalysisIsCached(t *testing.T) {
	h := newHarness(t, test.NewEchoGenerator())
	archive := test.ZipBytes(t, test.AdArchive(t))

	first, err := h.datasets.ProcessArchive(ctx, "summer-campaign.zip", archive, "")
	require.NoError(t, err)
	calls := h.generator.Calls()

	second, err := h.datasets.ProcessArchive(ctx, "summer-campaign.zip", archive, "")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Nil(t, second.Report)
	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, calls, h.generator.Calls(), "a cached dataset must not call the model")

	// An explicit name wins over the archive name.
	named, err := h.datasets.ProcessArchive(ctx, "summer-campaign.zip", archive, "Q3 launch")
	require.NoError(t, err)
	assert.Equal(t, "Q3_launch", named.Dataset)
	assert.False(t, named.Cached)
}

func TestDatasetAnalysisOutlivesCaller(t *testing.T) {
	callerCtx, cancelCaller := context.WithCancel(ctx)
	defer cancelCaller()

	echo := test.NewEchoGenerator()
	// The submitting client goes away as soon as the first model call starts.
	generator := test.NewStubGenerator(func(c context.Context, call int, prompt string, attachments []*model.Attachment) (string, error) {
		if call == 1 {
			cancelCaller()
		}
		if err := c.Err(); err != nil {
			return "", err
		}
		return echo.Fn(c, call, prompt, attachments)
	})
	h := newHarness(t, generator)
	archive := test.ZipBytes(t, test.AdArchive(t))

	first, err := h.datasets.ProcessArchive(callerCtx, "summer-campaign.zip", archive, "")
	require.NoError(t, err)
	for _, name := range []string{"ad_red.png", "ad_blue.png"} {
		assert.NotContains(t, first.Mapping[name], model.KeyAnalysisError, name)
	}

	second, err := h.datasets.ProcessArchive(ctx, "summer-campaign.zip", archive, "")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Data, second.Data)
}

func TestDatasetAnalysisRunDeadlineIsNotCached(t *testing.T) {
	generator := test.NewStubGenerator(func(c context.Context, _ int, _ string, _ []*model.Attachment) (string, error) {
		<-c.Done()
		return "", c.Err()
	})
	h := newHarness(t, generator)
	h.datasets.WithRunTimeout(200 * time.Millisecond)
	archive := test.ZipBytes(t, test.AdArchive(t))

	_, err := h.datasets.ProcessArchive(ctx, "summer-campaign.zip", archive, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrProcessing))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, h.store.Exists("summer-campaign"), "an interrupted run must not become the cache entry")

	// The next submission runs the analysis again.
	h.generator.Fn = test.NewEchoGenerator().Fn
	h.datasets.WithRunTimeout(0)
	result, err := h.datasets.ProcessArchive(ctx, "summer-campaign.zip", archive, "")
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.NotContains(t, result.Mapping["ad_red.png"], model.KeyAnalysisError)
}

func TestDatasetAnalysisIndexesForSearch(t *testing.T) {
	h := newHarness(t, test.NewEchoGenerator())
	archive := test.ZipBytes(t, test.AdArchive(t))

	result, err := h.datasets.ProcessArchive(ctx, "summer-campaign.zip", archive, "")
	require.NoError(t, err)

	idx, err := h.search.Index(ctx, result.Dataset)
	require.NoError(t, err)

	stats, err := idx.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalFiles)
	assert.Equal(t, 2, stats.TotalImages)
	assert.Equal(t, h.config.Search.Dimension, stats.EmbeddingDimension)

	results, err := idx.SearchWithFilters(ctx, "luxury premium wealthy", model.SearchFilters{"min_luxury_index": 0.7}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NotEqual(t, "ad_corrupt.png", r.Filename)
		assert.Equal(t, model.MediaKindImage, r.FileType)
	}
}

func TestDatasetAnalysisModelFailureIsPerBatch(t *testing.T) {
	// The first call answers garbage; the other batch is unaffected.
	var once sync.Once
	generator := test.NewStubGenerator(func(_ context.Context, _ int, _ string, attachments []*model.Attachment) (string, error) {
		broken := false
		once.Do(func() { broken = true })
		if broken {
			return "I cannot help with that.", nil
		}
		return test.IndexedResponse(len(attachments), func(i int) map[string]any {
			return model.ExampleAnalysis(model.MediaKindImage)
		}), nil
	})
	h := newHarness(t, generator, func(c *cloud.Config) { c.Analysis.MaxRetries = 0 })

	result, err := h.datasets.ProcessArchive(ctx, "mixed.zip", test.ZipBytes(t, test.AdArchive(t)), "")
	require.NoError(t, err)
	require.Len(t, result.Mapping, 3)

	var analyzed, failed int
	for _, name := range []string{"ad_red.png", "ad_blue.png"} {
		if _, ok := result.Mapping[name][model.KeyAnalysisError]; ok {
			failed++
		} else {
			analyzed++
		}
	}
	assert.Equal(t, 1, analyzed)
	assert.Equal(t, 1, failed)
}

func TestDatasetAnalysisSkipsWithoutArchive(t *testing.T) {
	h := newHarness(t, test.NewEchoGenerator())
	pipeline, err := workflow.NewDatasetAnalysisWorkflow(h.config, h.generator, h.store, h.search, nil)
	require.NoError(t, err)

	chCtx := cor.NewBaseContext()
	defer chCtx.Close()
	chCtx.SetContext(ctx)
	chCtx.Add(services.DatasetParam, "nothing")

	assert.False(t, pipeline.IsExecutable(chCtx))
}
