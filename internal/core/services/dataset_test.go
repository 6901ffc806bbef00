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

package services_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/cor"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/services"
	test "github.com/jaycherian/gcp-go-ad-analysis/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChain stands in for the analysis workflow.
type fakeChain struct {
	cor.BaseCommand
	calls atomic.Int32
	run   func(context cor.Context)
}

func (f *fakeChain) Execute(context cor.Context) {
	f.calls.Add(1)
	f.run(context)
}

// persistingChain writes a one-record artifact for the dataset in context.
func persistingChain(store *services.ArtifactStore, delay time.Duration) *fakeChain {
	return &fakeChain{
		BaseCommand: *cor.NewBaseCommand("fake-analysis"),
		run: func(context cor.Context) {
			time.Sleep(delay)
			dataset := context.Get(services.DatasetParam).(string)
			mapping := model.AnalysisMapping{"ad_red.png": {"luxury_index": 0.4}}
			data, _ := mapping.Encode()
			if err := store.Write(dataset, data); err != nil {
				context.AddError("fake-analysis", err)
				return
			}
			context.Add(services.MappingParam, mapping)
			context.Add(services.ArtifactParam, data)
		},
	}
}

func failingChain(err error) *fakeChain {
	return &fakeChain{
		BaseCommand: *cor.NewBaseCommand("fake-analysis"),
		run:         func(context cor.Context) { context.AddError("fake-analysis", err) },
	}
}

func TestProcessArchiveShortCircuitsOnArtifact(t *testing.T) {
	store := services.NewArtifactStore(t.TempDir())
	chain := persistingChain(store, 0)
	datasets := services.NewDatasetService(store, chain)
	archive := test.ZipBytes(t, test.AdArchive(t))
	ctx := context.Background()

	first, err := datasets.ProcessArchive(ctx, "summer.zip", archive, "")
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, "summer", first.Dataset)
	assert.NotEmpty(t, first.RunID)
	assert.EqualValues(t, 1, chain.calls.Load())

	second, err := datasets.ProcessArchive(ctx, "summer.zip", archive, "")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, first.Mapping, second.Mapping)
	assert.EqualValues(t, 1, chain.calls.Load())

	// The artifact wins even over an unreadable upload.
	third, err := datasets.ProcessArchive(ctx, "other.zip", []byte("garbage"), "summer")
	require.NoError(t, err)
	assert.True(t, third.Cached)
	assert.EqualValues(t, 1, chain.calls.Load())

	loaded, err := datasets.Load("summer")
	require.NoError(t, err)
	assert.Equal(t, first.Data, loaded.Data)
}

func TestProcessArchiveInputErrors(t *testing.T) {
	store := services.NewArtifactStore(t.TempDir())
	chain := persistingChain(store, 0)
	datasets := services.NewDatasetService(store, chain)
	ctx := context.Background()

	_, err := datasets.ProcessArchive(ctx, "bad.zip", []byte("not a zip"), "")
	assert.ErrorIs(t, err, services.ErrInvalidArchive)

	empty := test.ZipBytes(t, map[string][]byte{"readme.txt": []byte("nothing to see")})
	_, err = datasets.ProcessArchive(ctx, "empty.zip", empty, "")
	assert.ErrorIs(t, err, services.ErrEmptyArchive)

	assert.EqualValues(t, 0, chain.calls.Load())
	assert.False(t, errors.Is(err, services.ErrProcessing))
}

func TestProcessArchiveFailuresAreDistinguishable(t *testing.T) {
	archive := test.ZipBytes(t, test.AdArchive(t))
	ctx := context.Background()

	store := services.NewArtifactStore(t.TempDir())
	_, err := services.NewDatasetService(store, failingChain(errors.New("model unavailable"))).
		ProcessArchive(ctx, "summer.zip", archive, "")
	assert.ErrorIs(t, err, services.ErrProcessing)
	assert.NotErrorIs(t, err, services.ErrInvalidArchive)
	assert.False(t, store.Exists("summer"))

	_, err = services.NewDatasetService(store, failingChain(services.ErrPersistence)).
		ProcessArchive(ctx, "summer.zip", archive, "")
	assert.ErrorIs(t, err, services.ErrPersistence)

	// A chain that neither fails nor persists is a persistence failure.
	silent := &fakeChain{BaseCommand: *cor.NewBaseCommand("noop"), run: func(cor.Context) {}}
	_, err = services.NewDatasetService(store, silent).ProcessArchive(ctx, "summer.zip", archive, "")
	assert.ErrorIs(t, err, services.ErrPersistence)

	// Failed runs leave nothing cached, so a retry runs again.
	chain := persistingChain(store, 0)
	res, err := services.NewDatasetService(store, chain).ProcessArchive(ctx, "summer.zip", archive, "")
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.EqualValues(t, 1, chain.calls.Load())
}

func TestProcessArchiveCollapsesConcurrentRuns(t *testing.T) {
	store := services.NewArtifactStore(t.TempDir())
	chain := persistingChain(store, 50*time.Millisecond)
	datasets := services.NewDatasetService(store, chain)
	archive := test.ZipBytes(t, test.AdArchive(t))

	var wg sync.WaitGroup
	results := make([]*services.Result, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := datasets.ProcessArchive(context.Background(), "summer.zip", archive, "")
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, chain.calls.Load())
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, results[0].Data, r.Data)
	}
}
