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
	"math"
	"testing"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/services"
	test "github.com/jaycherian/gcp-go-ad-analysis/internal/testutil"
	"github.com/zeebo/assert"
)

const query = "wealthy luxury expensive"

// unit returns a 2-d vector whose cosine with the query vector {1, 0} is c.
func unit(c float64) []float32 {
	return []float32{float32(c), float32(math.Sqrt(1 - c*c))}
}

func near(t *testing.T, got, want float64) {
	t.Helper()
	assert.That(t, math.Abs(got-want) < 1e-6)
}

// rankingFixture indexes three images whose similarities to the query are
// 0.9, 0.5 and 0.1, a video, and two failed records.
func rankingFixture(t *testing.T) (*services.SearchIndex, *test.StubEmbedder) {
	t.Helper()
	mapping := model.AnalysisMapping{
		"a_low.png":   {"luxury_index": 0.1, "activity_level": "sedentary"},
		"b_mid.png":   {"luxury_index": 0.5, "activity_level": "sedentary"},
		"c_high.png":  {"luxury_index": 0.9, "activity_level": "dynamic"},
		"spot.mp4":    {"luxury_index": 0.3, "music_intensity": "high", "scene_cuts": []any{1.0, 2.5}},
		"broken.png":  {"error": "failed to decode image", "status": "failed"},
		"partial.png": {"luxury_index": 0.9, "analysis_error": "missing analysis"},
	}
	embedder := &test.StubEmbedder{Dim: 2, Vectors: map[string][]float32{
		query: {1, 0},
		services.ProjectText(mapping["a_low.png"]):  unit(0.1),
		services.ProjectText(mapping["b_mid.png"]):  unit(0.5),
		services.ProjectText(mapping["c_high.png"]): unit(0.9),
		services.ProjectText(mapping["spot.mp4"]):   unit(0.7),
	}}

	idx := services.NewSearchIndex(embedder, 50)
	assert.NoError(t, idx.Index(context.Background(), mapping))
	return idx, embedder
}

func filenames(results []*model.SearchResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Filename)
	}
	return out
}

func TestSearchRanksBySimilarity(t *testing.T) {
	idx, _ := rankingFixture(t)

	results, err := idx.Search(context.Background(), query, 10, model.MediaKindImage)
	assert.NoError(t, err)
	assert.DeepEqual(t, filenames(results), []string{"c_high.png", "b_mid.png", "a_low.png"})
	near(t, results[0].Similarity, 0.9)
	near(t, results[1].Similarity, 0.5)
	near(t, results[2].Similarity, 0.1)

	assert.Equal(t, results[0].FileType, model.MediaKindImage)
	assert.Equal(t, results[0].Analysis["activity_level"], "dynamic")
	assert.Equal(t, results[0].SearchTextPreview, services.Preview(services.ProjectText(results[0].Analysis)))
}

func TestSearchKindFilterAndTopK(t *testing.T) {
	idx, _ := rankingFixture(t)
	ctx := context.Background()

	videos, err := idx.Search(ctx, query, 10, model.MediaKindVideo)
	assert.NoError(t, err)
	assert.DeepEqual(t, filenames(videos), []string{"spot.mp4"})
	assert.Equal(t, videos[0].FileType, model.MediaKindVideo)

	both, err := idx.Search(ctx, query, 2, model.MediaKindUnknown)
	assert.NoError(t, err)
	assert.DeepEqual(t, filenames(both), []string{"c_high.png", "spot.mp4"})
}

func TestSearchWithFilters(t *testing.T) {
	idx, _ := rankingFixture(t)
	ctx := context.Background()

	results, err := idx.SearchWithFilters(ctx, query, model.SearchFilters{"min_luxury_index": 0.7}, 10)
	assert.NoError(t, err)
	assert.DeepEqual(t, filenames(results), []string{"c_high.png"})

	results, err = idx.SearchWithFilters(ctx, query, model.SearchFilters{"max_luxury_index": 0.5}, 10)
	assert.NoError(t, err)
	assert.DeepEqual(t, filenames(results), []string{"spot.mp4", "b_mid.png", "a_low.png"})

	results, err = idx.SearchWithFilters(ctx, query, model.SearchFilters{"activity_level": "sedentary"}, 1)
	assert.NoError(t, err)
	assert.DeepEqual(t, filenames(results), []string{"b_mid.png"})

	// A missing field counts as 0.
	results, err = idx.SearchWithFilters(ctx, query, model.SearchFilters{"max_humor_index": 0.0}, 10)
	assert.NoError(t, err)
	assert.Equal(t, len(results), 4)

	results, err = idx.SearchWithFilters(ctx, query, nil, 2)
	assert.NoError(t, err)
	assert.DeepEqual(t, filenames(results), []string{"c_high.png", "spot.mp4"})

	_, err = idx.SearchWithFilters(ctx, query, model.SearchFilters{"min_luxury_index": "high"}, 10)
	assert.That(t, errors.Is(err, services.ErrInvalidFilter))
}

func TestSearchTiesKeepIndexOrder(t *testing.T) {
	mapping := model.AnalysisMapping{
		"z.png": {"purchase_urgency": "high"},
		"m.png": {"purchase_urgency": "high"},
		"a.png": {"purchase_urgency": "high"},
	}
	text := services.ProjectText(mapping["a.png"])
	embedder := &test.StubEmbedder{Dim: 2, Vectors: map[string][]float32{
		"urgent": {1, 0},
		text:     unit(0.4),
	}}
	idx := services.NewSearchIndex(embedder, 0)
	assert.NoError(t, idx.Index(context.Background(), mapping))

	results, err := idx.Search(context.Background(), "urgent", 0, model.MediaKindUnknown)
	assert.NoError(t, err)
	assert.DeepEqual(t, filenames(results), []string{"a.png", "m.png", "z.png"})
}

func TestSearchBeforeIndexing(t *testing.T) {
	idx := services.NewSearchIndex(services.NewHashingEmbedder(8), 50)

	_, err := idx.Search(context.Background(), query, 5, model.MediaKindUnknown)
	assert.That(t, errors.Is(err, services.ErrNotIndexed))
	_, err = idx.Stats()
	assert.That(t, errors.Is(err, services.ErrNotIndexed))

	assert.NoError(t, idx.Index(context.Background(), model.AnalysisMapping{}))
	results, err := idx.Search(context.Background(), query, 5, model.MediaKindUnknown)
	assert.NoError(t, err)
	assert.Equal(t, len(results), 0)
}

func TestStats(t *testing.T) {
	idx, _ := rankingFixture(t)
	stats, err := idx.Stats()
	assert.NoError(t, err)
	assert.DeepEqual(t, *stats, model.IndexStats{TotalFiles: 4, TotalVideos: 1, TotalImages: 3, EmbeddingDimension: 2})
}

func TestIndexReplacesContent(t *testing.T) {
	idx, _ := rankingFixture(t)
	assert.NoError(t, idx.Index(context.Background(), model.AnalysisMapping{"only.png": {"luxury_index": 0.9}}))

	stats, err := idx.Stats()
	assert.NoError(t, err)
	assert.Equal(t, stats.TotalFiles, 1)
}

func TestIndexEmbedderFailure(t *testing.T) {
	idx := services.NewSearchIndex(&test.StubEmbedder{Dim: 2, Err: errors.New("quota exceeded")}, 50)
	err := idx.Index(context.Background(), model.AnalysisMapping{"a.png": {"luxury_index": 0.9}})
	assert.Error(t, err)

	_, err = idx.Stats()
	assert.That(t, errors.Is(err, services.ErrNotIndexed))
}

func TestHashingEmbedder(t *testing.T) {
	e := services.NewHashingEmbedder(0)
	assert.Equal(t, e.Dimension(), services.DefaultEmbeddingDimension)

	v, err := e.Embed(context.Background(), []string{"luxury premium", "luxury premium", "funny comedy", ""})
	assert.NoError(t, err)
	assert.DeepEqual(t, v[0], v[1])
	near(t, services.Cosine(v[0], v[0]), 1)
	assert.That(t, services.Cosine(v[0], v[2]) < 0.99)
	assert.Equal(t, services.Cosine(v[3], v[0]), 0.0)

	// Ranks a luxury record above an unrelated one for a luxury query.
	mapping := model.AnalysisMapping{
		"lux.png":   {"luxury_index": 0.95},
		"funny.png": {"humor_index": 0.95},
	}
	idx := services.NewSearchIndex(e, 50)
	assert.NoError(t, idx.Index(context.Background(), mapping))
	results, err := idx.Search(context.Background(), "luxury expensive premium", 2, model.MediaKindUnknown)
	assert.NoError(t, err)
	assert.Equal(t, results[0].Filename, "lux.png")
}

func TestSearchServiceLoadsFromArtifact(t *testing.T) {
	store := services.NewArtifactStore(t.TempDir())
	embedder := services.NewHashingEmbedder(64)
	search := services.NewSearchService(embedder, 50, store)
	ctx := context.Background()

	_, err := search.Index(ctx, "missing")
	assert.That(t, errors.Is(err, services.ErrDatasetNotFound))

	data, err := model.AnalysisMapping{"lux.png": {"luxury_index": 0.9}, "bad.png": {"error": "x", "status": "failed"}}.Encode()
	assert.NoError(t, err)
	assert.NoError(t, store.Write("summer", data))

	idx, err := search.Index(ctx, "summer")
	assert.NoError(t, err)
	stats, err := idx.Stats()
	assert.NoError(t, err)
	assert.Equal(t, stats.TotalFiles, 1)

	again, err := search.Index(ctx, "summer")
	assert.NoError(t, err)
	assert.That(t, again == idx)

	replaced, err := search.Reindex(ctx, "summer", model.AnalysisMapping{})
	assert.NoError(t, err)
	current, err := search.Index(ctx, "summer")
	assert.NoError(t, err)
	assert.That(t, current == replaced)
}
