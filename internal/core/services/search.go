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
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultTopK          = 10
	DefaultCandidatePool = 50
)

var (
	ErrNotIndexed    = errors.New("search index not built")
	ErrInvalidFilter = errors.New("invalid search filter")
)

type indexEntry struct {
	filename string
	kind     model.MediaKind
	text     string
	analysis model.AnalysisRecord
	vector   []float32
}

// SearchIndex is an in-memory vector index over one dataset's analysis
// records. Each record is represented by the embedding of its projected
// text (see ProjectText).
type SearchIndex struct {
	embedder      Embedder
	candidatePool int

	mu      sync.RWMutex
	entries []indexEntry
	indexed bool
}

// NewSearchIndex creates an empty index. candidatePool is the number of
// ranked candidates SearchWithFilters draws from before filtering.
func NewSearchIndex(embedder Embedder, candidatePool int) *SearchIndex {
	if candidatePool < 1 {
		candidatePool = DefaultCandidatePool
	}
	return &SearchIndex{embedder: embedder, candidatePool: candidatePool}
}

// Index replaces the index content with the records of mapping. Records
// carrying an error or analysis_error are skipped. Records are indexed in
// sorted filename order, which is the tie break order of Search.
func (s *SearchIndex) Index(ctx context.Context, mapping model.AnalysisMapping) error {
	ctx, span := otel.Tracer("services.search").Start(ctx, "search_index")
	defer span.End()

	entries := make([]indexEntry, 0, len(mapping))
	texts := make([]string, 0, len(mapping))
	for _, name := range mapping.Filenames() {
		rec := mapping[name]
		if rec.HasError() {
			continue
		}
		kind := model.KindOf(name, rec)
		if kind != model.MediaKindVideo {
			kind = model.MediaKindImage
		}
		text := ProjectText(rec)
		entries = append(entries, indexEntry{filename: name, kind: kind, text: text, analysis: rec})
		texts = append(texts, text)
	}

	if len(texts) > 0 {
		vectors, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed analysis records: %w", err)
		}
		if len(vectors) != len(entries) {
			return fmt.Errorf("embedder returned %d vectors for %d records", len(vectors), len(entries))
		}
		for i := range entries {
			entries[i].vector = vectors[i]
		}
	}
	span.SetAttributes(attribute.Int("indexed", len(entries)), attribute.Int("skipped", len(mapping)-len(entries)))

	s.mu.Lock()
	s.entries = entries
	s.indexed = true
	s.mu.Unlock()
	slog.Debug("search index rebuilt", "indexed", len(entries), "skipped", len(mapping)-len(entries))
	return nil
}

func (s *SearchIndex) snapshot() ([]indexEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries, s.indexed
}

// Search ranks the indexed records by cosine similarity to the query,
// highest first. Equal similarities keep indexing order, which is sorted
// filename order: an AnalysisMapping carries no archive order to preserve.
// kind restricts the results to one media kind; MediaKindUnknown keeps both.
func (s *SearchIndex) Search(ctx context.Context, query string, topK int, kind model.MediaKind) ([]*model.SearchResult, error) {
	entries, indexed := s.snapshot()
	if !indexed {
		return nil, ErrNotIndexed
	}
	if topK < 1 {
		topK = DefaultTopK
	}
	if len(entries) == 0 {
		return []*model.SearchResult{}, nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vectors))
	}
	q := vectors[0]

	out := make([]*model.SearchResult, 0, len(entries))
	for _, e := range entries {
		if kind != model.MediaKindUnknown && e.kind != kind {
			continue
		}
		out = append(out, &model.SearchResult{
			Filename:          e.filename,
			FileType:          e.kind,
			Similarity:        Cosine(e.vector, q),
			Analysis:          e.analysis,
			SearchTextPreview: Preview(e.text),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// SearchWithFilters draws the top candidates for query and keeps those
// passing every filter, stopping once topK results are collected. Filters
// are min_<field> (field >= value), max_<field> (field <= value) or <field>
// (exact match). A missing numeric field counts as 0.
func (s *SearchIndex) SearchWithFilters(ctx context.Context, query string, filters model.SearchFilters, topK int) ([]*model.SearchResult, error) {
	if topK < 1 {
		topK = DefaultTopK
	}
	if err := ValidateFilters(filters); err != nil {
		return nil, err
	}
	candidates, err := s.Search(ctx, query, s.candidatePool, model.MediaKindUnknown)
	if err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		if len(candidates) > topK {
			candidates = candidates[:topK]
		}
		return candidates, nil
	}

	out := make([]*model.SearchResult, 0, topK)
	for _, c := range candidates {
		if passes(c.Analysis, filters) {
			out = append(out, c)
		}
		if len(out) >= topK {
			break
		}
	}
	return out, nil
}

// ValidateFilters rejects min_ and max_ filters whose threshold is not a
// number.
func ValidateFilters(filters model.SearchFilters) error {
	for key, value := range filters {
		if isRangeFilter(key) {
			if _, ok := model.ToFloat(value); !ok {
				return fmt.Errorf("%w: %s requires a numeric value", ErrInvalidFilter, key)
			}
		}
	}
	return nil
}

func isRangeFilter(key string) bool {
	return strings.HasPrefix(key, "min_") || strings.HasPrefix(key, "max_")
}

func passes(rec model.AnalysisRecord, filters model.SearchFilters) bool {
	// Sorted keys keep evaluation stable across runs.
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		want := filters[key]
		switch {
		case isRangeFilter(key):
			threshold, _ := model.ToFloat(want)
			field := key[4:]
			have := 0.0
			if v, present := rec[field]; present {
				f, ok := model.ToFloat(v)
				if !ok {
					return false
				}
				have = f
			}
			if strings.HasPrefix(key, "min_") && have < threshold {
				return false
			}
			if strings.HasPrefix(key, "max_") && have > threshold {
				return false
			}
		default:
			if !equalValues(rec[key], want) {
				return false
			}
		}
	}
	return true
}

func equalValues(have, want any) bool {
	hf, hok := model.ToFloat(have)
	wf, wok := model.ToFloat(want)
	if hok && wok {
		return hf == wf
	}
	return reflect.DeepEqual(have, want)
}

// Stats summarizes the index.
func (s *SearchIndex) Stats() (*model.IndexStats, error) {
	entries, indexed := s.snapshot()
	if !indexed {
		return nil, ErrNotIndexed
	}
	stats := &model.IndexStats{TotalFiles: len(entries), EmbeddingDimension: s.embedder.Dimension()}
	for _, e := range entries {
		if e.kind == model.MediaKindVideo {
			stats.TotalVideos++
		} else {
			stats.TotalImages++
		}
	}
	return stats, nil
}

// SearchService keeps one SearchIndex per dataset. Indexes are rebuilt
// after each analysis run and loaded lazily from the persisted artifact
// otherwise.
type SearchService struct {
	embedder      Embedder
	candidatePool int
	store         *ArtifactStore

	mu      sync.Mutex
	indexes map[string]*SearchIndex
}

func NewSearchService(embedder Embedder, candidatePool int, store *ArtifactStore) *SearchService {
	return &SearchService{
		embedder:      embedder,
		candidatePool: candidatePool,
		store:         store,
		indexes:       make(map[string]*SearchIndex),
	}
}

// Reindex replaces the dataset's index with mapping.
func (s *SearchService) Reindex(ctx context.Context, dataset string, mapping model.AnalysisMapping) (*SearchIndex, error) {
	idx := NewSearchIndex(s.embedder, s.candidatePool)
	if err := idx.Index(ctx, mapping); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.indexes[dataset] = idx
	s.mu.Unlock()
	return idx, nil
}

// Index returns the dataset's index, building it from the persisted
// artifact on first use. ErrDatasetNotFound is returned when the dataset has
// never been processed.
func (s *SearchService) Index(ctx context.Context, dataset string) (*SearchIndex, error) {
	s.mu.Lock()
	idx, ok := s.indexes[dataset]
	s.mu.Unlock()
	if ok {
		return idx, nil
	}

	mapping, err := s.store.Load(dataset)
	if err != nil {
		return nil, err
	}
	slog.Info("loading search index from artifact", "dataset", dataset, "files", len(mapping))
	return s.Reindex(ctx, dataset, mapping)
}

