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
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/analysis"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/cor"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
	"golang.org/x/sync/singleflight"
)

// Context keys shared by the dataset analysis chain.
const (
	DatasetParam  = "__DATASET__"  // string: dataset identity
	ArchiveParam  = "__ARCHIVE__"  // *zip.Reader
	RunIDParam    = "__RUN_ID__"   // string
	MappingParam  = "__MAPPING__"  // model.AnalysisMapping once persisted
	ArtifactParam = "__ARTIFACT__" // []byte: persisted artifact
	ReportParam   = "__REPORT__"   // *analysis.RunReport
)

var (
	ErrProcessing  = errors.New("processing failed")
	ErrPersistence = errors.New("failed to persist analysis artifact")
)

// Result is the outcome of ProcessArchive.
type Result struct {
	Dataset string
	RunID   string
	Mapping model.AnalysisMapping
	Data    []byte              // artifact bytes exactly as persisted
	Cached  bool                // served from the artifact without running analysis
	Report  *analysis.RunReport // nil when cached
}

// DatasetService resolves a dataset to its analysis mapping. A dataset with
// a persisted artifact is served from it; otherwise the archive is run
// through the analysis chain, which extracts, analyzes and persists it.
// Concurrent requests for one dataset share a single run.
type DatasetService struct {
	store      *ArtifactStore
	chain      cor.Command
	group      singleflight.Group
	runTimeout time.Duration
}

func NewDatasetService(store *ArtifactStore, chain cor.Command) *DatasetService {
	return &DatasetService{store: store, chain: chain}
}

// WithRunTimeout bounds a whole analysis run. Zero leaves runs unbounded.
func (s *DatasetService) WithRunTimeout(d time.Duration) *DatasetService {
	s.runTimeout = d
	return s
}

func (s *DatasetService) Store() *ArtifactStore { return s.store }

// DatasetIdentity picks the dataset name: the sanitized explicit name,
// else the sanitized archive file stem, else a digest of the archive bytes.
func DatasetIdentity(name, filename string, data []byte) string {
	if n := SanitizeName(name); n != "" {
		return n
	}
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if n := SanitizeName(stem); n != "" {
		return n
	}
	sum := sha256.Sum256(data)
	return "dataset-" + hex.EncodeToString(sum[:8])
}

// ProcessArchive resolves the dataset for an uploaded archive. Input
// problems return ErrInvalidArchive or ErrEmptyArchive; failures after the
// archive was accepted return ErrProcessing or ErrPersistence.
func (s *DatasetService) ProcessArchive(ctx context.Context, filename string, data []byte, name string) (*Result, error) {
	dataset := DatasetIdentity(name, filename, data)
	logger := slog.With("dataset", dataset, "archive", filename)

	if s.store.Exists(dataset) {
		logger.Info("serving cached analysis")
		return s.cached(dataset)
	}

	zr, err := OpenArchive(data)
	if err != nil {
		return nil, err
	}
	if len(MediaEntries(zr)) == 0 {
		return nil, ErrEmptyArchive
	}

	v, err, shared := s.group.Do(dataset, func() (any, error) {
		// A concurrent run may have finished between the check above and
		// entering the group.
		if s.store.Exists(dataset) {
			return s.cached(dataset)
		}
		return s.run(ctx, dataset, zr)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logger.Debug("joined an in-flight run")
	}
	return v.(*Result), nil
}

// Load returns the persisted result of a dataset, or ErrDatasetNotFound.
func (s *DatasetService) Load(dataset string) (*Result, error) {
	return s.cached(dataset)
}

func (s *DatasetService) cached(dataset string) (*Result, error) {
	data, err := s.store.Read(dataset)
	if err != nil {
		return nil, err
	}
	mapping, err := model.DecodeMapping(data)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt artifact for %s: %v", ErrProcessing, dataset, err)
	}
	return &Result{Dataset: dataset, Mapping: mapping, Data: data, Cached: true}, nil
}

func (s *DatasetService) run(ctx context.Context, dataset string, zr *zip.Reader) (*Result, error) {
	runID := uuid.New().String()
	logger := slog.With("dataset", dataset, "run_id", runID)

	// A run is shared by every caller joined on the dataset, so it does not
	// end when the submitting caller goes away. Only the run deadline stops it.
	runCtx := context.WithoutCancel(ctx)
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, s.runTimeout)
		defer cancel()
	}

	chCtx := cor.NewBaseContext()
	defer chCtx.Close()
	chCtx.SetContext(runCtx)
	chCtx.Add(DatasetParam, dataset)
	chCtx.Add(RunIDParam, runID)
	chCtx.Add(ArchiveParam, zr)
	chCtx.Add(cor.CtxIn, zr)

	logger.Info("starting dataset analysis")
	s.chain.Execute(chCtx)

	if err := chCtx.Err(); err != nil {
		logger.Error("dataset analysis failed", "error", err)
		return nil, classify(err)
	}

	mapping, _ := chCtx.Get(MappingParam).(model.AnalysisMapping)
	data, _ := chCtx.Get(ArtifactParam).([]byte)
	report, _ := chCtx.Get(ReportParam).(*analysis.RunReport)
	if mapping == nil || data == nil {
		return nil, fmt.Errorf("%w: chain produced no artifact", ErrPersistence)
	}
	logger.Info("dataset analysis complete", "files", len(mapping))
	return &Result{
		Dataset: dataset,
		RunID:   runID,
		Mapping: mapping,
		Data:    data,
		Report:  report,
	}, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrPersistence), errors.Is(err, ErrInvalidArchive), errors.Is(err, ErrEmptyArchive), errors.Is(err, ErrProcessing):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrProcessing, err)
	}
}
