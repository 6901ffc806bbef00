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

// Package preprocess computes the local, model independent features of each
// media file: image metadata, dominant colors and OCR text for images, and
// resolution, length and bitrates for videos.
package preprocess

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/cloud"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
	"golang.org/x/sync/errgroup"
)

// Preprocessor extracts features for a set of files.
type Preprocessor struct {
	config  cloud.Media
	ocr     *OCR
	workers int
}

func NewPreprocessor(config cloud.Media, workers int) *Preprocessor {
	return &Preprocessor{config: config, ocr: NewOCR(config.TesseractCommand), workers: workers}
}

// Extract returns the features of one file. A failure produces a failed
// record rather than an error so it can pass through the pipeline.
func (p *Preprocessor) Extract(ctx context.Context, path string) *model.PreprocessingRecord {
	name := filepath.Base(path)
	kind := model.KindFromFilename(name)

	var (
		features map[string]any
		err      error
	)
	switch kind {
	case model.MediaKindImage:
		features, err = p.ExtractImage(ctx, path)
	case model.MediaKindVideo:
		features, err = p.ExtractVideo(ctx, path)
	default:
		err = fmt.Errorf("unsupported file type: %s", filepath.Ext(name))
	}
	if err != nil {
		slog.Warn("preprocessing failed", "filename", name, "error", err)
		rec := model.NewFailedRecord(name, kind, err)
		rec.LocalPath = path
		return rec
	}
	return &model.PreprocessingRecord{Filename: name, Kind: kind, Features: features, LocalPath: path}
}

// Run extracts every file with a bounded number of workers. The result has
// one record per path, in input order.
func (p *Preprocessor) Run(ctx context.Context, paths []string) []*model.PreprocessingRecord {
	out := make([]*model.PreprocessingRecord, len(paths))
	var g errgroup.Group
	if p.workers > 0 {
		g.SetLimit(p.workers)
	}
	for i, path := range paths {
		g.Go(func() error {
			out[i] = p.Extract(ctx, path)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
