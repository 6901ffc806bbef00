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

// Package analysis drives the batched model analysis of a dataset.
//
// Logic Flow:
//  1. Partition splits the preprocessing records of one media kind into
//     fixed-size, order-preserving batches.
//  2. The Orchestrator compresses each batch's media and renders it with the
//     PromptBuilder, using the item index as the correlation key.
//  3. The ContentGenerator is invoked with a bounded timeout and retries.
//  4. Reconcile maps the index-keyed response back to filenames.
//  5. Per-file results are merged with the preprocessing features and
//     committed to the shared result mapping as each batch completes.
//
// Image and video batches run in independent Scheduler pools at the same
// time. A failed batch turns into analysis_error markers for its own files
// and never aborts the run.
package analysis

import (
	"errors"
	"fmt"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
)

var ErrInvalidBatchSize = errors.New("batch size must be at least 1")

// Partition groups the records of the requested kind into batches of at most
// batchSize files. Records that failed preprocessing are skipped, as are
// repeated filenames after their first occurrence. Batch i holds positions
// [i*batchSize, (i+1)*batchSize) of the filtered list, in input order.
//
// Empty input yields zero batches and no error.
func Partition(records []*model.PreprocessingRecord, kind model.MediaKind, batchSize int) ([]*model.Batch, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, batchSize)
	}

	seen := make(map[string]bool, len(records))
	eligible := make([]*model.PreprocessingRecord, 0, len(records))
	for _, r := range records {
		if r == nil || r.Failed() || r.Kind != kind || seen[r.Filename] {
			continue
		}
		seen[r.Filename] = true
		eligible = append(eligible, r)
	}

	batches := make([]*model.Batch, 0, (len(eligible)+batchSize-1)/batchSize)
	for start := 0; start < len(eligible); start += batchSize {
		end := min(start+batchSize, len(eligible))
		b := &model.Batch{
			Index:     len(batches),
			Kind:      kind,
			Filenames: make([]string, 0, end-start),
			Records:   eligible[start:end:end],
		}
		for _, r := range b.Records {
			b.Filenames = append(b.Filenames, r.Filename)
		}
		batches = append(batches, b)
	}
	return batches, nil
}
