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

package analysis_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/analysis"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
	test "github.com/jaycherian/gcp-go-ad-analysis/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionCoversEveryFileOnce(t *testing.T) {
	for _, n := range []int{0, 1, 9, 10, 11, 23} {
		for _, size := range []int{1, 3, 10} {
			t.Run(fmt.Sprintf("n=%d/size=%d", n, size), func(t *testing.T) {
				names := make([]string, n)
				for i := range names {
					names[i] = fmt.Sprintf("ad_%02d.png", i)
				}
				batches, err := analysis.Partition(test.Records(names...), model.MediaKindImage, size)
				require.NoError(t, err)

				assert.Len(t, batches, (n+size-1)/size)
				var flat []string
				for i, b := range batches {
					assert.Equal(t, i, b.Index)
					assert.LessOrEqual(t, b.Size(), size)
					assert.Positive(t, b.Size())
					assert.Len(t, b.Records, b.Size())
					flat = append(flat, b.Filenames...)
				}
				if n == 0 {
					assert.Empty(t, flat)
					return
				}
				assert.Equal(t, names, flat)
			})
		}
	}
}

func TestPartitionFiltersKindFailuresAndDuplicates(t *testing.T) {
	records := test.Records("a.png", "clip.mp4", "b.jpg", "a.png", "c.webp")
	records = append(records, model.NewFailedRecord("broken.png", model.MediaKindImage, errors.New("decode failed")))

	images, err := analysis.Partition(records, model.MediaKindImage, 2)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, []string{"a.png", "b.jpg"}, images[0].Filenames)
	assert.Equal(t, []string{"c.webp"}, images[1].Filenames)

	videos, err := analysis.Partition(records, model.MediaKindVideo, 5)
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, []string{"clip.mp4"}, videos[0].Filenames)
	assert.Equal(t, model.MediaKindVideo, videos[0].Kind)
}

func TestPartitionRejectsBadBatchSize(t *testing.T) {
	for _, size := range []int{0, -3} {
		_, err := analysis.Partition(test.Records("a.png"), model.MediaKindImage, size)
		assert.ErrorIs(t, err, analysis.ErrInvalidBatchSize)
	}
}
