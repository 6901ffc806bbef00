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

package preprocess_test

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/cloud"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/preprocess"
	test "github.com/jaycherian/gcp-go-ad-analysis/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPreprocessor(t *testing.T) *preprocess.Preprocessor {
	t.Helper()
	cfg := cloud.NewConfig().Media
	cfg.TesseractCommand = ""
	cfg.FFprobeCommand = filepath.Join(t.TempDir(), "no-such-ffprobe")
	return preprocess.NewPreprocessor(cfg, 2)
}

func TestExtractImageFeatures(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "ad_red.png")
	require.NoError(t, os.WriteFile(p, test.PNG(t, 20, 10, color.RGBA{R: 220, A: 255}), 0o644))

	rec := newPreprocessor(t).Extract(context.Background(), p)
	require.False(t, rec.Failed(), rec.Err)

	assert.Equal(t, "ad_red.png", rec.Filename)
	assert.Equal(t, model.MediaKindImage, rec.Kind)
	assert.Equal(t, p, rec.LocalPath)
	assert.Equal(t, "20x10", rec.Features["resolution"])
	assert.Equal(t, 20, rec.Features["width"])
	assert.Equal(t, "PNG", rec.Features["format"])
	assert.Equal(t, "RGBA", rec.Features["mode"])
	assert.Equal(t, []string{"#d80808"}, rec.Features["dominant_colors"])
	assert.Equal(t, "", rec.Features["text"])

	details := rec.Features["ocr_details"].(map[string]any)
	assert.Equal(t, 0, details["num_elements"])
	assert.Nil(t, details["most_prominent_text"])
}

func TestExtractFailures(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "ad_corrupt.png")
	require.NoError(t, os.WriteFile(corrupt, test.CorruptPNG(), 0o644))
	clip := filepath.Join(dir, "spot.mp4")
	require.NoError(t, os.WriteFile(clip, []byte("not a movie"), 0o644))

	pre := newPreprocessor(t)

	rec := pre.Extract(context.Background(), corrupt)
	assert.True(t, rec.Failed())
	assert.Contains(t, rec.Err, "failed to decode image")
	assert.Equal(t, model.AnalysisRecord{"error": rec.Err, "status": "failed"}, rec.FailureRecord())

	rec = pre.Extract(context.Background(), clip)
	assert.True(t, rec.Failed())
	assert.Contains(t, rec.Err, "ffprobe")
	assert.Equal(t, model.MediaKindVideo, rec.Kind)
}

func TestRunKeepsInputOrder(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for name, data := range test.AdArchive(t) {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, data, 0o644))
		paths = append(paths, p)
	}

	recs := newPreprocessor(t).Run(context.Background(), paths)
	require.Len(t, recs, len(paths))
	for i, r := range recs {
		assert.Equal(t, filepath.Base(paths[i]), r.Filename)
		assert.Equal(t, r.Filename == "ad_corrupt.png", r.Failed())
	}
}

func TestDominantColorsOrdering(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			c := color.RGBA{B: 255, A: 255}
			if x < 3 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	assert.Equal(t, []string{"#0808f8", "#f8f8f8"}, preprocess.DominantColors(img, 5))
	assert.Equal(t, []string{"#0808f8"}, preprocess.DominantColors(img, 1))
}

func TestParseTSV(t *testing.T) {
	tsv := "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
		"1\t1\t0\t0\t0\t0\t0\t0\t100\t100\t-1\t\n" +
		"5\t1\t1\t1\t1\t1\t10\t10\t20\t10\t90\tsale\n" +
		"5\t1\t1\t1\t1\t2\t40\t10\t50\t20\t50\tSUMMER\n"

	elems := preprocess.ParseTSV(tsv, 100*100)
	require.Len(t, elems, 2)
	assert.Equal(t, "SUMMER", elems[0].Text)
	assert.InDelta(t, 50.0, elems[0].ProminenceScore, 1e-9)
	assert.Equal(t, "sale", elems[1].Text)
	assert.InDelta(t, 18.0, elems[1].ProminenceScore, 1e-9)

	fields := preprocess.OCRResult{FullText: "SUMMER sale", Elements: elems}.Fields()
	assert.Equal(t, "SUMMER", fields["most_prominent_text"])
	assert.Equal(t, 2, fields["num_elements"])
}

func TestVideoFeatures(t *testing.T) {
	raw := `{
  "streams": [
    {"codec_type": "video", "width": 1920, "height": 1080, "duration": "29.980000", "bit_rate": "4500000", "avg_frame_rate": "30000/1001"},
    {"codec_type": "audio", "bit_rate": "128000"}
  ],
  "format": {"duration": "30.016000", "bit_rate": "4700000"}
}`
	var probe preprocess.ProbeOutput
	require.NoError(t, json.Unmarshal([]byte(raw), &probe))

	f, err := preprocess.VideoFeatures(&probe)
	require.NoError(t, err)
	assert.Equal(t, "1920x1080", f["resolution"])
	assert.Equal(t, "16:9", f["aspect_ratio"])
	assert.Equal(t, 30.02, f["length"])
	assert.Equal(t, 4500.0, f["video_bitrate_kbps"])
	assert.Equal(t, 128.0, f["audio_bitrate_kbps"])
	assert.Equal(t, 29.97, f["fps"])

	_, err = preprocess.VideoFeatures(&preprocess.ProbeOutput{})
	assert.ErrorIs(t, err, preprocess.ErrNoVideoStream)
}
