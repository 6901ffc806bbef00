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

package preprocess

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"sort"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

const (
	maxColorSamples = 40_000
	dominantColors  = 5
)

// ExtractImage decodes an image and returns its metadata, dominant colors and
// OCR text. A file that does not decode is an error; a failed OCR pass is not.
func (p *Preprocessor) ExtractImage(ctx context.Context, path string) (map[string]any, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	img, format, err := image.Decode(f)
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := img.Bounds()
	features := map[string]any{
		"width":           b.Dx(),
		"height":          b.Dy(),
		"resolution":      fmt.Sprintf("%dx%d", b.Dx(), b.Dy()),
		"format":          strings.ToUpper(format),
		"mode":            colorMode(img.ColorModel()),
		"file_size_bytes": info.Size(),
		"frames":          1,
		"is_animated":     false,
		"dominant_colors": DominantColors(img, dominantColors),
	}

	ocr, err := p.ocr.Run(ctx, path, b.Dx()*b.Dy())
	if err != nil {
		slog.Warn("ocr failed", "path", path, "error", err)
		features["ocr_error"] = err.Error()
	}
	features["text"] = ocr.FullText
	features["ocr_details"] = ocr.Fields()
	return features, nil
}

// DominantColors returns up to n hex colors, most frequent first. Colors are
// bucketed to 16 levels per channel; ties are broken by the hex value.
func DominantColors(img image.Image, n int) []string {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 || n <= 0 {
		return []string{}
	}
	step := 1
	for total/(step*step) > maxColorSamples {
		step++
	}

	counts := make(map[uint32]int)
	for y := b.Min.Y; y < b.Max.Y; y += step {
		for x := b.Min.X; x < b.Max.X; x += step {
			r, g, bl, a := img.At(x, y).RGBA()
			if a == 0 {
				continue
			}
			counts[bucket(r)<<16|bucket(g)<<8|bucket(bl)]++
		}
	}

	keys := make([]uint32, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	out := make([]string, 0, min(n, len(keys)))
	for _, k := range keys[:min(n, len(keys))] {
		out = append(out, fmt.Sprintf("#%06x", k))
	}
	return out
}

// bucket maps a 16 bit channel to the center of its 8 bit, 16 level bucket.
func bucket(c uint32) uint32 {
	return (c>>12)<<4 | 0x8
}

func colorMode(m color.Model) string {
	switch m {
	case color.GrayModel:
		return "L"
	case color.Gray16Model:
		return "I;16"
	case color.YCbCrModel:
		return "RGB"
	case color.CMYKModel:
		return "CMYK"
	case color.RGBAModel, color.RGBA64Model, color.NRGBAModel, color.NRGBA64Model:
		return "RGBA"
	}
	if _, ok := m.(color.Palette); ok {
		return "P"
	}
	return "RGB"
}
