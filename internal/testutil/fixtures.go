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

package test

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// PNG encodes a solid w x h image.
func PNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// CorruptPNG has a valid extension and signature but no decodable image.
func CorruptPNG() []byte {
	return []byte("\x89PNG\r\n\x1a\nthis is not an image")
}

// ZipBytes builds an archive from name to content, in sorted name order.
func ZipBytes(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, n := range names {
		w, err := zw.Create(n)
		if err != nil {
			t.Fatalf("failed to add %s: %v", n, err)
		}
		if _, err := w.Write(files[n]); err != nil {
			t.Fatalf("failed to write %s: %v", n, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close archive: %v", err)
	}
	return buf.Bytes()
}

// WriteZip writes an archive into dir and returns its path.
func WriteZip(t *testing.T, dir, name string, files map[string][]byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, ZipBytes(t, files), 0o644); err != nil {
		t.Fatalf("failed to write archive: %v", err)
	}
	return path
}

// AdArchive is the archive used by the end to end tests: two decodable
// images and one corrupt one.
func AdArchive(t *testing.T) map[string][]byte {
	t.Helper()
	return map[string][]byte{
		"ad_red.png":     PNG(t, 16, 16, color.RGBA{R: 220, A: 255}),
		"ad_blue.png":    PNG(t, 24, 12, color.RGBA{B: 200, A: 255}),
		"ad_corrupt.png": CorruptPNG(),
	}
}
