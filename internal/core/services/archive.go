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
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
)

var (
	ErrInvalidArchive = errors.New("not a valid zip archive")
	ErrEmptyArchive   = errors.New("archive contains no supported media files")
)

// OpenArchive parses zip bytes.
func OpenArchive(data []byte) (*zip.Reader, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrInvalidArchive)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	return zr, nil
}

// MediaEntries lists the archive members that will be analyzed, keyed by
// base name. Directories, hidden files, __MACOSX metadata and unsupported
// extensions are skipped. When two members share a base name the first one
// wins.
func MediaEntries(zr *zip.Reader) []*zip.File {
	seen := make(map[string]bool)
	out := make([]*zip.File, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		clean := path.Clean(strings.ReplaceAll(f.Name, "\\", "/"))
		base := path.Base(clean)
		if strings.HasPrefix(base, ".") || strings.Contains(clean, "__MACOSX") {
			continue
		}
		if model.KindFromFilename(base) == model.MediaKindUnknown {
			slog.Debug("skipping unsupported archive member", "name", f.Name)
			continue
		}
		if seen[base] {
			slog.Warn("skipping duplicate archive member", "name", f.Name)
			continue
		}
		seen[base] = true
		out = append(out, f)
	}
	return out
}

// ExtractArchive writes the media members into dir under their base names
// and returns the local paths in archive order. A member that already exists
// with the same size is left untouched, so extraction can be repeated.
func ExtractArchive(zr *zip.Reader, dir string) ([]string, error) {
	entries := MediaEntries(zr)
	if len(entries) == 0 {
		return nil, ErrEmptyArchive
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(entries))
	for _, f := range entries {
		dest := filepath.Join(dir, path.Base(path.Clean(strings.ReplaceAll(f.Name, "\\", "/"))))
		if !strings.HasPrefix(dest, filepath.Clean(dir)+string(os.PathSeparator)) {
			return nil, fmt.Errorf("%w: illegal member path %q", ErrInvalidArchive, f.Name)
		}
		if info, err := os.Stat(dest); err == nil && info.Size() == int64(f.UncompressedSize64) {
			paths = append(paths, dest)
			continue
		}
		if err := extractFile(f, dest); err != nil {
			return nil, err
		}
		paths = append(paths, dest)
	}
	return paths, nil
}

func extractFile(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: cannot open %s: %v", ErrInvalidArchive, f.Name, err)
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".extract-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("%w: cannot read %s: %v", ErrInvalidArchive, f.Name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
