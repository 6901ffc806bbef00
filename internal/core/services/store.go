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

// Package services holds the dataset level business logic: the durable
// artifact store, the dataset cache manager, the per-dataset search index and
// the BigQuery lookups of mirrored analysis rows.
package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
)

const (
	ArtifactFileName = "analysis.json"
	mediaDirName     = "media"
	compressedDir    = "compressed"
)

var ErrDatasetNotFound = errors.New("dataset not found")

// ArtifactStore lays out one directory per dataset under root:
//
//	<root>/<dataset>/analysis.json   the persisted mapping (cache of record)
//	<root>/<dataset>/media/          extracted archive members
//	<root>/<dataset>/compressed/     transient compressor output
type ArtifactStore struct {
	root string
}

func NewArtifactStore(root string) *ArtifactStore {
	return &ArtifactStore{root: root}
}

func (s *ArtifactStore) Root() string { return s.root }

func (s *ArtifactStore) DatasetDir(name string) string {
	return filepath.Join(s.root, name)
}

func (s *ArtifactStore) MediaDir(name string) string {
	return filepath.Join(s.root, name, mediaDirName)
}

func (s *ArtifactStore) CompressedDir(name string) string {
	return filepath.Join(s.root, name, compressedDir)
}

func (s *ArtifactStore) ArtifactPath(name string) string {
	return filepath.Join(s.root, name, ArtifactFileName)
}

// Exists reports whether the dataset has a persisted artifact.
func (s *ArtifactStore) Exists(name string) bool {
	info, err := os.Stat(s.ArtifactPath(name))
	return err == nil && info.Mode().IsRegular()
}

// Read returns the persisted artifact bytes.
func (s *ArtifactStore) Read(name string) ([]byte, error) {
	data, err := os.ReadFile(s.ArtifactPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, name)
	}
	return data, err
}

// Load reads and decodes the persisted mapping.
func (s *ArtifactStore) Load(name string) (model.AnalysisMapping, error) {
	data, err := s.Read(name)
	if err != nil {
		return nil, err
	}
	return model.DecodeMapping(data)
}

// Write persists the artifact atomically: the bytes go to a temporary file in
// the dataset directory, are synced, then renamed over the final name. A
// reader never observes a partial artifact.
func (s *ArtifactStore) Write(name string, data []byte) (err error) {
	dir := s.DatasetDir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+ArtifactFileName+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.ArtifactPath(name))
}

// List returns the datasets that have an artifact, sorted.
func (s *ArtifactStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && s.Exists(e.Name()) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// SanitizeName turns a user supplied dataset name into a single safe path
// element. It returns "" when nothing usable remains.
func SanitizeName(name string) string {
	var sb strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	out := strings.TrimLeft(sb.String(), ".")
	if strings.Trim(out, "_") == "" {
		return ""
	}
	return out
}
