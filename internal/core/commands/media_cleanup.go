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

package commands

import (
	"log/slog"
	"os"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/cor"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/services"
)

// MediaCleanup removes the dataset's compressed byproducts once the run's
// artifact is safe. Extracted originals are kept for later re-analysis.
type MediaCleanup struct {
	cor.BaseCommand
	store *services.ArtifactStore
}

func NewMediaCleanup(name string, store *services.ArtifactStore) *MediaCleanup {
	return &MediaCleanup{BaseCommand: *cor.NewBaseCommand(name), store: store}
}

func (c *MediaCleanup) IsExecutable(context cor.Context) bool {
	return context != nil && context.GetContext() != nil && context.Get(services.DatasetParam) != nil
}

func (c *MediaCleanup) Execute(context cor.Context) {
	dataset := context.Get(services.DatasetParam).(string)
	context.Add(c.GetOutputParam(), context.Get(c.GetInputParam()))

	dir := c.store.CompressedDir(dataset)
	if err := os.RemoveAll(dir); err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		slog.Warn("failed to remove compressed media", "dir", dir, "error", err)
		return
	}
	c.Succeed(context)
}
