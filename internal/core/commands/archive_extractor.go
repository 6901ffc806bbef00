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

// Package commands holds the individual steps of the dataset analysis and
// archive trigger chains. Each step reads its input from the chain context,
// records failures with AddError and publishes its output for the next step.
package commands

import (
	"archive/zip"
	"log/slog"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/cor"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/services"
)

// ArchiveExtractor unpacks the media members of the archive into the
// dataset's durable media directory and outputs their local paths. Members
// already on disk are reused.
type ArchiveExtractor struct {
	cor.BaseCommand
	store *services.ArtifactStore
}

func NewArchiveExtractor(name string, store *services.ArtifactStore) *ArchiveExtractor {
	cmd := &ArchiveExtractor{BaseCommand: *cor.NewBaseCommand(name), store: store}
	cmd.WithParams(services.ArchiveParam, cor.CtxOut)
	return cmd
}

func (c *ArchiveExtractor) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) && context.Get(services.DatasetParam) != nil
}

func (c *ArchiveExtractor) Execute(context cor.Context) {
	zr := context.Get(c.GetInputParam()).(*zip.Reader)
	dataset := context.Get(services.DatasetParam).(string)

	paths, err := services.ExtractArchive(zr, c.store.MediaDir(dataset))
	if err != nil {
		c.Fail(context, err)
		return
	}
	slog.Info("archive extracted", "dataset", dataset, "files", len(paths))
	c.Succeed(context)
	context.Add(c.GetOutputParam(), paths)
}
