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
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/cloud"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/cor"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/services"
)

// ArchiveProcess hands a downloaded archive to the dataset service, named
// after the object's file stem. A malformed or empty archive is logged and
// dropped: redelivering the same bytes cannot succeed. Processing and
// persistence failures are recorded so the message is redelivered.
type ArchiveProcess struct {
	cor.BaseCommand
	datasets *services.DatasetService
}

func NewArchiveProcess(name string, datasets *services.DatasetService) *ArchiveProcess {
	return &ArchiveProcess{BaseCommand: *cor.NewBaseCommand(name), datasets: datasets}
}

func (c *ArchiveProcess) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) && context.Get(cloud.GetGCSObjectName()) != nil
}

func (c *ArchiveProcess) Execute(context cor.Context) {
	path := context.Get(c.GetInputParam()).(string)
	obj := context.Get(cloud.GetGCSObjectName()).(*cloud.GCSObject)

	data, err := os.ReadFile(path)
	if err != nil {
		c.Fail(context, fmt.Errorf("failed to read archive %s: %w", path, err))
		return
	}

	result, err := c.datasets.ProcessArchive(context.GetContext(), obj.Name, data, obj.DatasetName())
	switch {
	case errors.Is(err, services.ErrInvalidArchive), errors.Is(err, services.ErrEmptyArchive):
		c.GetErrorCounter().Add(context.GetContext(), 1)
		slog.Warn("dropping unusable archive", "bucket", obj.Bucket, "name", obj.Name, "error", err)
		return
	case err != nil:
		c.Fail(context, err)
		return
	}

	c.Succeed(context)
	slog.Info("archive processed", "dataset", result.Dataset, "files", len(result.Mapping), "cached", result.Cached)
	context.Add(c.GetOutputParam(), result)
}
