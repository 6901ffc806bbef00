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
	"fmt"
	"log/slog"
	"path"

	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/cor"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/services"
)

// ArtifactUploadToGCS mirrors the persisted artifact to
// gs://<bucket>/<dataset>/analysis.json. The local artifact stays the cache
// of record, so an upload failure is logged and counted but not recorded on
// the chain.
type ArtifactUploadToGCS struct {
	cor.BaseCommand
	client *storage.Client
	bucket string
}

func NewArtifactUploadToGCS(name string, client *storage.Client, bucket string) *ArtifactUploadToGCS {
	return &ArtifactUploadToGCS{BaseCommand: *cor.NewBaseCommand(name), client: client, bucket: bucket}
}

func (c *ArtifactUploadToGCS) IsExecutable(context cor.Context) bool {
	return c.client != nil && c.bucket != "" &&
		c.BaseCommand.IsExecutable(context) &&
		context.Get(services.ArtifactParam) != nil &&
		context.Get(services.DatasetParam) != nil
}

func (c *ArtifactUploadToGCS) Execute(context cor.Context) {
	data := context.Get(services.ArtifactParam).([]byte)
	dataset := context.Get(services.DatasetParam).(string)
	// Pass the mapping through untouched.
	context.Add(c.GetOutputParam(), context.Get(c.GetInputParam()))

	obj := c.client.Bucket(c.bucket).Object(path.Join(dataset, services.ArtifactFileName))
	writer := obj.NewWriter(context.GetContext())
	writer.ContentType = "application/json"

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		c.mirrorFailed(context, fmt.Errorf("failed to write gs://%s/%s: %w", c.bucket, obj.ObjectName(), err))
		return
	}
	if err := writer.Close(); err != nil {
		c.mirrorFailed(context, fmt.Errorf("failed to close GCS writer for gs://%s/%s: %w", c.bucket, obj.ObjectName(), err))
		return
	}

	c.Succeed(context)
	slog.Info("artifact mirrored", "dataset", dataset, "uri", fmt.Sprintf("gs://%s/%s", c.bucket, obj.ObjectName()))
}

func (c *ArtifactUploadToGCS) mirrorFailed(context cor.Context, err error) {
	c.GetErrorCounter().Add(context.GetContext(), 1)
	slog.Warn("artifact mirror failed", "command", c.GetName(), "error", err)
}
