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
	"io"
	"log/slog"
	"os"

	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/cloud"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/cor"
)

// GCSToTempFile downloads the input GCS object to a temporary file, which is
// removed when the chain context closes, and outputs its path.
type GCSToTempFile struct {
	cor.BaseCommand
	client         *storage.Client
	tempFilePrefix string
}

func NewGCSToTempFile(name string, client *storage.Client, tempFilePrefix string) *GCSToTempFile {
	return &GCSToTempFile{
		BaseCommand:    *cor.NewBaseCommand(name),
		client:         client,
		tempFilePrefix: tempFilePrefix,
	}
}

func (c *GCSToTempFile) Execute(context cor.Context) {
	msg := context.Get(c.GetInputParam()).(*cloud.GCSObject)

	reader, err := c.client.Bucket(msg.Bucket).Object(msg.Name).NewReader(context.GetContext())
	if err != nil {
		c.Fail(context, fmt.Errorf("failed to create GCS reader for gs://%s/%s: %w", msg.Bucket, msg.Name, err))
		return
	}
	defer func(reader *storage.Reader) {
		if err := reader.Close(); err != nil {
			slog.Warn("failed to close GCS reader", "error", err)
		}
	}(reader)

	tempFile, err := os.CreateTemp("", c.tempFilePrefix)
	if err != nil {
		c.Fail(context, fmt.Errorf("could not create temp file: %w", err))
		return
	}
	context.AddTempFile(tempFile.Name())

	written, err := io.Copy(tempFile, reader)
	_ = tempFile.Close()
	if err != nil {
		c.Fail(context, fmt.Errorf("failed to copy gs://%s/%s after %d bytes: %w", msg.Bucket, msg.Name, written, err))
		return
	}

	c.Succeed(context)
	slog.Info("downloaded object", "uri", fmt.Sprintf("gs://%s/%s", msg.Bucket, msg.Name), "path", tempFile.Name(), "bytes", written)
	context.Add(c.GetOutputParam(), tempFile.Name())
}
