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
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/cloud"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/cor"
)

// ArchiveTriggerToGCSObject parses a GCS object notification. Only zip
// archives are passed on; any other object ends the chain quietly so the
// message is acknowledged.
type ArchiveTriggerToGCSObject struct {
	cor.BaseCommand
}

func NewArchiveTriggerToGCSObject(name string) *ArchiveTriggerToGCSObject {
	return &ArchiveTriggerToGCSObject{BaseCommand: *cor.NewBaseCommand(name)}
}

func (c *ArchiveTriggerToGCSObject) Execute(context cor.Context) {
	in := context.Get(c.GetInputParam()).(string)

	var out cloud.GCSPubSubNotification
	if err := json.Unmarshal([]byte(in), &out); err != nil {
		c.Fail(context, fmt.Errorf("failed to unmarshal GCS notification: %w", err))
		return
	}

	msg := &cloud.GCSObject{Bucket: out.Bucket, Name: out.Name, MIMEType: out.ContentType}
	if !msg.IsArchive() {
		slog.Info("ignoring non-archive object", "bucket", msg.Bucket, "name", msg.Name, "content_type", msg.MIMEType)
		c.Succeed(context)
		return
	}

	c.Succeed(context)
	context.Add(cloud.GetGCSObjectName(), msg)
	context.Add(c.GetOutputParam(), msg)
}
