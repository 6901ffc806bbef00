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

package main

import (
	"context"
	"log/slog"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/cloud"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/services"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/workflow"
)

// ArchiveUploadsTopic is the topic_subscriptions key of the upload bucket
// notifications.
const ArchiveUploadsTopic = "ArchiveUploads"

func SetupListeners(ctx context.Context, cloudClients *cloud.ServiceClients, datasets *services.DatasetService) {
	listener, ok := cloudClients.PubSubListeners[ArchiveUploadsTopic]
	if !ok {
		slog.Info("no archive upload subscription configured")
		return
	}
	if cloudClients.StorageClient == nil {
		slog.Warn("archive upload subscription configured without an upload bucket, not listening")
		return
	}
	listener.SetCommand(workflow.NewArchiveTriggerWorkflow(cloudClients.StorageClient, datasets))
	listener.Listen(ctx)
}
