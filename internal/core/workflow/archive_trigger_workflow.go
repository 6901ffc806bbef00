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

package workflow

import (
	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/commands"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/cor"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/services"
)

// ArchiveTriggerWorkflow handles GCS finalize notifications for the upload
// bucket: zip archives are downloaded and processed as a dataset named after
// the object, anything else is acknowledged and ignored.
type ArchiveTriggerWorkflow struct {
	cor.BaseCommand
	storageClient *storage.Client
	datasets      *services.DatasetService
	chain         cor.Chain
}

func (w *ArchiveTriggerWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

func (w *ArchiveTriggerWorkflow) initializeChain() {
	out := cor.NewBaseChain(w.GetName())
	out.AddCommand(commands.NewArchiveTriggerToGCSObject("archive-trigger-to-gcs-object"))
	out.AddCommand(commands.NewGCSToTempFile("gcs-to-temp-file", w.storageClient, "archive-"))
	out.AddCommand(commands.NewArchiveProcess("process-archive", w.datasets))
	w.chain = out
}

func NewArchiveTriggerWorkflow(storageClient *storage.Client, datasets *services.DatasetService) *ArchiveTriggerWorkflow {
	w := &ArchiveTriggerWorkflow{
		BaseCommand:   *cor.NewBaseCommand("archive-trigger-pipeline"),
		storageClient: storageClient,
		datasets:      datasets,
	}
	w.initializeChain()
	return w
}
