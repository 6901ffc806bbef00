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

	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/cor"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/preprocess"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MediaPreprocess turns local media paths into preprocessing records. A file
// that cannot be read becomes a failed record, never a chain error.
type MediaPreprocess struct {
	cor.BaseCommand
	preprocessor *preprocess.Preprocessor
}

func NewMediaPreprocess(name string, preprocessor *preprocess.Preprocessor) *MediaPreprocess {
	return &MediaPreprocess{BaseCommand: *cor.NewBaseCommand(name), preprocessor: preprocessor}
}

func (c *MediaPreprocess) Execute(context cor.Context) {
	paths := context.Get(c.GetInputParam()).([]string)

	records := c.preprocessor.Run(context.GetContext(), paths)
	failed := 0
	for _, r := range records {
		if r.Failed() {
			failed++
		}
	}
	trace.SpanFromContext(context.GetContext()).SetAttributes(
		attribute.Int("files", len(records)),
		attribute.Int("failed", failed),
	)
	slog.Info("preprocessing complete", "files", len(records), "failed", failed)
	c.Succeed(context)
	context.Add(c.GetOutputParam(), records)
}
