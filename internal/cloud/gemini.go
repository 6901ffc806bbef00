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

package cloud

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/analysis"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/cor"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
	"go.opentelemetry.io/otel"
	"google.golang.org/genai"
)

// GeminiGenerator sends a batch prompt with its media inlined, ahead of the
// instructions, to a rate limited Gemini model.
type GeminiGenerator struct {
	model    *QuotaAwareGenerativeAIModel
	counters *TokenCounters
}

func NewGeminiGenerator(model *QuotaAwareGenerativeAIModel) *GeminiGenerator {
	meter := otel.Meter(cor.MeterName)
	in, _ := meter.Int64Counter("gemini.token.input")
	out, _ := meter.Int64Counter("gemini.token.output")
	return &GeminiGenerator{model: model, counters: &TokenCounters{Input: in, Output: out}}
}

func (g *GeminiGenerator) GenerateContent(ctx context.Context, prompt string, attachments []*model.Attachment) (string, error) {
	parts := make([]*genai.Part, 0, len(attachments)+1)
	for _, a := range attachments {
		parts = append(parts, NewInlinePart(a.Data, a.MIMEType))
	}
	parts = append(parts, &genai.Part{Text: prompt})

	text, err := GenerateMultiModalResponse(ctx, g.counters, g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)})
	if errors.Is(err, ErrBlocked) {
		return "", analysis.Permanent(err)
	}
	return text, err
}

// GeminiEmbedder embeds search text with a Gemini embedding model.
type GeminiEmbedder struct {
	model     *QuotaAwareEmbeddingModel
	dimension atomic.Int64
}

func NewGeminiEmbedder(model *QuotaAwareEmbeddingModel) *GeminiEmbedder {
	e := &GeminiEmbedder{model: model}
	e.dimension.Store(int64(model.Dimension))
	return e
}

func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}
	resp, err := e.model.EmbedContent(ctx, contents)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d texts: %w", len(texts), err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding model returned %d vectors for %d texts", len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		out[i] = emb.Values
	}
	e.dimension.Store(int64(len(out[0])))
	return out, nil
}

// Dimension is the configured size, or the size of the last vector seen.
func (e *GeminiEmbedder) Dimension() int {
	return int(e.dimension.Load())
}
