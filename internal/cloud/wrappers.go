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
	"fmt"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// QuotaAwareGenerativeAIModel paces calls to a generative model so that
// concurrent batches share one request rate.
type QuotaAwareGenerativeAIModel struct {
	GenerativeContentConfig *genai.GenerateContentConfig
	ModelName               string
	ModelHandle             *genai.Models
	RateLimit               *rate.Limiter
}

// NewQuotaAwareModel allows requestsPerSecond calls per second with a burst of
// the same size. A non-positive rate disables pacing.
func NewQuotaAwareModel(wrapped *genai.GenerateContentConfig, name string, handle *genai.Models, requestsPerSecond int) *QuotaAwareGenerativeAIModel {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Second/time.Duration(requestsPerSecond)), requestsPerSecond)
	}
	return &QuotaAwareGenerativeAIModel{
		GenerativeContentConfig: wrapped,
		ModelName:               name,
		ModelHandle:             handle,
		RateLimit:               limiter,
	}
}

// GenerateContent blocks until the limiter admits the call or ctx ends.
func (q *QuotaAwareGenerativeAIModel) GenerateContent(ctx context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error) {
	if err := q.RateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return q.ModelHandle.GenerateContent(ctx, q.ModelName, content, q.GenerativeContentConfig)
}

// QuotaAwareEmbeddingModel paces embedding calls per minute.
type QuotaAwareEmbeddingModel struct {
	ModelName   string
	ModelHandle *genai.Models
	Dimension   int32
	RateLimit   *rate.Limiter
}

func NewQuotaAwareEmbeddingModel(name string, handle *genai.Models, dimension int32, requestsPerMinute int) *QuotaAwareEmbeddingModel {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
	}
	return &QuotaAwareEmbeddingModel{ModelName: name, ModelHandle: handle, Dimension: dimension, RateLimit: limiter}
}

// EmbedContent embeds every content item in one request.
func (q *QuotaAwareEmbeddingModel) EmbedContent(ctx context.Context, contents []*genai.Content) (*genai.EmbedContentResponse, error) {
	if err := q.RateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	var cfg *genai.EmbedContentConfig
	if q.Dimension > 0 {
		cfg = &genai.EmbedContentConfig{OutputDimensionality: genai.Ptr(q.Dimension)}
	}
	return q.ModelHandle.EmbedContent(ctx, q.ModelName, contents, cfg)
}
