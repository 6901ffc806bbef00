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
	"log/slog"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"google.golang.org/genai"
)

// ServiceClients holds every external client the server uses. Storage,
// Pub/Sub and BigQuery clients are only created when the configuration asks
// for them; nil means the feature is off.
type ServiceClients struct {
	StorageClient   *storage.Client
	PubsubClient    *pubsub.Client
	GenAIClient     *genai.Client
	BiqQueryClient  *bigquery.Client
	PubSubListeners map[string]*PubSubListener
	EmbeddingModels map[string]*QuotaAwareEmbeddingModel
	AgentModels     map[string]*QuotaAwareGenerativeAIModel
}

// Close releases the clients that were created.
func (c *ServiceClients) Close() {
	if c.StorageClient != nil {
		_ = c.StorageClient.Close()
	}
	if c.PubsubClient != nil {
		_ = c.PubsubClient.Close()
	}
	if c.BiqQueryClient != nil {
		_ = c.BiqQueryClient.Close()
	}
}

// NewGenAIClient uses the Gemini API when an API key is configured and
// Vertex AI otherwise.
func NewGenAIClient(ctx context.Context, config *Config) (*genai.Client, error) {
	cc := &genai.ClientConfig{
		Project:  config.Application.GoogleProjectId,
		Location: config.Application.GoogleLocation,
		Backend:  genai.BackendVertexAI,
	}
	if config.Application.GeminiAPIKey != "" {
		cc = &genai.ClientConfig{APIKey: config.Application.GeminiAPIKey, Backend: genai.BackendGeminiAPI}
	}
	gc, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("error creating genai client: %w", err)
	}
	return gc, nil
}

// NewCloudServiceClients creates the clients and model wrappers described by
// config.
func NewCloudServiceClients(ctx context.Context, config *Config) (cloud *ServiceClients, err error) {
	cloud = &ServiceClients{
		PubSubListeners: make(map[string]*PubSubListener),
		EmbeddingModels: make(map[string]*QuotaAwareEmbeddingModel),
		AgentModels:     make(map[string]*QuotaAwareGenerativeAIModel),
	}
	defer func() {
		if err != nil {
			cloud.Close()
			cloud = nil
		}
	}()

	if config.Storage.ArtifactBucket != "" || config.Storage.UploadBucket != "" {
		if cloud.StorageClient, err = storage.NewClient(ctx); err != nil {
			return cloud, err
		}
	}

	if len(config.TopicSubscriptions) > 0 {
		if cloud.PubsubClient, err = pubsub.NewClient(ctx, config.Application.GoogleProjectId); err != nil {
			return cloud, err
		}
		// Commands are attached once the workflows are built.
		for subKey, values := range config.TopicSubscriptions {
			listener, err := NewPubSubListener(cloud.PubsubClient, values.Name, nil)
			if err != nil {
				return cloud, err
			}
			cloud.PubSubListeners[subKey] = listener
		}
	}

	if config.BigQueryDataSource.Enabled() {
		if cloud.BiqQueryClient, err = bigquery.NewClient(ctx, config.Application.GoogleProjectId); err != nil {
			return cloud, err
		}
	}

	if cloud.GenAIClient, err = NewGenAIClient(ctx, config); err != nil {
		return cloud, err
	}

	for embKey, values := range config.EmbeddingModels {
		cloud.EmbeddingModels[embKey] = NewQuotaAwareEmbeddingModel(values.Model, cloud.GenAIClient.Models, values.Dimension, values.MaxRequestsPerMinute)
	}

	for amKey, values := range config.AgentModels {
		cloud.AgentModels[amKey] = NewQuotaAwareModel(NewGenerateContentConfig(values), values.Model, cloud.GenAIClient.Models, values.RateLimit)
		slog.Debug("configured agent model", "key", amKey, "model", values.Model)
	}

	return cloud, nil
}

// NewGenerateContentConfig converts a model configuration into request
// settings.
func NewGenerateContentConfig(values VertexAiLLMModel) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](values.Temperature),
		MaxOutputTokens:  values.MaxTokens,
		SafetySettings:   DefaultSafetySettings,
		ResponseMIMEType: values.OutputFormat,
	}
	if values.TopP > 0 {
		cfg.TopP = genai.Ptr[float32](values.TopP)
	}
	if values.TopK > 0 {
		cfg.TopK = genai.Ptr[float32](values.TopK)
	}
	if values.SystemInstructions != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: values.SystemInstructions}}}
	}
	return cfg
}
