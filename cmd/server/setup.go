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
	"fmt"
	"log"
	"os"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/cloud"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/services"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/workflow"
)

type StateManager struct {
	config    *cloud.Config
	cloud     *cloud.ServiceClients
	datasets  *services.DatasetService
	search    *services.SearchService
	warehouse *services.MediaService
}

var state = &StateManager{}

// SetupOS defaults the configuration directory and runtime when the
// environment does not name them.
func SetupOS() (err error) {
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err = os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		err = os.Setenv(cloud.EnvConfigRuntime, "local")
	}
	return err
}

func GetConfig() *cloud.Config {
	if state.config == nil {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup os: %v\n", err)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			log.Fatalf("failed to load configuration: %v\n", err)
		}
		state.config = config
	}
	return state.config
}

func newEmbedder(config *cloud.Config, clients *cloud.ServiceClients) (services.Embedder, error) {
	switch config.Search.Embedder {
	case "", "hashing":
		return services.NewHashingEmbedder(config.Search.Dimension), nil
	case "gemini":
		m, ok := clients.EmbeddingModels[config.Search.EmbeddingModel]
		if !ok {
			return nil, fmt.Errorf("embedding model %q is not configured", config.Search.EmbeddingModel)
		}
		return cloud.NewGeminiEmbedder(m), nil
	default:
		return nil, fmt.Errorf("unknown embedder %q", config.Search.Embedder)
	}
}

func InitState(ctx context.Context) error {
	config := GetConfig()

	cloudClients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return err
	}
	state.cloud = cloudClients

	agent, ok := cloudClients.AgentModels[config.Analysis.AgentModel]
	if !ok {
		return fmt.Errorf("agent model %q is not configured", config.Analysis.AgentModel)
	}
	embedder, err := newEmbedder(config, cloudClients)
	if err != nil {
		return err
	}

	store := services.NewArtifactStore(config.Storage.DatasetRoot)
	state.search = services.NewSearchService(embedder, config.Search.CandidatePool, store)

	pipeline, err := workflow.NewDatasetAnalysisWorkflow(config, cloud.NewGeminiGenerator(agent), store, state.search, cloudClients)
	if err != nil {
		return err
	}
	state.datasets = services.NewDatasetService(store, pipeline).WithRunTimeout(config.Analysis.RunTimeout())

	if cloudClients.BiqQueryClient != nil {
		state.warehouse = &services.MediaService{
			BigqueryClient: cloudClients.BiqQueryClient,
			DatasetName:    config.BigQueryDataSource.DatasetName,
			AnalysisTable:  config.BigQueryDataSource.AnalysisTable,
		}
	}

	SetupListeners(ctx, cloudClients, state.datasets)
	return nil
}
