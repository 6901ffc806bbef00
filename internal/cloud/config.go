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

// Package cloud holds the application configuration and everything that
// talks to Google Cloud: the Gemini generator and embedder, the rate limited
// model wrapper, Cloud Storage, Pub/Sub and BigQuery clients.
//
// Configuration is loaded from TOML files (see LoadConfig) and passed
// explicitly to every constructor; nothing here keeps process-wide state.
package cloud

import (
	"time"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
	"google.golang.org/genai"
)

// DefaultSafetySettings leaves every harm category unblocked. A blocked
// response fails every file of its batch.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
}

// BigQueryDataSource names the optional analysis mirror table.
type BigQueryDataSource struct {
	DatasetName   string `toml:"dataset"`
	AnalysisTable string `toml:"analysis_table"`
}

// Enabled reports whether the mirror is configured.
func (b BigQueryDataSource) Enabled() bool {
	return b.DatasetName != "" && b.AnalysisTable != ""
}

// PromptTemplates override the built-in batch prompt per media kind. Empty
// values keep the default.
type PromptTemplates struct {
	ImagePrompt string `toml:"image"`
	VideoPrompt string `toml:"video"`
}

// AnalysisFields override the requested output fields per media kind.
type AnalysisFields struct {
	Image []model.SchemaField `toml:"image"`
	Video []model.SchemaField `toml:"video"`
}

// VertexAiEmbeddingModel configures an embedding model.
type VertexAiEmbeddingModel struct {
	Model                string `toml:"model"`
	MaxRequestsPerMinute int    `toml:"max_requests_per_minute"`
	Dimension            int32  `toml:"dimension"`
}

// VertexAiLLMModel configures a generative model.
type VertexAiLLMModel struct {
	Model              string  `toml:"model"`
	SystemInstructions string  `toml:"system_instructions"`
	Temperature        float32 `toml:"temperature"`
	TopP               float32 `toml:"top_p"`
	TopK               float32 `toml:"top_k"`
	MaxTokens          int32   `toml:"max_tokens"`
	OutputFormat       string  `toml:"output_format"`
	RateLimit          int     `toml:"rate_limit"` // requests per second
}

// TopicSubscription configures a Pub/Sub subscription.
type TopicSubscription struct {
	Name             string `toml:"name"`
	DeadLetterTopic  string `toml:"dead_letter_topic"`
	TimeoutInSeconds int    `toml:"timeout_in_seconds"`
}

// Storage locates the durable dataset store and the optional buckets.
type Storage struct {
	DatasetRoot    string `toml:"dataset_root"`    // local per-dataset directories and artifacts
	ArtifactBucket string `toml:"artifact_bucket"` // optional mirror of analysis artifacts
	UploadBucket   string `toml:"upload_bucket"`   // archives dropped here trigger processing
}

// Analysis tunes the batch orchestrator.
type Analysis struct {
	ImageBatchSize       int    `toml:"image_batch_size"`
	VideoBatchSize       int    `toml:"video_batch_size"`
	MaxConcurrentBatches int    `toml:"max_concurrent_batches"`
	CallTimeoutSeconds   int    `toml:"call_timeout_seconds"`
	RunTimeoutSeconds    int    `toml:"run_timeout_seconds"` // whole dataset run; 0 is unbounded
	MaxRetries           int    `toml:"max_retries"`
	RetryBackoffMillis   int    `toml:"retry_backoff_millis"`
	AgentModel           string `toml:"agent_model"` // key into AgentModels
	PreprocessWorkers    int    `toml:"preprocess_workers"`
	MaxPromptTextChars   int    `toml:"max_prompt_text_chars"`
}

func (a Analysis) CallTimeout() time.Duration {
	return time.Duration(a.CallTimeoutSeconds) * time.Second
}

func (a Analysis) RunTimeout() time.Duration {
	return time.Duration(a.RunTimeoutSeconds) * time.Second
}

func (a Analysis) RetryBackoff() time.Duration {
	return time.Duration(a.RetryBackoffMillis) * time.Millisecond
}

// Media holds the external tool locations and the model upload limits.
type Media struct {
	FFmpegCommand     string `toml:"ffmpeg_command"`
	FFprobeCommand    string `toml:"ffprobe_command"`
	TesseractCommand  string `toml:"tesseract_command"` // empty disables OCR
	MaxImageDimension int    `toml:"max_image_dimension"`
	MaxImageBytes     int64  `toml:"max_image_bytes"`
	MaxVideoBytes     int64  `toml:"max_video_bytes"`
	VideoTargetWidth  int    `toml:"video_target_width"`
}

// Search configures the per-dataset search index.
type Search struct {
	Embedder       string `toml:"embedder"` // "hashing" or "gemini"
	EmbeddingModel string `toml:"embedding_model"`
	Dimension      int    `toml:"dimension"`
	CandidatePool  int    `toml:"candidate_pool"`
}

// Config is the root of the TOML configuration.
type Config struct {
	Application struct {
		Name            string   `toml:"name"`
		GoogleProjectId string   `toml:"google_project_id"`
		GoogleLocation  string   `toml:"location"`
		GeminiAPIKey    string   `toml:"gemini_api_key"`
		ThreadPoolSize  int      `toml:"thread_pool_size"`
		ListenAddress   string   `toml:"listen_address"`
		EnableTelemetry bool     `toml:"enable_telemetry"`
		LogLevel        string   `toml:"log_level"`
		AllowedOrigins  []string `toml:"allowed_origins"`
	} `toml:"application"`
	Storage            Storage                           `toml:"storage"`
	Analysis           Analysis                          `toml:"analysis"`
	Media              Media                             `toml:"media"`
	Search             Search                            `toml:"search"`
	BigQueryDataSource BigQueryDataSource                `toml:"big_query_data_source"`
	PromptTemplates    PromptTemplates                   `toml:"prompt_templates"`
	AnalysisFields     AnalysisFields                    `toml:"analysis_fields"`
	TopicSubscriptions map[string]TopicSubscription      `toml:"topic_subscriptions"`
	EmbeddingModels    map[string]VertexAiEmbeddingModel `toml:"embedding_models"`
	AgentModels        map[string]VertexAiLLMModel       `toml:"agent_models"`
}

// NewConfig returns a Config with working defaults. TOML files only need to
// name what differs.
func NewConfig() *Config {
	c := &Config{
		TopicSubscriptions: make(map[string]TopicSubscription),
		EmbeddingModels:    make(map[string]VertexAiEmbeddingModel),
		AgentModels:        make(map[string]VertexAiLLMModel),
	}
	c.Application.Name = "ad-analysis"
	c.Application.ThreadPoolSize = 4
	c.Application.ListenAddress = ":8080"
	c.Application.LogLevel = "info"
	c.Storage.DatasetRoot = "datasets"
	c.Analysis = Analysis{
		ImageBatchSize:       10,
		VideoBatchSize:       5,
		MaxConcurrentBatches: 4,
		CallTimeoutSeconds:   120,
		RunTimeoutSeconds:    3600,
		MaxRetries:           2,
		RetryBackoffMillis:   1000,
		AgentModel:           "creative-flash",
		PreprocessWorkers:    4,
		MaxPromptTextChars:   1000,
	}
	c.Media = Media{
		FFmpegCommand:     "ffmpeg",
		FFprobeCommand:    "ffprobe",
		MaxImageDimension: 1536,
		MaxImageBytes:     4 << 20,
		MaxVideoBytes:     18 << 20,
		VideoTargetWidth:  640,
	}
	c.Search = Search{
		Embedder:      "hashing",
		Dimension:     384,
		CandidatePool: 50,
	}
	return c
}
