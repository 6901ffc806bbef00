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
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"
)

const (
	ConfigFileBaseName  = ".env"
	ConfigFileExtension = ".toml"
	ConfigSeparator     = "."
	EnvConfigFilePrefix = "GCP_CONFIG_PREFIX" // directory holding the TOML files
	EnvConfigRuntime    = "GCP_RUNTIME"       // selects .env.<runtime>.toml
	EnvGeminiAPIKey     = "GEMINI_API_KEY"
	EnvDotEnvFile       = "DOTENV_FILE"
)

func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// LoadConfig fills config from, in order: the defaults already in config,
// <prefix>/.env.toml, <prefix>/.env.<runtime>.toml, and finally secrets from
// the environment. A dotenv file (DOTENV_FILE, default ".env") is loaded into
// the environment first if it exists; variables already set win.
//
// Missing files are skipped. A file that exists but does not decode is an
// error.
func LoadConfig(config *Config) error {
	dotenv := os.Getenv(EnvDotEnvFile)
	if dotenv == "" {
		dotenv = ".env"
	}
	if fileExists(dotenv) {
		if err := godotenv.Load(dotenv); err != nil {
			return fmt.Errorf("failed to load dotenv file %s: %w", dotenv, err)
		}
	}

	configurationFilePrefix := os.Getenv(EnvConfigFilePrefix)
	if len(configurationFilePrefix) > 0 && !strings.HasSuffix(configurationFilePrefix, string(os.PathSeparator)) {
		configurationFilePrefix = configurationFilePrefix + string(os.PathSeparator)
	}

	runtimeEnvironment := os.Getenv(EnvConfigRuntime)
	if runtimeEnvironment == "" {
		runtimeEnvironment = "test"
	}

	baseConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigFileExtension
	envConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigSeparator + runtimeEnvironment + ConfigFileExtension

	for _, name := range []string{baseConfigFileName, envConfigFileName} {
		if !fileExists(name) {
			slog.Debug("configuration file not found, skipping", "file", name)
			continue
		}
		if _, err := toml.DecodeFile(name, config); err != nil {
			return fmt.Errorf("failed to decode configuration file %s: %w", name, err)
		}
		slog.Debug("loaded configuration file", "file", name)
	}

	if key := os.Getenv(EnvGeminiAPIKey); key != "" {
		config.Application.GeminiAPIKey = key
	}
	return nil
}

// TokenCounters records model token usage.
type TokenCounters struct {
	Input  metric.Int64Counter
	Output metric.Int64Counter
}

// GenerateMultiModalResponse runs one rate limited GenerateContent call and
// returns the concatenated candidate text. Retries are the caller's concern.
func GenerateMultiModalResponse(
	ctx context.Context,
	counters *TokenCounters,
	model *QuotaAwareGenerativeAIModel,
	content []*genai.Content) (string, error) {

	resp, err := model.GenerateContent(ctx, content)
	if err != nil {
		return "", err
	}
	if counters != nil && resp.UsageMetadata != nil {
		counters.Input.Add(ctx, int64(resp.UsageMetadata.PromptTokenCount))
		counters.Output.Add(ctx, int64(resp.UsageMetadata.CandidatesTokenCount))
	}
	return ResponseText(resp)
}

// ErrBlocked is returned when the model refused to answer.
var ErrBlocked = errors.New("model response blocked")

// ResponseText concatenates the text parts of every candidate. A response
// without candidates is reported as blocked, with the block reason when the
// service gave one.
func ResponseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errors.New("empty model response")
	}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("%w: %s", ErrBlocked, resp.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("%w: no candidates", ErrBlocked)
	}

	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil {
				sb.WriteString(part.Text)
			}
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: candidates carried no text (finish reason %s)", ErrBlocked, resp.Candidates[0].FinishReason)
	}
	return sb.String(), nil
}

// NewInlinePart wraps raw media bytes as a request part.
func NewInlinePart(data []byte, mimeType string) *genai.Part {
	return &genai.Part{InlineData: &genai.Blob{Data: data, MIMEType: mimeType}}
}
