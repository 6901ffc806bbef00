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

// Package test provides configuration, fakes and fixtures shared by the test
// suites. Nothing here talks to Google Cloud.
package test

import (
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/cloud"
)

// StateManager caches the test configuration across tests of one package.
type StateManager struct {
	once   sync.Once
	config *cloud.Config
}

var state = &StateManager{}

// HandleErr fails the test if err is set.
func HandleErr(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// RepoRoot walks up from the working directory to the directory holding
// go.mod. Tests run inside their package directory, so relative paths such
// as "configs" need anchoring.
func RepoRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		log.Fatalf("failed to get working directory: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			log.Fatalf("go.mod not found above working directory")
		}
		dir = parent
	}
}

// SetupOS points the configuration loader at configs/.env.test.toml.
func SetupOS() (err error) {
	if err = os.Setenv(cloud.EnvConfigFilePrefix, filepath.Join(RepoRoot(), "configs")); err != nil {
		return err
	}
	return os.Setenv(cloud.EnvConfigRuntime, "test")
}

// GetConfig loads the test configuration once. Callers that mutate the
// result should take a copy with CopyConfig.
func GetConfig() *cloud.Config {
	state.once.Do(func() {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup environment for test: %v\n", err)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			log.Fatalf("failed to load test configuration: %v\n", err)
		}
		state.config = config
	})
	return state.config
}

// CopyConfig returns a copy of the test configuration whose storage root is a
// fresh temporary directory.
func CopyConfig(t *testing.T) *cloud.Config {
	t.Helper()
	c := *GetConfig()
	c.Storage.DatasetRoot = t.TempDir()
	return &c
}

// GetTestArchiveMessageText simulates the Cloud Storage notification for an
// archive finalized in the upload bucket.
func GetTestArchiveMessageText() string {
	return `{
  "kind": "storage#object",
  "id": "ad_archive_uploads/summer-campaign.zip/1728615848664286",
  "selfLink": "https://www.googleapis.com/storage/v1/b/ad_archive_uploads/o/summer-campaign.zip",
  "name": "summer-campaign.zip",
  "bucket": "ad_archive_uploads",
  "generation": "1728615848664286",
  "metageneration": "1",
  "contentType": "application/zip",
  "timeCreated": "2024-10-11T03:04:08.672Z",
  "updated": "2024-10-11T03:04:08.672Z",
  "storageClass": "STANDARD",
  "timeStorageClassUpdated": "2024-10-11T03:04:08.672Z",
  "size": "2593480",
  "md5Hash": "67c1rAU+1RYZzK5zp8iBkA==",
  "mediaLink": "https://storage.googleapis.com/download/storage/v1/b/ad_archive_uploads/o/summer-campaign.zip?generation=1728615848664286&alt=media",
  "metadata": { "touch": "18" },
  "crc32c": "IYeSTw==",
  "etag": "CN658+yrhYkDEAE="
}
`
}

// GetTestVideoMessageText is a notification for an object that is not an
// archive; the trigger workflow must ignore it.
func GetTestVideoMessageText() string {
	return `{
  "kind": "storage#object",
  "name": "test-trailer-001.mp4",
  "bucket": "ad_archive_uploads",
  "contentType": "video/mp4",
  "size": "259348037"
}
`
}
