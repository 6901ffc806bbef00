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

package services_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactStoreWriteIsAtomic(t *testing.T) {
	store := services.NewArtifactStore(t.TempDir())
	assert.False(t, store.Exists("summer"))

	require.NoError(t, store.Write("summer", []byte(`{"a.png":{}}`)))
	require.NoError(t, store.Write("summer", []byte(`{"b.png":{}}`)))
	assert.True(t, store.Exists("summer"))

	data, err := store.Read("summer")
	require.NoError(t, err)
	assert.Equal(t, `{"b.png":{}}`, string(data))

	// Only the artifact remains; no temporary files are left behind.
	entries, err := os.ReadDir(store.DatasetDir("summer"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, services.ArtifactFileName, entries[0].Name())
}

func TestArtifactStoreWriteFailureLeavesNoArtifact(t *testing.T) {
	root := t.TempDir()
	store := services.NewArtifactStore(root)
	// A regular file where the dataset directory should be.
	require.NoError(t, os.WriteFile(filepath.Join(root, "blocked"), []byte("x"), 0o644))

	assert.Error(t, store.Write("blocked", []byte("{}")))
	assert.False(t, store.Exists("blocked"))
}

func TestArtifactStoreReadAndList(t *testing.T) {
	store := services.NewArtifactStore(filepath.Join(t.TempDir(), "datasets"))

	names, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = store.Read("nope")
	assert.ErrorIs(t, err, services.ErrDatasetNotFound)

	mapping := model.AnalysisMapping{"ad.png": {"luxury_index": 0.5}}
	data, err := mapping.Encode()
	require.NoError(t, err)
	require.NoError(t, store.Write("winter", data))
	require.NoError(t, store.Write("autumn", data))
	require.NoError(t, os.MkdirAll(store.MediaDir("incomplete"), 0o755))

	names, err = store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"autumn", "winter"}, names)

	loaded, err := store.Load("winter")
	require.NoError(t, err)
	assert.Equal(t, 0.5, loaded["ad.png"]["luxury_index"])
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "summer-campaign", services.SanitizeName(" summer-campaign "))
	assert.Equal(t, "q3_ads_v2", services.SanitizeName("q3 ads/v2"))
	assert.Equal(t, "_etc_passwd", services.SanitizeName("../etc/passwd"))
	assert.Equal(t, "", services.SanitizeName(".."))
	assert.Equal(t, "", services.SanitizeName("   "))
	assert.Equal(t, "", services.SanitizeName("///"))
}

func TestDatasetIdentity(t *testing.T) {
	assert.Equal(t, "explicit", services.DatasetIdentity("explicit", "upload.zip", nil))
	assert.Equal(t, "summer-campaign", services.DatasetIdentity("", "uploads/summer-campaign.zip", nil))

	a := services.DatasetIdentity("", ".zip", []byte("one"))
	b := services.DatasetIdentity("", ".zip", []byte("two"))
	assert.Regexp(t, `^dataset-[0-9a-f]{16}$`, a)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, services.DatasetIdentity("", "", []byte("one")))
}
