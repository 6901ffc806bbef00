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

package api_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/api"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/services"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-ad-analysis/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	router    *gin.Engine
	generator *test.StubGenerator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	config := test.CopyConfig(t)
	config.Media.TesseractCommand = ""
	generator := test.NewEchoGenerator()

	store := services.NewArtifactStore(config.Storage.DatasetRoot)
	search := services.NewSearchService(services.NewHashingEmbedder(config.Search.Dimension), config.Search.CandidatePool, store)
	pipeline, err := workflow.NewDatasetAnalysisWorkflow(config, generator, store, search, nil)
	require.NoError(t, err)

	r := gin.New()
	api.NewServer(services.NewDatasetService(store, pipeline), search, nil).Register(r)
	return &fixture{router: r, generator: generator}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func upload(t *testing.T, filename string, data []byte, dataset string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	if dataset != "" {
		require.NoError(t, mw.WriteField("dataset", dataset))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/process", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func TestHealthAndRoot(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/process")
}

func TestProcessArchive(t *testing.T) {
	f := newFixture(t)
	archive := test.ZipBytes(t, test.AdArchive(t))

	w := f.do(t, upload(t, "summer-campaign.zip", archive, ""))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "summer-campaign", w.Header().Get(api.HeaderDataset))
	assert.Equal(t, "false", w.Header().Get(api.HeaderCached))

	var mapping model.AnalysisMapping
	decode(t, w, &mapping)
	require.Len(t, mapping, 3)
	assert.Contains(t, mapping["ad_corrupt.png"], model.KeyError)
	assert.False(t, mapping["ad_red.png"].HasError())
	first := w.Body.String()

	// Same archive again: served from the artifact, byte for byte.
	w = f.do(t, upload(t, "summer-campaign.zip", archive, ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get(api.HeaderCached))
	assert.Equal(t, first, w.Body.String())
	assert.Equal(t, 2, f.generator.Calls())

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/datasets", nil))
	assert.JSONEq(t, `{"datasets":["summer-campaign"]}`, w.Body.String())

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/datasets/summer-campaign", nil))
	assert.Equal(t, first, w.Body.String())

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/datasets/summer-campaign/files/ad_blue.png", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var rec model.AnalysisRecord
	decode(t, w, &rec)
	assert.Equal(t, "24x12", rec["resolution"])

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/datasets/summer-campaign/files/nope.png", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/stats", nil))
	assert.JSONEq(t, `{"datasets":[{"dataset":"summer-campaign","failed":1,"total":3}]}`, w.Body.String())
}

func TestProcessRejectsBadUploads(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, upload(t, "creatives.tar", []byte("data"), ""))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"detail":"File must be a .zip file"}`, w.Body.String())

	w = f.do(t, upload(t, "broken.zip", []byte("definitely not a zip"), ""))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, upload(t, "docs.zip", test.ZipBytes(t, map[string][]byte{"readme.txt": []byte("x")}), ""))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/process", strings.NewReader(""))
	w = f.do(t, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Zero(t, f.generator.Calls())
}

func TestSearchEndpoints(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, upload(t, "ads.zip", test.ZipBytes(t, test.AdArchive(t)), "launch"))
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/datasets/launch/search?q=luxury+premium&top_k=1&type=image", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Query   string                `json:"query"`
		Results []*model.SearchResult `json:"results"`
	}
	decode(t, w, &got)
	assert.Equal(t, "luxury premium", got.Query)
	require.Len(t, got.Results, 1)
	assert.Equal(t, model.MediaKindImage, got.Results[0].FileType)
	assert.True(t, strings.HasSuffix(got.Results[0].SearchTextPreview, "..."))

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/datasets/launch/search?q=luxury&type=audio", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/datasets/launch/search", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/datasets/unknown/search?q=luxury", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	body := `{"query":"luxury","filters":{"min_luxury_index":0.7},"top_k":5}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/datasets/launch/search", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w = f.do(t, req)
	require.Equal(t, http.StatusOK, w.Code)
	got.Results = nil
	decode(t, w, &got)
	assert.Len(t, got.Results, 2)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/datasets/launch/search", strings.NewReader(`{"query":"x","filters":{"min_luxury_index":"high"}}`))
	req.Header.Set("Content-Type", "application/json")
	w = f.do(t, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/datasets/launch/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total_files":2,"total_videos":0,"total_images":2,"embedding_dimension":384}`, w.Body.String())
}

func TestDashboardWithoutWarehouse(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/stats", nil))
	assert.JSONEq(t, `{"datasets":[]}`, w.Body.String())

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/stats/launch/rows", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
