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

// Package api exposes dataset processing, search and the analysis dashboard
// over HTTP with gin.
package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/services"
)

const (
	HeaderDataset = "X-Dataset-Name"
	HeaderCached  = "X-Analysis-Cached"
)

// Server holds the services behind the HTTP handlers. warehouse is optional;
// without it the dashboard is computed from the local artifacts.
type Server struct {
	datasets  *services.DatasetService
	search    *services.SearchService
	warehouse *services.MediaService
}

func NewServer(datasets *services.DatasetService, search *services.SearchService, warehouse *services.MediaService) *Server {
	return &Server{datasets: datasets, search: search, warehouse: warehouse}
}

// Register mounts every route on r.
func (s *Server) Register(r gin.IRouter) {
	r.GET("/", s.root)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/process", s.process)
		s.DatasetRouter(apiV1)
		s.Dashboard(apiV1)
	}
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Ad Media Analysis API",
		"endpoints": gin.H{
			"/api/v1/process":               "POST - Upload and process a zip file",
			"/api/v1/datasets":              "GET - List processed datasets",
			"/api/v1/datasets/:name":        "GET - Analysis mapping of a dataset",
			"/api/v1/datasets/:name/search": "GET, POST - Semantic search over a dataset",
			"/api/v1/datasets/:name/stats":  "GET - Search index statistics",
			"/api/v1/dashboard/stats":       "GET - Failed and total files per dataset",
			"/health":                       "GET - Health check",
		},
	})
}

func detail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}

// process accepts a multipart "file" holding a zip archive. The optional
// "dataset" form field or query parameter names the dataset. The response
// body is the persisted analysis artifact.
func (s *Server) process(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		detail(c, http.StatusBadRequest, "A multipart field named file is required")
		return
	}
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".zip") {
		detail(c, http.StatusBadRequest, "File must be a .zip file")
		return
	}

	f, err := header.Open()
	if err != nil {
		detail(c, http.StatusBadRequest, fmt.Sprintf("Failed to read upload: %v", err))
		return
	}
	data, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		detail(c, http.StatusBadRequest, fmt.Sprintf("Failed to read upload: %v", err))
		return
	}

	name := c.PostForm("dataset")
	if name == "" {
		name = c.Query("dataset")
	}
	slog.Info("archive received", "filename", header.Filename, "bytes", len(data), "dataset", name)

	result, err := s.datasets.ProcessArchive(c.Request.Context(), header.Filename, data, name)
	switch {
	case errors.Is(err, services.ErrInvalidArchive), errors.Is(err, services.ErrEmptyArchive):
		detail(c, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		slog.Error("archive processing failed", "filename", header.Filename, "error", err)
		detail(c, http.StatusInternalServerError, fmt.Sprintf("Processing failed: %v", err))
		return
	}

	c.Header(HeaderDataset, result.Dataset)
	c.Header(HeaderCached, strconv.FormatBool(result.Cached))
	c.Data(http.StatusOK, "application/json", result.Data)
}

// DatasetRouter serves persisted datasets and their search indexes.
func (s *Server) DatasetRouter(r *gin.RouterGroup) {
	datasets := r.Group("/datasets")
	{
		datasets.GET("", func(c *gin.Context) {
			names, err := s.datasets.Store().List()
			if err != nil {
				detail(c, http.StatusInternalServerError, err.Error())
				return
			}
			c.JSON(http.StatusOK, gin.H{"datasets": names})
		})

		datasets.GET("/:name", func(c *gin.Context) {
			result, ok := s.load(c)
			if !ok {
				return
			}
			c.Data(http.StatusOK, "application/json", result.Data)
		})

		datasets.GET("/:name/files/:filename", func(c *gin.Context) {
			result, ok := s.load(c)
			if !ok {
				return
			}
			rec, found := result.Mapping[c.Param("filename")]
			if !found {
				detail(c, http.StatusNotFound, "File not found in dataset")
				return
			}
			c.JSON(http.StatusOK, rec)
		})

		datasets.GET("/:name/search", s.searchQuery)
		datasets.POST("/:name/search", s.searchFiltered)

		datasets.GET("/:name/stats", func(c *gin.Context) {
			idx, ok := s.index(c)
			if !ok {
				return
			}
			stats, err := idx.Stats()
			if err != nil {
				detail(c, http.StatusInternalServerError, err.Error())
				return
			}
			c.JSON(http.StatusOK, stats)
		})
	}
}

func (s *Server) load(c *gin.Context) (*services.Result, bool) {
	result, err := s.datasets.Load(c.Param("name"))
	if errors.Is(err, services.ErrDatasetNotFound) {
		detail(c, http.StatusNotFound, "Dataset not found")
		return nil, false
	}
	if err != nil {
		detail(c, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return result, true
}

func (s *Server) index(c *gin.Context) (*services.SearchIndex, bool) {
	idx, err := s.search.Index(c.Request.Context(), c.Param("name"))
	if errors.Is(err, services.ErrDatasetNotFound) {
		detail(c, http.StatusNotFound, "Dataset not found")
		return nil, false
	}
	if err != nil {
		slog.Error("failed to load search index", "dataset", c.Param("name"), "error", err)
		detail(c, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return idx, true
}

func parseKind(v string) (model.MediaKind, bool) {
	switch strings.ToLower(v) {
	case "", "all":
		return model.MediaKindUnknown, true
	case "image":
		return model.MediaKindImage, true
	case "video":
		return model.MediaKindVideo, true
	default:
		return model.MediaKindUnknown, false
	}
}

func (s *Server) searchQuery(c *gin.Context) {
	query := c.Query("q")
	if len(query) == 0 {
		c.Status(http.StatusBadRequest)
		return
	}
	topK, err := strconv.Atoi(c.DefaultQuery("top_k", strconv.Itoa(services.DefaultTopK)))
	if err != nil {
		topK = services.DefaultTopK
	}
	kind, ok := parseKind(c.Query("type"))
	if !ok {
		detail(c, http.StatusBadRequest, "type must be image or video")
		return
	}

	idx, ok := s.index(c)
	if !ok {
		return
	}
	results, err := idx.Search(c.Request.Context(), query, topK, kind)
	if err != nil {
		detail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": query, "results": results})
}

// FilteredSearch is the body of POST /datasets/:name/search.
type FilteredSearch struct {
	Query   string              `json:"query" binding:"required"`
	Filters model.SearchFilters `json:"filters"`
	TopK    int                 `json:"top_k"`
}

func (s *Server) searchFiltered(c *gin.Context) {
	var req FilteredSearch
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := services.ValidateFilters(req.Filters); err != nil {
		detail(c, http.StatusBadRequest, err.Error())
		return
	}

	idx, ok := s.index(c)
	if !ok {
		return
	}
	results, err := idx.SearchWithFilters(c.Request.Context(), req.Query, req.Filters, req.TopK)
	if err != nil {
		detail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": req.Query, "filters": req.Filters, "results": results})
}
