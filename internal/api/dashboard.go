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

package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/services"
)

// Dashboard reports failed and total files per dataset. With the BigQuery
// mirror configured the counts come from the warehouse; otherwise they are
// computed from the local artifacts.
func (s *Server) Dashboard(r *gin.RouterGroup) {
	stats := r.Group("/dashboard/stats")
	{
		stats.GET("", func(c *gin.Context) {
			var (
				out []*services.DatasetSummary
				err error
			)
			if s.warehouse != nil {
				out, err = s.warehouse.Summaries(c.Request.Context())
			} else {
				out, err = s.localSummaries()
			}
			if err != nil {
				detail(c, http.StatusInternalServerError, err.Error())
				return
			}
			c.JSON(http.StatusOK, gin.H{"datasets": out})
		})

		stats.GET("/:name/rows", func(c *gin.Context) {
			if s.warehouse == nil {
				detail(c, http.StatusServiceUnavailable, "BigQuery mirror is not configured")
				return
			}
			rows, err := s.warehouse.List(c.Request.Context(), c.Param("name"))
			if err != nil {
				detail(c, http.StatusInternalServerError, err.Error())
				return
			}
			c.JSON(http.StatusOK, gin.H{"rows": rows})
		})

		stats.GET("/:name/files/:filename", func(c *gin.Context) {
			if s.warehouse == nil {
				detail(c, http.StatusServiceUnavailable, "BigQuery mirror is not configured")
				return
			}
			rec, err := s.warehouse.Get(c.Request.Context(), c.Param("name"), c.Param("filename"))
			if errors.Is(err, services.ErrDatasetNotFound) {
				detail(c, http.StatusNotFound, "File not found in dataset")
				return
			}
			if err != nil {
				detail(c, http.StatusInternalServerError, err.Error())
				return
			}
			c.JSON(http.StatusOK, rec)
		})
	}
}

func (s *Server) localSummaries() ([]*services.DatasetSummary, error) {
	store := s.datasets.Store()
	names, err := store.List()
	if err != nil {
		return nil, err
	}
	out := make([]*services.DatasetSummary, 0, len(names))
	for _, name := range names {
		mapping, err := store.Load(name)
		if err != nil {
			return nil, err
		}
		summary := &services.DatasetSummary{Dataset: name, Total: int64(len(mapping))}
		for _, rec := range mapping {
			if rec.HasError() {
				summary.Failed++
			}
		}
		out = append(out, summary)
	}
	return out, nil
}
