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

package model

// These objects live only for the duration of a pipeline run.

// Batch is an ordered group of files submitted in one model call. The
// position of a filename in Filenames is its index key in the prompt and in
// the response.
type Batch struct {
	Index     int
	Kind      MediaKind
	Filenames []string
	Records   []*PreprocessingRecord
}

func (b *Batch) Size() int {
	return len(b.Filenames)
}

// Attachment is one media blob sent inline with a prompt. TempPath is set
// when the compressor wrote a transient copy that must be removed once the
// owning batch completes.
type Attachment struct {
	Filename string
	MIMEType string
	Data     []byte
	TempPath string
}

// SearchResult is one ranked hit of the search index.
type SearchResult struct {
	Filename          string         `json:"filename"`
	FileType          MediaKind      `json:"file_type"`
	Similarity        float64        `json:"similarity"`
	Analysis          AnalysisRecord `json:"analysis"`
	SearchTextPreview string         `json:"search_text_preview"`
}

// IndexStats summarizes an index.
type IndexStats struct {
	TotalFiles         int `json:"total_files"`
	TotalVideos        int `json:"total_videos"`
	TotalImages        int `json:"total_images"`
	EmbeddingDimension int `json:"embedding_dimension"`
}

// SearchFilters maps min_<field>, max_<field> or <field> to a threshold or an
// exact value.
type SearchFilters map[string]any
