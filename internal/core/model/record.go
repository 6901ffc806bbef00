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

// Package model defines the records that flow through the analysis pipeline.
//
// A PreprocessingRecord holds the locally computed features of one media
// file. An AnalysisRecord is the flat JSON object persisted for that file: the
// features fused with the model's structured fields, or an error marker. The
// AnalysisMapping keyed by filename is the dataset artifact.
package model

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"
)

// MediaKind separates the two independent analysis pipelines.
type MediaKind string

const (
	MediaKindImage   MediaKind = "image"
	MediaKindVideo   MediaKind = "video"
	MediaKindUnknown MediaKind = ""
)

// Well known record keys.
const (
	KeyError         = "error"
	KeyStatus        = "status"
	KeyAnalysisError = "analysis_error"
	KeyMediaKind     = "media_kind"
	StatusFailed     = "failed"
)

var (
	imageExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true}
	videoExtensions = map[string]bool{".mp4": true, ".mov": true}
)

// KindFromFilename classifies a file by extension. Unsupported extensions
// return MediaKindUnknown.
func KindFromFilename(name string) MediaKind {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case imageExtensions[ext]:
		return MediaKindImage
	case videoExtensions[ext]:
		return MediaKindVideo
	default:
		return MediaKindUnknown
	}
}

// Fields is a bag of JSON compatible values.
type Fields map[string]any

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// PreprocessingRecord is produced once per media file by the preprocessing
// adapter. A record with Err set never enters a batch.
type PreprocessingRecord struct {
	Filename  string
	Kind      MediaKind
	Features  Fields
	LocalPath string
	Err       string
}

// NewFailedRecord builds the record for a file that could not be preprocessed.
func NewFailedRecord(filename string, kind MediaKind, err error) *PreprocessingRecord {
	return &PreprocessingRecord{Filename: filename, Kind: kind, Err: err.Error()}
}

func (r *PreprocessingRecord) Failed() bool {
	return r.Err != ""
}

// FailureRecord is the {error, status:"failed"} marker passed through to the
// final mapping untouched.
func (r *PreprocessingRecord) FailureRecord() AnalysisRecord {
	return AnalysisRecord{KeyError: r.Err, KeyStatus: StatusFailed}
}

// AnalysisRecord is the final per-file object. It carries either structured
// analysis fields or an error marker, never both.
type AnalysisRecord map[string]any

// Merge fuses preprocessing features with model output. Every key of output
// replaces the same key of features; keys only present in features are kept.
// Neither argument is modified.
func Merge(features, output map[string]any) AnalysisRecord {
	out := make(AnalysisRecord, len(features)+len(output))
	for k, v := range features {
		out[k] = v
	}
	for k, v := range output {
		out[k] = v
	}
	return out
}

// MergeFailure fuses features with an analysis_error marker. The marker
// replaces any analysis_error already present in features.
func MergeFailure(features map[string]any, reason string) AnalysisRecord {
	return Merge(features, map[string]any{KeyAnalysisError: reason})
}

// HasError reports whether the record is a preprocessing or analysis failure.
func (r AnalysisRecord) HasError() bool {
	_, e1 := r[KeyError]
	_, e2 := r[KeyAnalysisError]
	return e1 || e2
}

// Number reads a numeric field. JSON numbers, Go ints and floats are accepted.
func (r AnalysisRecord) Number(key string) (float64, bool) {
	return ToFloat(r[key])
}

// String reads a string field, returning "" when absent or not a string.
func (r AnalysisRecord) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Strings reads a list of strings, skipping non-string entries.
func (r AnalysisRecord) Strings(key string) []string {
	switch v := r[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Len returns the length of a list field, or zero.
func (r AnalysisRecord) Len(key string) int {
	switch v := r[key].(type) {
	case []any:
		return len(v)
	case []string:
		return len(v)
	case []map[string]any:
		return len(v)
	}
	return 0
}

// ToFloat converts the numeric representations produced by encoding/json
// and by Go code into a float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// AnalysisMapping is the dataset-level result keyed by filename.
type AnalysisMapping map[string]AnalysisRecord

// Filenames returns the keys in sorted order.
func (m AnalysisMapping) Filenames() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Encode renders the artifact form. encoding/json sorts map keys, so equal
// mappings always encode to equal bytes.
func (m AnalysisMapping) Encode() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// DecodeMapping parses an artifact produced by Encode.
func DecodeMapping(data []byte) (AnalysisMapping, error) {
	out := make(AnalysisMapping)
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// KindOf resolves the media kind of a record: the media_kind feature when
// present, otherwise the filename extension.
func KindOf(filename string, rec AnalysisRecord) MediaKind {
	if k := rec.String(KeyMediaKind); k != "" {
		return MediaKind(k)
	}
	return KindFromFilename(filename)
}
