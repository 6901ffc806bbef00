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

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AnalysisRow is the BigQuery mirror of one AnalysisRecord. The record
// itself is stored as a JSON string so the table schema does not follow the
// model's field set.
type AnalysisRow struct {
	Id         string    `json:"id" bigquery:"id"`
	Dataset    string    `json:"dataset" bigquery:"dataset"`
	Filename   string    `json:"filename" bigquery:"filename"`
	MediaKind  string    `json:"media_kind" bigquery:"media_kind"`
	Failed     bool      `json:"failed" bigquery:"failed"`
	Payload    string    `json:"payload" bigquery:"payload"`
	CreateDate time.Time `json:"create_date" bigquery:"create_date"`
}

// RowID is the deterministic id of a dataset file, so re-mirroring a dataset
// produces the same keys.
func RowID(dataset, filename string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(dataset+"/"+filename)).String()
}

// NewAnalysisRow converts a record into its table row.
func NewAnalysisRow(dataset, filename string, rec AnalysisRecord) (*AnalysisRow, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis for %s: %w", filename, err)
	}
	return &AnalysisRow{
		Id:         RowID(dataset, filename),
		Dataset:    dataset,
		Filename:   filename,
		MediaKind:  string(KindOf(filename, rec)),
		Failed:     rec.HasError(),
		Payload:    string(payload),
		CreateDate: time.Now(),
	}, nil
}

// Record decodes the payload back into an AnalysisRecord.
func (r *AnalysisRow) Record() (AnalysisRecord, error) {
	out := make(AnalysisRecord)
	if err := json.Unmarshal([]byte(r.Payload), &out); err != nil {
		return nil, err
	}
	return out, nil
}
