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

package services

// BigQuery statements against the analysis mirror table. The table name is
// injected with fmt.Sprintf; values are always bound as named parameters.
const (
	// QryListAnalysis returns every row of a dataset, most recent first, so a
	// re-mirrored file's latest row is seen first.
	QryListAnalysis = "SELECT * FROM `%s` WHERE dataset = @dataset ORDER BY filename, create_date DESC"

	// QryGetAnalysis returns the latest row of one file.
	QryGetAnalysis = "SELECT * FROM `%s` WHERE dataset = @dataset AND filename = @filename ORDER BY create_date DESC LIMIT 1"

	// QryFailedCount counts failed files per dataset.
	QryFailedCount = "SELECT dataset, COUNTIF(failed) AS failed, COUNT(*) AS total FROM `%s` GROUP BY dataset ORDER BY dataset"
)
