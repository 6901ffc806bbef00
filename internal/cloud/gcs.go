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
	"path"
	"strings"
)

// GetGCSObjectName is the context key of the *GCSObject that triggered a
// workflow.
func GetGCSObjectName() string {
	return "__GCS__OBJ__"
}

// GCSPubSubNotification is the JSON payload Cloud Storage publishes for an
// object change.
type GCSPubSubNotification struct {
	Kind                    string                 `json:"kind"`
	ID                      string                 `json:"id"`
	SelfLink                string                 `json:"selfLink"`
	Name                    string                 `json:"name"`
	Bucket                  string                 `json:"bucket"`
	Generation              string                 `json:"generation"`
	MetaGeneration          string                 `json:"metageneration"`
	ContentType             string                 `json:"contentType"`
	TimeCreated             string                 `json:"timeCreated"`
	Updated                 string                 `json:"updated"`
	StorageClass            string                 `json:"storageClass"`
	TimeStorageClassUpdated string                 `json:"timeStorageClassUpdated"`
	Size                    string                 `json:"size"`
	MD5Hash                 string                 `json:"md5Hash"`
	MediaLink               string                 `json:"mediaLink"`
	MetaData                map[string]interface{} `json:"metadata"`
	Crc32c                  string                 `json:"crc32c"`
	ETag                    string                 `json:"etag"`
}

// GCSObject identifies an object in Cloud Storage.
type GCSObject struct {
	Bucket   string
	Name     string
	MIMEType string
}

// IsArchive reports whether the object is a zip archive, by name or type.
func (o *GCSObject) IsArchive() bool {
	return strings.EqualFold(path.Ext(o.Name), ".zip") ||
		o.MIMEType == "application/zip" || o.MIMEType == "application/x-zip-compressed"
}

// DatasetName is the object's base name without its extension, so
// "uploads/summer-2024.zip" becomes "summer-2024".
func (o *GCSObject) DatasetName() string {
	base := path.Base(o.Name)
	return strings.TrimSuffix(base, path.Ext(base))
}
