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

package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

var extensionMIME = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
}

// DetectMIME sniffs the content type from the file header, falling back to
// the extension when the header is not recognized.
func DetectMIME(path string) (string, error) {
	head, err := readHeader(path)
	if err != nil {
		return "", err
	}
	if kind, err := filetype.Match(head); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value, nil
	}
	if m, ok := extensionMIME[strings.ToLower(filepath.Ext(path))]; ok {
		return m, nil
	}
	return "application/octet-stream", nil
}

// IsZip reports whether data starts like a zip archive.
func IsZip(data []byte) bool {
	return filetype.IsArchive(data) && filetype.Is(data, "zip")
}

// Extension returns the canonical extension of the sniffed type, or the
// file's own extension.
func Extension(path string) string {
	if head, err := readHeader(path); err == nil {
		if kind, err := filetype.Match(head); err == nil && kind != filetype.Unknown {
			return "." + kind.Extension
		}
	}
	return strings.ToLower(filepath.Ext(path))
}

func readHeader(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	// filetype only needs the first 261 bytes.
	head := make([]byte, 261)
	n, _ := f.Read(head)
	return head[:n], nil
}
