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

package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
)

// ErrUnparseableResponse is the batch-level failure of Reconcile.
var ErrUnparseableResponse = errors.New("unparseable model response")

// Keys the model may not set; they belong to the error taxonomy.
var reservedKeys = []string{model.KeyError, model.KeyStatus, model.KeyAnalysisError}

// ParseStructured decodes a model response that is meant to be JSON but may
// arrive wrapped in markdown code fences or surrounded by prose.
// The raw text is tried before any unwrapping, so string values that contain
// backticks survive.
func ParseStructured(text string) (any, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(text, "\ufeff"))
	stripped := StripWrappers(text)

	var candidates []string
	for _, c := range []string{raw, stripped, outermostJSON(raw), outermostJSON(stripped)} {
		if c != "" && !slices.Contains(candidates, c) {
			candidates = append(candidates, c)
		}
	}

	var lastErr error
	for _, c := range candidates {
		var out any
		if err := json.Unmarshal([]byte(c), &out); err != nil {
			lastErr = err
			continue
		}
		return out, nil
	}
	if lastErr == nil {
		lastErr = errors.New("empty response")
	}
	return nil, fmt.Errorf("%w: %v", ErrUnparseableResponse, lastErr)
}

// StripWrappers removes a byte order mark, surrounding whitespace and a
// markdown code fence (```json ... ``` or ``` ... ```).
func StripWrappers(text string) string {
	s := strings.TrimSpace(strings.TrimPrefix(text, "\ufeff"))

	if start := strings.Index(s, "```"); start >= 0 {
		body := s[start+3:]
		// Drop the info string of the fence, e.g. "json".
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			if info := strings.TrimSpace(body[:nl]); !strings.ContainsAny(info, "{[") {
				body = body[nl+1:]
			}
		} else {
			body = strings.TrimPrefix(body, "json")
		}
		if end := strings.LastIndex(body, "```"); end >= 0 {
			body = body[:end]
		}
		s = strings.TrimSpace(body)
	}
	return s
}

// outermostJSON returns the span between the first opening brace or bracket
// and the last matching closer, or "".
func outermostJSON(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closer := "}"
	if s[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(s, closer)
	if end <= start {
		return ""
	}
	return s[start : end+1]
}

// Reconcile maps an index-keyed response back onto the batch filenames.
// Key "i" belongs to filenames[i]. Indices that are missing, out of range or
// not objects are left out of the result; the caller marks them. A response
// that cannot be parsed at all returns an empty mapping and an error.
//
// A top-level JSON array is accepted as well, position i mapping to
// filenames[i].
func Reconcile(text string, filenames []string) (map[string]model.Fields, error) {
	out := make(map[string]model.Fields, len(filenames))

	parsed, err := ParseStructured(text)
	if err != nil {
		return out, err
	}

	var lookup func(i int) (any, bool)
	switch v := parsed.(type) {
	case map[string]any:
		lookup = func(i int) (any, bool) {
			item, ok := v[strconv.Itoa(i)]
			return item, ok
		}
	case []any:
		lookup = func(i int) (any, bool) {
			if i < len(v) {
				return v[i], true
			}
			return nil, false
		}
	default:
		return out, fmt.Errorf("%w: expected an object keyed by index, got %T", ErrUnparseableResponse, parsed)
	}

	for i, filename := range filenames {
		item, ok := lookup(i)
		if !ok {
			continue
		}
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		for _, k := range reservedKeys {
			delete(fields, k)
		}
		out[filename] = fields
	}
	return out, nil
}
