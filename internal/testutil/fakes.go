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

package test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
)

// GenerateFunc answers one model call.
type GenerateFunc func(ctx context.Context, call int, prompt string, attachments []*model.Attachment) (string, error)

// StubGenerator is a ContentGenerator driven by a function. It records the
// number of calls, the prompts it saw and the peak number of calls in
// flight.
type StubGenerator struct {
	Fn GenerateFunc

	calls    atomic.Int64
	inFlight atomic.Int64
	peak     atomic.Int64

	mu      sync.Mutex
	prompts []string
}

func NewStubGenerator(fn GenerateFunc) *StubGenerator {
	return &StubGenerator{Fn: fn}
}

func (s *StubGenerator) GenerateContent(ctx context.Context, prompt string, attachments []*model.Attachment) (string, error) {
	call := int(s.calls.Add(1))
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}

	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()

	return s.Fn(ctx, call, prompt, attachments)
}

// Calls is the number of GenerateContent invocations so far.
func (s *StubGenerator) Calls() int { return int(s.calls.Load()) }

// PeakInFlight is the highest number of concurrent calls observed.
func (s *StubGenerator) PeakInFlight() int { return int(s.peak.Load()) }

func (s *StubGenerator) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// IndexedResponse renders a response keyed "0".."n-1" with the fields of
// item i produced by fn(i).
func IndexedResponse(n int, fn func(i int) map[string]any) string {
	out := make(map[string]any, n)
	for i := 0; i < n; i++ {
		out[strconv.Itoa(i)] = fn(i)
	}
	b, _ := json.Marshal(out)
	return string(b)
}

// NewEchoGenerator answers every call with the example analysis of the
// batch's media kind for each attachment, keyed by index.
func NewEchoGenerator() *StubGenerator {
	return NewStubGenerator(func(_ context.Context, _ int, _ string, attachments []*model.Attachment) (string, error) {
		return IndexedResponse(len(attachments), func(i int) map[string]any {
			fields := model.ExampleAnalysis(model.KindFromFilename(attachments[i].Filename))
			fields["source_attachment"] = attachments[i].Filename
			return fields
		}), nil
	})
}

// StubCompressor returns the original bytes as the attachment. Filenames in
// Fail produce an error. When TempDir is set, each attachment is backed by a
// transient file there so cleanup can be observed.
type StubCompressor struct {
	Fail    map[string]bool
	TempDir string

	mu   sync.Mutex
	temp []string
}

func (c *StubCompressor) Compress(_ context.Context, rec *model.PreprocessingRecord) (*model.Attachment, error) {
	if c.Fail[rec.Filename] {
		return nil, fmt.Errorf("cannot compress %s", rec.Filename)
	}
	att := &model.Attachment{Filename: rec.Filename, MIMEType: "application/octet-stream", Data: []byte(rec.Filename)}
	if rec.LocalPath != "" {
		if data, err := os.ReadFile(rec.LocalPath); err == nil {
			att.Data = data
		}
	}
	if c.TempDir != "" {
		f, err := os.CreateTemp(c.TempDir, "compressed-*")
		if err != nil {
			return nil, err
		}
		_, _ = f.Write(att.Data)
		_ = f.Close()
		att.TempPath = f.Name()
		c.mu.Lock()
		c.temp = append(c.temp, f.Name())
		c.mu.Unlock()
	}
	return att, nil
}

// TempFiles lists every transient file created so far.
func (c *StubCompressor) TempFiles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.temp...)
}

// Records builds successful preprocessing records for the given filenames,
// inferring the kind from the extension.
func Records(filenames ...string) []*model.PreprocessingRecord {
	out := make([]*model.PreprocessingRecord, 0, len(filenames))
	for _, f := range filenames {
		out = append(out, &model.PreprocessingRecord{
			Filename: f,
			Kind:     model.KindFromFilename(f),
			Features: model.Fields{"resolution": "100x100"},
		})
	}
	return out
}

// StubEmbedder returns a fixed vector per text. Unknown texts embed to the
// zero vector, whose similarity to anything is 0.
type StubEmbedder struct {
	Vectors map[string][]float32
	Dim     int
	Err     error

	calls atomic.Int64
}

func (e *StubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := e.Vectors[t]; ok {
			out[i] = v
			continue
		}
		out[i] = make([]float32, e.Dim)
	}
	return out, nil
}

func (e *StubEmbedder) Dimension() int { return e.Dim }

// Calls is the number of Embed invocations so far.
func (e *StubEmbedder) Calls() int { return int(e.calls.Load()) }
