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

package preprocess

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
)

// TextElement is one word found by OCR.
type TextElement struct {
	Text            string
	Confidence      float64
	Left, Top       int
	Width, Height   int
	Area            int
	RelativeSize    float64
	ProminenceScore float64
}

// OCRResult is the text found in an image. Elements are ordered by
// prominence, largest and most confident first.
type OCRResult struct {
	FullText string
	Elements []TextElement
}

// Fields renders the result the way it is stored in the analysis record.
func (r OCRResult) Fields() map[string]any {
	elements := make([]any, 0, len(r.Elements))
	for _, e := range r.Elements {
		elements = append(elements, map[string]any{
			"text":       e.Text,
			"confidence": e.Confidence,
			"bbox": map[string]any{
				"x": e.Left, "y": e.Top, "width": e.Width, "height": e.Height,
			},
			"area":             e.Area,
			"relative_size":    e.RelativeSize,
			"prominence_score": e.ProminenceScore,
		})
	}
	out := map[string]any{
		"full_text":            r.FullText,
		"text_elements":        elements,
		"num_elements":         len(r.Elements),
		"most_prominent_text":  nil,
		"most_prominent_score": 0.0,
	}
	if len(r.Elements) > 0 {
		out["most_prominent_text"] = r.Elements[0].Text
		out["most_prominent_score"] = r.Elements[0].ProminenceScore
	}
	return out
}

// OCR runs the tesseract binary. An empty command disables OCR.
type OCR struct {
	command string
}

func NewOCR(command string) *OCR {
	return &OCR{command: command}
}

func (o *OCR) Enabled() bool {
	return o != nil && o.command != ""
}

// Run reads the text of the image at path. imageArea scales the prominence
// score of each word.
func (o *OCR) Run(ctx context.Context, path string, imageArea int) (OCRResult, error) {
	if !o.Enabled() {
		return OCRResult{}, nil
	}

	text, err := o.exec(ctx, path)
	if err != nil {
		return OCRResult{}, err
	}
	tsv, err := o.exec(ctx, path, "tsv")
	if err != nil {
		return OCRResult{FullText: strings.TrimSpace(text)}, err
	}
	return OCRResult{
		FullText: strings.TrimSpace(text),
		Elements: ParseTSV(tsv, imageArea),
	}, nil
}

func (o *OCR) exec(ctx context.Context, path string, extra ...string) (string, error) {
	args := append([]string{path, "stdout"}, extra...)
	cmd := exec.CommandContext(ctx, o.command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("error running tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// ParseTSV reads tesseract's TSV output (level, page_num, block_num, par_num,
// line_num, word_num, left, top, width, height, conf, text) and returns the
// non-empty words by descending prominence. Prominence is the word's share
// of the image area, times 1000, times its confidence as a fraction.
func ParseTSV(tsv string, imageArea int) []TextElement {
	var out []TextElement
	for i, line := range strings.Split(tsv, "\n") {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 12 {
			continue
		}
		text := strings.TrimSpace(strings.Join(cols[11:], "\t"))
		if text == "" {
			continue
		}
		left, _ := strconv.Atoi(cols[6])
		top, _ := strconv.Atoi(cols[7])
		width, _ := strconv.Atoi(cols[8])
		height, _ := strconv.Atoi(cols[9])
		conf, _ := strconv.ParseFloat(cols[10], 64)

		area := width * height
		rel := 0.0
		if imageArea > 0 {
			rel = float64(area) / float64(imageArea)
		}
		out = append(out, TextElement{
			Text:            text,
			Confidence:      conf,
			Left:            left,
			Top:             top,
			Width:           width,
			Height:          height,
			Area:            area,
			RelativeSize:    rel,
			ProminenceScore: rel * 1000 * (conf / 100),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ProminenceScore > out[j].ProminenceScore
	})
	return out
}
