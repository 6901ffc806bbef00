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
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
)

// DefaultBatchPromptTemplate is rendered once per batch. Attachments are sent
// in item order, so the index is the only key the model needs.
const DefaultBatchPromptTemplate = `Analyze these {{ .Count }} {{ .Noun }} advertisements for targeting and marketing effectiveness.
The attached media files are in the same order as the items below: attachment 0 is item 0, attachment 1 is item 1, and so on.
{{ range .Items }}
Item {{ .Index }}:
{{- range .Details }}
- {{ . }}
{{- end }}
{{ end }}
For EACH item, return one JSON object keyed by the item index ("0" to "{{ .Last }}") in the following format:
{{ .Format }}

ANALYSIS CRITERIA:
{{- range .Criteria }}
- {{ . }}
{{- end }}

Analyze each item independently and objectively. Use only the item indexes as keys.`

// Prompt is a rendered batch request. Filenames[i] is the file behind index
// i and behind Attachments[i]; it is never sent to the model.
type Prompt struct {
	Kind        model.MediaKind
	Text        string
	Attachments []*model.Attachment
	Filenames   []string
}

type promptItem struct {
	Index   int
	Details []string
}

type promptData struct {
	Count    int
	Last     int
	Noun     string
	Items    []promptItem
	Format   string
	Criteria []string
}

// PromptBuilder renders batches into model requests.
type PromptBuilder struct {
	templates    map[model.MediaKind]*template.Template
	schemas      map[model.MediaKind][]model.SchemaField
	maxTextChars int
}

// PromptOption customizes a PromptBuilder.
type PromptOption func(*PromptBuilder) error

// WithTemplate replaces the prompt template of one media kind.
func WithTemplate(kind model.MediaKind, text string) PromptOption {
	return func(b *PromptBuilder) error {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		t, err := template.New(string(kind)).Parse(text)
		if err != nil {
			return fmt.Errorf("invalid %s prompt template: %w", kind, err)
		}
		b.templates[kind] = t
		return nil
	}
}

// WithSchema replaces the requested output fields of one media kind.
func WithSchema(kind model.MediaKind, fields []model.SchemaField) PromptOption {
	return func(b *PromptBuilder) error {
		if len(fields) > 0 {
			b.schemas[kind] = fields
		}
		return nil
	}
}

// WithMaxTextChars caps the OCR text and transcript length quoted per item.
func WithMaxTextChars(n int) PromptOption {
	return func(b *PromptBuilder) error {
		if n > 0 {
			b.maxTextChars = n
		}
		return nil
	}
}

func NewPromptBuilder(opts ...PromptOption) (*PromptBuilder, error) {
	def := template.Must(template.New("batch").Parse(DefaultBatchPromptTemplate))
	b := &PromptBuilder{
		templates: map[model.MediaKind]*template.Template{
			model.MediaKindImage: def,
			model.MediaKindVideo: def,
		},
		schemas: map[model.MediaKind][]model.SchemaField{
			model.MediaKindImage: model.ImageAnalysisSchema(),
			model.MediaKindVideo: model.VideoAnalysisSchema(),
		},
		maxTextChars: 1000,
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Build renders a batch. attachments must be in batch order and have the same
// length as the batch.
func (b *PromptBuilder) Build(batch *model.Batch, attachments []*model.Attachment) (*Prompt, error) {
	if batch.Size() == 0 {
		return nil, fmt.Errorf("batch %d is empty", batch.Index)
	}
	if len(attachments) != batch.Size() {
		return nil, fmt.Errorf("batch %d has %d files but %d attachments", batch.Index, batch.Size(), len(attachments))
	}
	tmpl, ok := b.templates[batch.Kind]
	if !ok {
		return nil, fmt.Errorf("no prompt template for media kind %q", batch.Kind)
	}
	schema := b.schemas[batch.Kind]

	data := promptData{
		Count:    batch.Size(),
		Last:     batch.Size() - 1,
		Noun:     string(batch.Kind),
		Items:    make([]promptItem, 0, batch.Size()),
		Format:   formatSkeleton(schema, batch.Size()),
		Criteria: criteria(schema),
	}
	for i, rec := range batch.Records {
		data.Items = append(data.Items, promptItem{Index: i, Details: b.itemDetails(rec)})
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render prompt for batch %d: %w", batch.Index, err)
	}

	return &Prompt{
		Kind:        batch.Kind,
		Text:        buf.String(),
		Attachments: attachments,
		Filenames:   append([]string(nil), batch.Filenames...),
	}, nil
}

// itemDetails lists the lightweight metadata quoted for one item. The heavy
// feature payload (OCR boxes, word timings) is never included.
func (b *PromptBuilder) itemDetails(rec *model.PreprocessingRecord) []string {
	f := model.AnalysisRecord(rec.Features)
	resolution := f.String("resolution")
	if resolution == "" {
		resolution = "Unknown"
	}

	if rec.Kind == model.MediaKindVideo {
		duration := "Unknown"
		if d, ok := f.Number("length"); ok {
			duration = strconv.FormatFloat(d, 'f', -1, 64) + " seconds"
		}
		transcript := b.truncate(f.String("transcript"))
		if transcript == "" {
			transcript = "No transcript available"
		}
		return []string{
			"Duration: " + duration,
			"Resolution: " + resolution,
			fmt.Sprintf("Transcript: %q", transcript),
		}
	}

	text := b.truncate(f.String("text"))
	if text == "" {
		text = "No text extracted"
	}
	colors := "Unknown"
	if c := f.Strings("dominant_colors"); len(c) > 0 {
		colors = strings.Join(c[:min(3, len(c))], ", ")
	}
	return []string{
		"Resolution: " + resolution,
		fmt.Sprintf("Extracted Text: %q", text),
		"Dominant Colors: " + colors,
	}
}

func (b *PromptBuilder) truncate(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= b.maxTextChars {
		return s
	}
	return string(r[:b.maxTextChars]) + "..."
}

// formatSkeleton writes the output format keyed by every index of the batch.
// Index 0 spells out each field; the rest refer back to it.
func formatSkeleton(schema []model.SchemaField, n int) string {
	var sb strings.Builder
	sb.WriteString("{\n")
	sb.WriteString(`    "0": {` + "\n")
	for i, f := range schema {
		sb.WriteString(fmt.Sprintf("        %q: %s", f.Name, f.Hint))
		if i < len(schema)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("    }")
	for i := 1; i < n; i++ {
		sb.WriteString(fmt.Sprintf(",\n    %q: { ...same fields as \"0\"... }", strconv.Itoa(i)))
	}
	sb.WriteString("\n}")
	return sb.String()
}

func criteria(schema []model.SchemaField) []string {
	out := make([]string, 0, len(schema))
	for _, f := range schema {
		if f.Criteria != "" {
			out = append(out, f.Name+": "+f.Criteria)
		}
	}
	return out
}
