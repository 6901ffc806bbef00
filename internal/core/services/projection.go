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

import (
	"fmt"
	"strings"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
)

type indexPhrases struct {
	key    string
	strong string
	weak   string
}

// Order matters: phrases are emitted in this order.
var emotionalIndices = []indexPhrases{
	{"luxury_index",
		"luxury luxury luxury expensive expensive premium high-end wealthy exclusive elite sophisticated upscale",
		"somewhat luxury expensive premium"},
	{"success_index",
		"successful successful achievement wealthy accomplished winning triumph victory elite",
		"somewhat successful achievement"},
	{"family_index",
		"family family children parents togetherness belonging home loving caring",
		"somewhat family children parents"},
	{"adventure_index",
		"adventure adventure travel freedom exploration outdoor exciting thrilling journey",
		"somewhat adventure travel outdoor"},
	{"health_index",
		"healthy healthy fitness exercise wellness active energetic vibrant strong",
		"somewhat healthy fitness exercise"},
	{"comfort_index",
		"comfortable comfortable cozy relaxing peaceful homey warm soft gentle",
		"somewhat comfortable cozy relaxing"},
	{"humor_index",
		"funny funny comedy humorous entertaining laughs hilarious amusing playful",
		"somewhat funny comedy humorous"},
	{"love_index",
		"romantic romantic love dating relationships intimate affectionate tender",
		"somewhat romantic love relationships"},
	{"fear_index",
		"security security safety protection warning danger threatening serious urgent",
		"somewhat security safety protection"},
	{"nostalgia_index",
		"nostalgic nostalgic vintage retro classic memories sentimental timeless traditional",
		"somewhat nostalgic vintage retro"},
}

const (
	strongThreshold = 0.6
	weakThreshold   = 0.2
)

var messageTypePhrases = map[string]string{
	"humor":            "funny comedy humorous entertaining",
	"storytelling":     "narrative story emotional journey",
	"demonstration":    "showing product demo how-to practical",
	"emotional_appeal": "emotional touching heartfelt moving",
	"problem_solution": "solution problem-solving helpful practical",
}

// ProjectText renders the searchable text of an analysis record. The output
// is a pure function of the record.
func ProjectText(rec model.AnalysisRecord) string {
	parts := make([]string, 0, 24)

	switch rec.String("activity_level") {
	case "dynamic":
		parts = append(parts, "fast-paced dynamic energetic active movement quick")
	case "sedentary":
		parts = append(parts, "slow-paced calm static peaceful relaxed")
	}

	switch rec.String("music_intensity") {
	case "high":
		parts = append(parts, "loud energetic upbeat fast music intense")
	case "medium":
		parts = append(parts, "moderate tempo balanced music")
	default:
		parts = append(parts, "soft calm quiet ambient peaceful music")
	}

	switch cuts := rec.Len("scene_cuts"); {
	case cuts > 10:
		parts = append(parts, "fast-paced quick cuts rapid editing dynamic")
	case cuts > 5:
		parts = append(parts, "moderate pacing steady editing")
	default:
		parts = append(parts, "slow-paced few cuts long takes calm")
	}

	for _, idx := range emotionalIndices {
		v, _ := rec.Number(idx.key)
		switch {
		case v >= strongThreshold:
			parts = append(parts, idx.strong)
		case v >= weakThreshold:
			parts = append(parts, idx.weak)
		}
	}

	if age := demographic(rec, "age_demographic"); age != "" {
		parts = append(parts, fmt.Sprintf("%s demographic %s audience", age, age))
	}
	if gender := demographic(rec, "gender_demographic"); gender != "" {
		parts = append(parts, fmt.Sprintf("%s audience %s demographic", gender, gender))
	}

	switch rec.String("product_visibility_score") {
	case "high":
		parts = append(parts, "product-focused prominent product visible showcasing")
	case "medium":
		parts = append(parts, "moderate product presence")
	case "low":
		parts = append(parts, "brand-awareness subtle product")
	}

	switch rec.String("purchase_urgency") {
	case "high":
		parts = append(parts, "urgent immediate action buy now")
	case "medium":
		parts = append(parts, "moderate call-to-action")
	case "low":
		parts = append(parts, "brand awareness informational")
	}

	for _, t := range rec.Strings("message_types") {
		if p, ok := messageTypePhrases[t]; ok {
			parts = append(parts, p)
		}
	}

	return strings.Join(parts, " ")
}

// demographic returns the audience label at key, or "" when it is absent,
// not a string, empty or "N/A".
func demographic(rec model.AnalysisRecord, key string) string {
	s, ok := rec[key].(string)
	if !ok || s == "" || s == "N/A" {
		return ""
	}
	return s
}

// Preview is the first 200 characters of the projected text followed by
// "...".
func Preview(text string) string {
	r := []rune(text)
	if len(r) > 200 {
		r = r[:200]
	}
	return string(r) + "..."
}
