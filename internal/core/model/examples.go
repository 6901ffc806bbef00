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

// SchemaField is one requested output field. Hint is the value shape shown in
// the output-format skeleton; Criteria explains how the model should judge it.
type SchemaField struct {
	Name     string `toml:"name"`
	Hint     string `toml:"hint"`
	Criteria string `toml:"criteria"`
}

var targetingFields = []SchemaField{
	{Name: "targeting_type", Hint: `"first_impression" or "retargeting"`,
		Criteria: `"first_impression" if introducing brand/product, "retargeting" if assumes familiarity`},
	{Name: "comprehension_rating", Hint: "1-5",
		Criteria: "1=requires the viewer to really think to understand the message, 5=crystal clear message"},
	{Name: "target_age_range", Hint: `"18-25", "25-35", "35-50", or "50+"`,
		Criteria: "infer from language, references, visual style"},
	{Name: "target_income_level", Hint: `"low", "middle", "high", or "mixed"`,
		Criteria: "infer from product type, pricing cues, lifestyle depicted"},
	{Name: "target_geographic_area", Hint: `"specific geographic type, such as 'X county, East Coast US'"`,
		Criteria: "infer from product, explicit mentions, setting, cultural references"},
	{Name: "target_interests", Hint: `["up to 3 interests"]`,
		Criteria: "what hobbies/interests would this customer have"},
}

var sharedFields = []SchemaField{
	{Name: "conversion_focused", Hint: "true/false",
		Criteria: "true if there is a clear IMMEDIATE call-to-action (download, buy now), false if just building awareness"},
	{Name: "product_visibility_score", Hint: `"low", "medium", or "high"`},
	{Name: "age_demographic", Hint: `"child", "teenage", "adult", or "senior"`},
	{Name: "gender_demographic", Hint: `"male", "female", "other", or "N/A"`},
	{Name: "purchase_urgency", Hint: `"low", "medium", or "high"`},
	{Name: "activity_level", Hint: `"sedentary" or "dynamic"`},
	{Name: "message_types", Hint: `["humor", "storytelling", "demonstration", "emotional_appeal", "problem_solution"]`,
		Criteria: "every message strategy the ad uses, empty list when none apply"},
	{Name: "scene_setting", Hint: `"short scene/location description"`},
}

var emotionalIndexFields = []SchemaField{
	{Name: "fear_index", Hint: "0.0-1.0",
		Criteria: "each *_index is how strongly the ad evokes that emotion, 0.0=absent, 1.0=dominant"},
	{Name: "comfort_index", Hint: "0.0-1.0"},
	{Name: "humor_index", Hint: "0.0-1.0"},
	{Name: "success_index", Hint: "0.0-1.0"},
	{Name: "love_index", Hint: "0.0-1.0"},
	{Name: "family_index", Hint: "0.0-1.0"},
	{Name: "adventure_index", Hint: "0.0-1.0"},
	{Name: "nostalgia_index", Hint: "0.0-1.0"},
	{Name: "health_index", Hint: "0.0-1.0"},
	{Name: "luxury_index", Hint: "0.0-1.0"},
}

// ImageAnalysisSchema is the default output schema for image ads.
func ImageAnalysisSchema() []SchemaField {
	out := append([]SchemaField{}, targetingFields...)
	out = append(out, SchemaField{Name: "visual_appeal_rating", Hint: "1-5",
		Criteria: "1=unappealing, 5=extremely eye-catching"})
	out = append(out, sharedFields...)
	out = append(out, SchemaField{Name: "color_palette", Hint: `["up to 5 hex colors"]`})
	return append(out, emotionalIndexFields...)
}

// VideoAnalysisSchema is the default output schema for video ads.
func VideoAnalysisSchema() []SchemaField {
	out := append([]SchemaField{}, targetingFields...)
	out = append(out, SchemaField{Name: "hook_rating", Hint: "1-5",
		Criteria: "1=non-engaging start, 5=EXTREMELY gripping first few seconds; the AVERAGE video is a 2.5"})
	out = append(out, sharedFields...)
	out = append(out, SchemaField{Name: "music_intensity", Hint: `"low", "medium", or "high"`})
	return append(out, emotionalIndexFields...)
}

// ExampleAnalysis returns a filled-in response for one item, used by tests
// and by stub generators to echo a valid answer.
func ExampleAnalysis(kind MediaKind) Fields {
	out := Fields{
		"targeting_type":           "first_impression",
		"comprehension_rating":     4.0,
		"target_age_range":         "25-35",
		"target_income_level":      "high",
		"target_geographic_area":   "urban, West Coast US",
		"target_interests":         []any{"travel", "fashion", "fine dining"},
		"conversion_focused":       false,
		"product_visibility_score": "high",
		"age_demographic":          "adult",
		"gender_demographic":       "female",
		"purchase_urgency":         "low",
		"activity_level":           "sedentary",
		"message_types":            []any{"storytelling"},
		"scene_setting":            "rooftop terrace at sunset",
		"fear_index":               0.0,
		"comfort_index":            0.3,
		"humor_index":              0.0,
		"success_index":            0.7,
		"love_index":               0.2,
		"family_index":             0.0,
		"adventure_index":          0.1,
		"nostalgia_index":          0.0,
		"health_index":             0.0,
		"luxury_index":             0.9,
	}
	if kind == MediaKindVideo {
		out["hook_rating"] = 3.0
		out["music_intensity"] = "medium"
	} else {
		out["visual_appeal_rating"] = 5.0
		out["color_palette"] = []any{"#1a1a1a", "#c9a14a", "#ffffff"}
	}
	return out
}
