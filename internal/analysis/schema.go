package analysis

import (
	"encoding/json"
)

// Enumerations offered to the analysis model.
var (
	Themes = []string{
		"Humor", "Emotional", "Inspirational", "Educational", "Dramatic",
		"Nostalgic", "Adventurous", "Romantic", "Celebratory", "Empowering",
	}
	Emotions = []string{
		"Happy", "Sad", "Exciting", "Calming", "Suspenseful", "Heartwarming",
		"Confident", "Playful", "Hopeful", "Nostalgic", "Empowering",
	}
	VisualStyles = []string{
		"Cinematic", "Animated", "Documentary", "Minimalist", "Bold/Colorful",
		"Black & White", "Retro", "High-energy", "Lifestyle", "Glamorous", "Artistic",
	}
	Sentiments = []string{"Positive", "Neutral", "Provocative", "Negative"}

	ProductCategories = []string{
		"Auto", "Tech", "Finance", "Insurance", "Healthcare", "Retail",
		"Food & Beverage", "Household & Personal Care", "Entertainment", "Sports",
		"Travel", "Telecom", "Beauty", "Fashion", "Luxury", "Education", "Other",
	}
	EraDecades = []string{"1970s", "1980s", "1990s", "2000s", "2010s", "2020s"}
)

type schemaProperty struct {
	Type        string   `json:"type"`
	Enum        []string `json:"enum,omitempty"`
	Description string   `json:"description,omitempty"`
}

type objectSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]schemaProperty `json:"properties"`
}

// Schema returns the JSON schema constraining analysis output. The brand
// property is included when includeBrand is set.
func Schema(includeBrand bool) json.RawMessage {
	props := map[string]schemaProperty{
		KeyTheme:           {Type: "string", Enum: Themes},
		KeyEmotion:         {Type: "string", Enum: Emotions},
		KeyVisualStyle:     {Type: "string", Enum: VisualStyles},
		KeySentiment:       {Type: "string", Enum: Sentiments},
		KeyProductCategory: {Type: "string", Enum: ProductCategories},
		KeyEraDecade:       {Type: "string", Enum: EraDecades},
		KeyCelebrities: {
			Type:        "string",
			Description: "Any celebrities featured (empty string if none)",
		},
	}
	if includeBrand {
		props[KeyBrand] = schemaProperty{Type: "string", Description: "The brand or company featured in the ad"}
	}

	raw, err := json.Marshal(objectSchema{Type: "object", Properties: props})
	if err != nil {
		// Static input; cannot fail.
		panic(err)
	}
	return raw
}
