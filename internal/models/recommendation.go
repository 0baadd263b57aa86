package models

// RecommendationSection - группа рекомендаций по безопасности для одного этапа отключения
type RecommendationSection struct {
	Title string   `json:"title"`
	Items []string `json:"items"`
}

var recommendations = []RecommendationSection{
	{
		Title: "Before the storm",
		Items: []string{
			"Keep a flashlight and spare batteries somewhere easy to reach",
			"Have a battery-powered portable radio",
			"Keep your phone charged",
			"Store a supply of drinking water",
			"Keep non-perishable food at home",
		},
	},
	{
		Title: "During the outage",
		Items: []string{
			"Unplug electrical equipment to avoid damage from power surges",
			"Keep the refrigerator closed to preserve food",
			"Use flashlights instead of candles to avoid accidents",
			"Stay informed through the radio",
			"Avoid opening doors and windows unnecessarily",
		},
	},
	{
		Title: "After restoration",
		Items: []string{
			"Check that all equipment is working correctly",
			"Throw away food that may have spoiled",
			"Check the electrical installation for damage",
			"Record the event for documentation purposes",
			"Keep an emergency kit up to date",
		},
	},
}

// Recommendations возвращает копию статического списка рекомендаций
func Recommendations() []RecommendationSection {
	out := make([]RecommendationSection, len(recommendations))
	for i, section := range recommendations {
		out[i] = RecommendationSection{
			Title: section.Title,
			Items: append([]string(nil), section.Items...),
		}
	}
	return out
}
