package models

// Category tags accepted by the word sources.
const (
	CategoryA2  = "A2"
	CategoryB1  = "B1"
	CategoryB2  = "B2"
	CategoryAPI = "API" // generic public pool, exclusive of the curated tags
)

// Categories lists every selectable tag in display order.
var Categories = []string{CategoryA2, CategoryB1, CategoryB2, CategoryAPI}

// IsKnownCategory reports whether tag is one of Categories.
func IsKnownCategory(tag string) bool {
	for _, c := range Categories {
		if c == tag {
			return true
		}
	}
	return false
}

// Word is the term being described. It is replaced wholesale on every draw.
type Word struct {
	Word     string `json:"word"`
	Category string `json:"category"`
	Hint     string `json:"hint,omitempty"`
}
