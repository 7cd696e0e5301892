package clients

// WordSource names a provider of random words
type WordSource string

const (
	// WordSourceAPI is the public wordgamedb endpoint, used for the API category
	WordSourceAPI WordSource = "api"

	// WordSourcePostgres is the curated words table
	WordSourcePostgres WordSource = "postgres"

	// WordSourceFile is a YAML word list, either bundled or loaded from disk
	WordSourceFile WordSource = "file"
)

// WordSourceConfig describes a word source
type WordSourceConfig struct {
	Source      WordSource `json:"source"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Curated     bool       `json:"curated"` // Serves the A2/B1/B2 tags rather than the API pool
}

// GetWordSources returns all known word sources
func GetWordSources() map[WordSource]WordSourceConfig {
	return map[WordSource]WordSourceConfig{
		WordSourceAPI: {
			Source:      WordSourceAPI,
			Name:        "Word Game DB",
			Description: "Public random word endpoint",
			Curated:     false,
		},
		WordSourcePostgres: {
			Source:      WordSourcePostgres,
			Name:        "Postgres",
			Description: "Curated words table filtered by category",
			Curated:     true,
		},
		WordSourceFile: {
			Source:      WordSourceFile,
			Name:        "Word list",
			Description: "YAML word list filtered by category",
			Curated:     true,
		},
	}
}

// ValidateCuratedSource checks that source exists and can serve curated tags
func ValidateCuratedSource(source WordSource) bool {
	cfg, exists := GetWordSources()[source]
	return exists && cfg.Curated
}
