package words

import (
	"context"
	_ "embed"
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"sync"

	"github.com/mcdev12/alias/go/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed words.yaml
var bundled []byte

type wordList struct {
	Words []struct {
		Word     string `yaml:"word"`
		Category string `yaml:"category"`
		Hint     string `yaml:"hint"`
	} `yaml:"words"`
}

// FileSource draws curated words from an in-memory list loaded from YAML.
type FileSource struct {
	words []models.Word

	mu  sync.Mutex
	rng *rand.Rand
}

// LoadFile reads a word list from path. An empty path loads the bundled list.
func LoadFile(path string) (*FileSource, error) {
	data := bundled
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read word list: %w", err)
		}
	}
	return ParseList(data)
}

// ParseList builds a FileSource from YAML.
func ParseList(data []byte) (*FileSource, error) {
	var list wordList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse word list: %w", err)
	}

	words := make([]models.Word, 0, len(list.Words))
	for _, w := range list.Words {
		if w.Word == "" || !models.IsKnownCategory(w.Category) || w.Category == models.CategoryAPI {
			continue
		}
		words = append(words, models.Word{Word: w.Word, Category: w.Category, Hint: w.Hint})
	}
	return NewFileSource(words, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))), nil
}

// NewFileSource wraps words with rng as the random source.
func NewFileSource(words []models.Word, rng *rand.Rand) *FileSource {
	return &FileSource{words: words, rng: rng}
}

// Words returns every entry in the list.
func (s *FileSource) Words() []models.Word {
	return slices.Clone(s.words)
}

func (s *FileSource) Fetch(_ context.Context, categories []string) (models.Word, error) {
	var pool []models.Word
	for _, w := range s.words {
		if slices.Contains(categories, w.Category) {
			pool = append(pool, w)
		}
	}
	if len(pool) == 0 {
		return models.Word{}, ErrNoWords
	}

	s.mu.Lock()
	i := s.rng.IntN(len(pool))
	s.mu.Unlock()
	return pool[i], nil
}
