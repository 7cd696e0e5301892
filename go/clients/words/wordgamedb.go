package words

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mcdev12/alias/go/clients"
	"github.com/mcdev12/alias/go/internal/models"
)

// WordGameDBClient draws from the public word game database. It ignores the
// category filter; the whole pool is the API category.
type WordGameDBClient struct {
	*clients.BaseClient
}

func NewWordGameDBClient(baseURL string) *WordGameDBClient {
	if baseURL == "" {
		baseURL = WordGameDBURL
	}
	return &WordGameDBClient{
		BaseClient: clients.NewBaseClient(strings.TrimRight(baseURL, "/")),
	}
}

type randomWordResponse struct {
	Word         string `json:"word"`
	Category     string `json:"category"`
	Hint         string `json:"hint"`
	NumLetters   int    `json:"numLetters"`
	NumSyllables int    `json:"numSyllables"`
}

func (c *WordGameDBClient) Fetch(ctx context.Context, _ []string) (models.Word, error) {
	body, err := c.Get(ctx, randomWordPath, nil)
	if err != nil {
		return models.Word{}, fmt.Errorf("failed to get random word: %w", err)
	}

	var response randomWordResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return models.Word{}, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	if response.Word == "" {
		return models.Word{}, ErrNoWords
	}

	category := response.Category
	if category == "" {
		category = models.CategoryAPI
	}
	return models.Word{Word: response.Word, Category: category, Hint: response.Hint}, nil
}
