package words

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/alias/go/internal/models"
)

// PostgresSource draws curated words from the words table.
type PostgresSource struct {
	pool *pgxpool.Pool
}

func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

func (s *PostgresSource) Fetch(ctx context.Context, categories []string) (models.Word, error) {
	var w models.Word
	err := s.pool.QueryRow(ctx, `
		SELECT word, category, COALESCE(hint, '')
		FROM words
		WHERE category = ANY($1)
		ORDER BY random()
		LIMIT 1
	`, categories).Scan(&w.Word, &w.Category, &w.Hint)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Word{}, ErrNoWords
	}
	if err != nil {
		return models.Word{}, fmt.Errorf("failed to query random word: %w", err)
	}
	return w, nil
}

// Seed upserts entries into the words table and reports how many were new.
func Seed(ctx context.Context, pool *pgxpool.Pool, entries []models.Word) (inserted, skipped int, err error) {
	for _, w := range entries {
		cmdTag, err := pool.Exec(ctx, `
			INSERT INTO words (word, category, hint)
			VALUES ($1, $2, NULLIF($3, ''))
			ON CONFLICT (word, category) DO NOTHING
		`, w.Word, w.Category, w.Hint)
		if err != nil {
			return inserted, skipped, fmt.Errorf("insert word %q: %w", w.Word, err)
		}
		if cmdTag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}
	return inserted, skipped, nil
}
