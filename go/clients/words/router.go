package words

import (
	"context"
	"slices"

	"github.com/mcdev12/alias/go/internal/models"
)

// Source draws one random word for a category selection.
type Source interface {
	Fetch(ctx context.Context, categories []string) (models.Word, error)
}

// Router sends API selections to the public endpoint and everything else to
// the curated source.
type Router struct {
	api     Source
	curated Source
}

func NewRouter(api, curated Source) *Router {
	return &Router{api: api, curated: curated}
}

func (r *Router) Fetch(ctx context.Context, categories []string) (models.Word, error) {
	if slices.Contains(categories, models.CategoryAPI) {
		return r.api.Fetch(ctx, categories)
	}
	return r.curated.Fetch(ctx, categories)
}
