package words

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/alias/go/clients"
	"github.com/mcdev12/alias/go/internal/models"
)

func TestWordGameDBClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/words/random" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"word":"Giraffe","category":"animal","hint":"long neck","numLetters":7,"numSyllables":2}`))
	}))
	defer srv.Close()

	got, err := NewWordGameDBClient(srv.URL).Fetch(context.Background(), []string{"API"})
	if err != nil {
		t.Fatal(err)
	}
	want := models.Word{Word: "Giraffe", Category: "animal", Hint: "long neck"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Fetch (-want +got):\n%s", diff)
	}
}

func TestWordGameDBClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "server error", status: http.StatusBadGateway, body: "bad gateway"},
		{name: "empty word", status: http.StatusOK, body: `{"word":""}`, wantErr: ErrNoWords},
		{name: "not json", status: http.StatusOK, body: `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewWordGameDBClient(srv.URL).Fetch(context.Background(), nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			var statusErr *clients.StatusError
			if tt.status >= 300 && (!errors.As(err, &statusErr) || statusErr.Code != tt.status) {
				t.Errorf("err = %v, want status %d", err, tt.status)
			}
		})
	}
}

func TestFileSourceFiltersByCategory(t *testing.T) {
	src, err := ParseList([]byte(`
words:
  - {word: apple, category: A2}
  - {word: journey, category: B1, hint: travelling}
  - {word: broken, category: C9}
  - {word: remote, category: API}
`))
	if err != nil {
		t.Fatal(err)
	}
	if n := len(src.Words()); n != 2 {
		t.Fatalf("loaded %d words, want 2", n)
	}

	for i := 0; i < 20; i++ {
		w, err := src.Fetch(context.Background(), []string{"B1"})
		if err != nil {
			t.Fatal(err)
		}
		if w.Word != "journey" || w.Hint != "travelling" {
			t.Fatalf("got %+v", w)
		}
	}
	if _, err := src.Fetch(context.Background(), []string{"B2"}); !errors.Is(err, ErrNoWords) {
		t.Errorf("err = %v, want ErrNoWords", err)
	}
}

func TestFileSourceIsDeterministicWithSeed(t *testing.T) {
	words := []models.Word{{Word: "a", Category: "A2"}, {Word: "b", Category: "A2"}, {Word: "c", Category: "A2"}}
	draw := func() []string {
		src := NewFileSource(words, rand.New(rand.NewPCG(1, 2)))
		var out []string
		for i := 0; i < 5; i++ {
			w, _ := src.Fetch(context.Background(), []string{"A2"})
			out = append(out, w.Word)
		}
		return out
	}
	if diff := cmp.Diff(draw(), draw()); diff != "" {
		t.Errorf("same seed drew different words (-first +second):\n%s", diff)
	}
}

func TestBundledListCoversCuratedCategories(t *testing.T) {
	src, err := LoadFile("")
	if err != nil {
		t.Fatal(err)
	}
	for _, cat := range []string{models.CategoryA2, models.CategoryB1, models.CategoryB2} {
		if _, err := src.Fetch(context.Background(), []string{cat}); err != nil {
			t.Errorf("no bundled words for %s: %v", cat, err)
		}
	}
}

type fixedSource struct {
	word  string
	calls int
}

func (f *fixedSource) Fetch(context.Context, []string) (models.Word, error) {
	f.calls++
	return models.Word{Word: f.word}, nil
}

func TestRouter(t *testing.T) {
	api := &fixedSource{word: "from-api"}
	curated := &fixedSource{word: "from-list"}
	r := NewRouter(api, curated)

	if w, _ := r.Fetch(context.Background(), []string{"API"}); w.Word != "from-api" {
		t.Errorf("API selection went to %q", w.Word)
	}
	if w, _ := r.Fetch(context.Background(), []string{"A2", "B1"}); w.Word != "from-list" {
		t.Errorf("curated selection went to %q", w.Word)
	}
	if api.calls != 1 || curated.calls != 1 {
		t.Errorf("calls api=%d curated=%d", api.calls, curated.calls)
	}
}

// TestPostgresSource needs a migrated scratch database in ALIAS_TEST_DATABASE_URL.
func TestPostgresSource(t *testing.T) {
	dsn := os.Getenv("ALIAS_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("ALIAS_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	if _, _, err := Seed(ctx, pool, []models.Word{{Word: "zzz-test-word", Category: "B2", Hint: "test"}}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pool.Exec(ctx, `DELETE FROM words WHERE word = 'zzz-test-word'`) })

	w, err := NewPostgresSource(pool).Fetch(ctx, []string{"B2"})
	if err != nil {
		t.Fatal(err)
	}
	if w.Category != "B2" {
		t.Errorf("category = %q, want B2", w.Category)
	}
}
