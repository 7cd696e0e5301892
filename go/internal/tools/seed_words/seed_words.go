package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/mcdev12/alias/go/clients/words"
	"github.com/mcdev12/alias/go/internal/dbconfig"
)

// Loads a YAML word list (the bundled one when no path is given) into the
// curated words table.
func main() {
	_ = godotenv.Load()

	path := ""
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the word list
	list, err := words.LoadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load words: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = dbconfig.NewConfigFromEnv().DSN()
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Insert, skipping words already present
	entries := list.Words()
	inserted, skipped, err := words.Seed(context.Background(), pool, entries)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed words: %v\n", err)
		os.Exit(1)
	}

	// 4) Print summary
	fmt.Printf(
		"Words seed complete: %d total, %d inserted, %d skipped\n",
		len(entries), inserted, skipped,
	)
}
