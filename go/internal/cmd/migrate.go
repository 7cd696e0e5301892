package main

import (
	"github.com/mcdev12/alias/go/internal/backends"
	"github.com/mcdev12/alias/go/internal/replication/pgstore"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newMigrateCmd(flags *Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the lobbies and words tables in Postgres.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			db, err := backends.OpenDatabase(cmd.Context(), cfg.DatabaseDSN())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := pgstore.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			log.Info().Msg("schema applied")
			return nil
		},
	}
}
