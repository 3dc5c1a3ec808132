package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tinywideclouds/go-pushrelay-service/pushrelay/config"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending registry schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			cfg := ctx.config
			out := cmd.OutOrStdout()

			if cfg.Store.Driver != config.DriverSQLite {
				fmt.Fprintf(out, "Store driver %q has no schema to migrate\n", cfg.Store.Driver)
				return nil
			}

			store, err := openSQLite(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			applied, err := store.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(out, "Schema is up to date")
				return nil
			}
			fmt.Fprintf(out, "Applied %d migration(s): %s\n", len(applied), strings.Join(applied, ", "))
			return nil
		},
	}
}
