package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinywideclouds/go-pushrelay-service/pkg/dispatch"
)

func newRegistryCommand(ctx *commandContext) *cobra.Command {
	registryCmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect the device registry",
	}
	registryCmd.AddCommand(newRegistryLookupCommand(ctx))
	return registryCmd
}

func newRegistryLookupCommand(ctx *commandContext) *cobra.Command {
	var showToken bool

	cmd := &cobra.Command{
		Use:   "lookup <pub_key>...",
		Short: "Show the registration for one or more public keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()

			var c cleanup
			defer c.run()

			registry, err := openStore(cmd.Context(), ctx.config, ctx.logger, &c)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(args))
			for _, pubKey := range args {
				reg, err := registry.Lookup(cmd.Context(), pubKey)
				if errors.Is(err, dispatch.ErrNotFound) {
					rows = append(rows, []string{pubKey, "-", "not registered"})
					continue
				}
				if err != nil {
					return fmt.Errorf("lookup %s: %w", pubKey, err)
				}
				token := reg.Token
				if !showToken {
					token = maskToken(token)
				}
				rows = append(rows, []string{pubKey, token, formatUpdated(reg.UpdatedAt)})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Public Key", "Token", "Updated"}, rows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&showToken, "show-token", false, "Print the full provider token")
	return cmd
}

// maskToken keeps the first and last four characters of a token.
func maskToken(token string) string {
	if len(token) <= 12 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", 4) + token[len(token)-4:]
}

func formatUpdated(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format(time.RFC3339)
}
