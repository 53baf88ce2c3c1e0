// migrate applies the embedded SQL schema; run as `go run ./cmd/migrate up`.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"refresh-session-service/internal/config"
	"refresh-session-service/internal/db/migrate"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply or roll back the refresh session schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newDirectionCommand("up", "Apply all pending migrations"))
	cmd.AddCommand(newDirectionCommand("down", "Roll back all migrations"))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func loadDSN() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	return cfg.DatabaseURL, nil
}

func newDirectionCommand(direction, short string) *cobra.Command {
	return &cobra.Command{
		Use:   direction,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := loadDSN()
			if err != nil {
				return err
			}
			if err := migrate.Run(dsn, direction); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: done\n", direction)
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := loadDSN()
			if err != nil {
				return err
			}
			version, dirty, err := migrate.Version(dsn)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
			return nil
		},
	}
}
