package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewPingCommand checks that the configured database answers.
func NewPingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the database connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.SQLDB().PingContext(cmd.Context()); err != nil {
				return fmt.Errorf("ping %s: %w", db.DriverName(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s (%s)\n", db.DriverName(), db.Dialect().Name())
			return nil
		},
	}
}
