package commands

import "github.com/spf13/cobra"

// NewRootCommand assembles the strata command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "strata",
		Short:         "Compile and run SQL statements",
		Long:          "strata builds SQL statements for PostgreSQL, MySQL and SQLite, prints them with their bindings and optionally runs them.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	AddConnectionFlags(rootCmd)

	rootCmd.AddCommand(NewQueryCommand())
	rootCmd.AddCommand(NewPingCommand())
	rootCmd.AddCommand(NewVersionCommand())
	return rootCmd
}
