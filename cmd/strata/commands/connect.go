package commands

import (
	"github.com/spf13/cobra"

	// Drivers selectable with --driver.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/coregx/strata"
)

const (
	flagConfig  = "config"
	flagEnvFile = "env-file"
	flagDriver  = "driver"
	flagDSN     = "dsn"
)

// AddConnectionFlags registers the flags used to locate a database.
func AddConnectionFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.String(flagConfig, "", "config file (yaml, json or toml)")
	pf.StringSlice(flagEnvFile, []string{".env"}, "env files to load")
	pf.String(flagDriver, "", "database driver, overrides config")
	pf.String(flagDSN, "", "data source name, overrides config")
}

// loadConfig resolves the connection settings. Flags win over STRATA_*
// variables, env files and the config file.
func loadConfig(cmd *cobra.Command) (*strata.Config, error) {
	flags := cmd.Flags()
	configFile, _ := flags.GetString(flagConfig)
	envFiles, _ := flags.GetStringSlice(flagEnvFile)
	driver, _ := flags.GetString(flagDriver)
	dsn, _ := flags.GetString(flagDSN)

	return strata.LoadConfig(strata.LoadOptions{
		ConfigFile: configFile,
		EnvFiles:   envFiles,
		Overrides: map[string]any{
			"driver": driver,
			"dsn":    dsn,
		},
	})
}

func openDB(cmd *cobra.Command) (*strata.DB, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return strata.OpenConfig(cfg)
}
