// Command v6scout collects IPv6 (AAAA) records for a spreadsheet of domains
// by driving a browser-based DNS lookup site.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/FranksOps/v6scout/internal/config"
	"github.com/FranksOps/v6scout/internal/logging"
)

// app is the state shared by every subcommand.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
	logger  *slog.Logger
}

func main() {
	root, err := newRootCmd()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() (*cobra.Command, error) {
	v, err := config.NewViper()
	if err != nil {
		return nil, err
	}
	a := &app{v: v}

	root := &cobra.Command{
		Use:          "v6scout",
		Short:        "Collect AAAA records for a domain list through a browser lookup site",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "config file (YAML)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")
	pf.String("storage", "none", "query log driver: none, json, csv, sqlite, postgres")
	pf.String("storage-dsn", "", "query log file path or connection string")
	if err := bindFlags(v, pf.Lookup, map[string]string{
		"log.level":      "log-level",
		"log.format":     "log-format",
		"storage.driver": "storage",
		"storage.dsn":    "storage-dsn",
	}); err != nil {
		return nil, err
	}

	runCmd, err := newRunCmd(a)
	if err != nil {
		return nil, err
	}
	root.AddCommand(runCmd, newNodesCmd(a), newReportCmd(a), newConfigCmd())
	return root, nil
}

// load decodes and validates the configuration and sets up logging.
func (a *app) load() error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := logging.Setup(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}
