// Command buymove is a terminal client for the buyMove vehicle marketplace:
// browse and filter listings, publish a listing, keep favorites and manage
// the session. With mocks enabled (the default) everything runs on the
// bundled dataset and the local store.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/buymove/buymove-client/pkg/config"
	"github.com/buymove/buymove-client/pkg/logging"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath  string
	envPath     string
	api         string
	mocks       bool
	storeDriver string
	storePath   string
	logLevel    string
	events      bool
	json        bool
}

func newRootCmd() *cobra.Command {
	var (
		f rootFlags
		a *app
	)
	cmd := &cobra.Command{
		Use:          "buymove",
		Short:        "buyMove marketplace client",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			a, err = newApp(cmd.Context(), cfg, log, f.events || cmd.Name() == "events")
			if err != nil {
				return err
			}
			return a.start(cmd.Context())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a != nil {
				a.Close()
				_ = a.log.Sync()
			}
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "YAML config file")
	pf.StringVar(&f.envPath, "env-file", ".env", "dotenv file")
	pf.StringVar(&f.api, "api", "", "backend base URL")
	pf.BoolVar(&f.mocks, "mocks", true, "serve catalog and favorites from local data")
	pf.StringVar(&f.storeDriver, "store-driver", "", "persisted store: memory, file, sqlite, sqlite3 or nats")
	pf.StringVar(&f.storePath, "store-path", "", "persisted store location")
	pf.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	pf.BoolVar(&f.events, "events", false, "publish session and favorites events to NATS")
	pf.BoolVar(&f.json, "json", false, "print JSON instead of tables")

	get := func() *app { return a }
	cmd.AddCommand(
		newLoginCmd(get),
		newLogoutCmd(get),
		newWhoamiCmd(get),
		newRegisterCmd(get),
		newVehiclesCmd(get, &f.json),
		newFavoritesCmd(get, &f.json),
		newEventsCmd(get),
	)
	return cmd
}

// loadConfig layers changed flags over the loaded configuration.
func loadConfig(cmd *cobra.Command, f rootFlags) (config.Config, error) {
	cfg, err := config.Load(f.configPath, f.envPath)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("api") {
		cfg.APIBaseURL = f.api
	}
	if flags.Changed("mocks") {
		cfg.UseMocks = f.mocks
	}
	if flags.Changed("store-driver") {
		cfg.Store.Driver = f.storeDriver
	}
	if flags.Changed("store-path") {
		cfg.Store.Path = f.storePath
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	return cfg, cfg.Validate()
}
