package main

import (
	"fmt"
	"strings"

	"github.com/mcdev12/alias/go/internal/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Flags are the command line settings layered over the config file.
type Flags struct {
	configFile  string
	backend     string
	logLevel    string
	relayURL    string
	metricsAddr string
	playerID    string
}

func newCmd(flags *Flags) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("ALIAS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:     "alias",
		Short:   "Two-team word guessing game played from the terminal.",
		Version: releaseVersion,
	}

	fs := cmd.PersistentFlags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&flags.configFile, "config", "c", "", "path to a YAML config file (env: ALIAS_CONFIG)")
	fs.StringVarP(&flags.backend, "backend", "b", "", "room backend: memory, postgres, nats, redis or relay (env: ALIAS_BACKEND)")
	fs.StringVar(&flags.logLevel, "log-level", "", "log level (env: ALIAS_LOG_LEVEL)")
	fs.StringVar(&flags.relayURL, "relay-url", "", "relay base URL for the relay backend (env: ALIAS_RELAY_URL)")
	fs.StringVar(&flags.metricsAddr, "metrics-addr", "", "serve replication metrics on this address (env: ALIAS_METRICS_ADDR)")
	fs.StringVar(&flags.playerID, "player-id", "", "use this player id instead of the stored one (env: ALIAS_PLAYER_ID)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.AddCommand(newPlayCmd(flags), newMigrateCmd(flags), newWhoamiCmd(flags))

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetVersionTemplate("alias v{{.Version}}\n")
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

// loadConfig reads the config file and applies the flags that were set.
func loadConfig(flags *Flags) (*config.Config, error) {
	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return nil, err
	}
	if flags.backend != "" {
		cfg.Backend.Kind = flags.backend
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.relayURL != "" {
		cfg.Backend.RelayURL = flags.relayURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(cfg.Level())
	return cfg, nil
}
