package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"photo-guess/internal/config"
)

// flags override values loaded from the config file and the environment.
type flags struct {
	configPath  string
	dotenv      string
	addr        string
	env         string
	memory      bool
	autoMigrate bool
}

// resolve loads the layered config and applies explicitly set flags.
func (f *flags) resolve() (config.Config, error) {
	if err := config.LoadDotEnv(f.dotenv); err != nil {
		return config.Config{}, fmt.Errorf("load %s: %w", f.dotenv, err)
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if f.addr != "" {
		cfg.HTTP.Address = f.addr
	}
	if f.env != "" {
		cfg.Env = f.env
	}
	if f.memory {
		cfg.Database.URL = ""
		cfg.Database.ChangeFeed = config.FeedLocal
	}
	return cfg, cfg.Validate()
}

func newCmd(f *flags) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("PHOTOGUESS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "photo-guess",
		Short:         "Runs the photo guessing party game server.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.resolve()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, f.autoMigrate)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&f.configPath, "config", "c", "", "path to a YAML config file (env: PHOTOGUESS_CONFIG)")
	fs.StringVar(&f.dotenv, "dotenv", ".env", "dotenv file loaded before the config (env: PHOTOGUESS_DOTENV)")
	fs.StringVarP(&f.addr, "addr", "a", "", "address to listen on, overrides HTTP_ADDR (env: PHOTOGUESS_ADDR)")
	fs.StringVar(&f.env, "env", "", "local, dev or prod, overrides APP_ENV (env: PHOTOGUESS_ENV)")
	fs.BoolVar(&f.memory, "memory", false, "keep all state in memory even when DATABASE_URL is set (env: PHOTOGUESS_MEMORY)")
	fs.BoolVar(&f.autoMigrate, "auto-migrate", false, "create missing tables on startup (env: PHOTOGUESS_AUTO_MIGRATE)")

	fs.VisitAll(func(fl *pflag.Flag) {
		_ = v.BindPFlag(fl.Name, fl)
		_ = v.BindEnv(fl.Name)
		if !fl.Changed && v.IsSet(fl.Name) {
			_ = fs.Set(fl.Name, fmt.Sprintf("%v", v.Get(fl.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})

	return cmd
}
