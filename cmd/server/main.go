package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"healthwatch/internal/config"
	"healthwatch/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	root := &cobra.Command{
		Use:           "healthwatch",
		Short:         "Health and availability monitor for a fleet of services",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to a YAML or TOML config file")
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))

	root.AddCommand(
		newServeCmd(v),
		newMigrateCmd(v),
		newSeedCmd(v),
		newUptimeCmd(v),
	)
	return root
}

func loadConfig(v *viper.Viper) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(v, v.GetString("config"))
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}
