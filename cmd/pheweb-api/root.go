package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pheweb-api",
		Short: "PheWAS query engine and HTTP API",
		Long:  "Serve precomputed Manhattan/QQ/region/PheWAS association data over a read-only HTTP API, and maintain the offline indexes it depends on.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initViper()
		},
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.pheweb.yaml)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newAutocompleteCmd())

	return cmd
}

// initViper binds PHEWEB_-prefixed environment variables and an optional
// YAML config file into viper before any subcommand reads a setting.
func initViper() error {
	viper.SetEnvPrefix("pheweb")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, _ := os.UserHomeDir()
		viper.AddConfigPath(home)
		viper.SetConfigName(".pheweb")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	return nil
}
