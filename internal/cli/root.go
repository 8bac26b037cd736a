// Package cli implements the denkmit command line.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	Version = "0.3.0"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "denkmit",
		Short: "replicated content-addressed key-value store",
		Long: fmt.Sprintf(`denkmit (v%s)

A replicated key-value store whose entries are indexed by a Merkle forest
of fixed-size Pollards. Replicas announce signed heads over gossip and
converge by comparing and merging their forests.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of denkmit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "denkmit v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.AddCommand(ServeCmd)
	RootCmd.AddCommand(HubCmd)
	RootCmd.AddCommand(InspectCmd)
	RootCmd.AddCommand(versionCmd)

	key := "config"
	RootCmd.PersistentFlags().String(key, "", WrapString("Path to a YAML config file. Flags and DENKMIT_* environment variables override its values"))
	key = "log-level"
	RootCmd.PersistentFlags().String(key, "info", WrapString("Level at which logs are written (debug, info, warn, error)"))
}

// initConfig reads env files, environment variables and the config file.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("denkmit")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if path, _ := RootCmd.PersistentFlags().GetString("config"); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "config %s: %v\n", path, err)
			os.Exit(1)
		}
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
