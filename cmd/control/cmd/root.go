package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"monotributo-control/cmd/control/config"
	"monotributo-control/pkg/errors"
	"monotributo-control/pkg/logger"
)

var (
	cfgFile   string
	verbose   bool
	logLevel  string
	logFormat string
	initErr   error
	version   = "dev"
	commit    = "unknown"
	date      = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "control",
	Short: "Monotributo category control",
	Long: `Control reconciles the "Mis Comprobantes" invoice exports of each client
with the RCEL invoice documents, prorates every invoice over the control period
by its billed service period, and classifies each client into a monotributo
category.

Examples:
  control run --from 2025-01-01 --to 2025-12-31
  control run --from 01/07/2024 --to 30/06/2025 --output-format xlsx
  control categories configs/categorias.yaml
  control keys parse 20374730429-011-00002-00000015`,
	Version:           getVersionString(),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	err := rootCmd.Execute()
	return NewCLIErrorHandler(os.Stderr).HandleError(err)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text, json")

	viper.BindPFlag(config.KeyVerbose, rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag(config.KeyLogLevel, rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag(config.KeyLogFormat, rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if err := config.BindEnvironment(viper.GetViper()); err != nil {
		initErr = errors.ConfigurationError(errors.CodeInvalidConfig, "environment", nil, err)
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			initErr = errors.ConfigurationError(errors.CodeInvalidConfig, "config", cfgFile, err).
				WithSuggestion("check the config file path and YAML syntax")
		}
	}
}

// setup reports configuration failures and installs the global logger
func setup(cmd *cobra.Command, args []string) error {
	if initErr != nil {
		return initErr
	}

	if err := logger.Configure(
		viper.GetString(config.KeyLogLevel),
		viper.GetString(config.KeyLogFormat),
		viper.GetBool(config.KeyVerbose),
	); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, config.KeyLogLevel, viper.GetString(config.KeyLogLevel), err)
	}

	if viper.ConfigFileUsed() != "" {
		logger.GetGlobalLogger().WithField("config", viper.ConfigFileUsed()).Debug("Using config file")
	}
	return nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
