// Package commands implements the CLI commands for jobsift.
package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/jobsift/internal/config"
	"github.com/jmylchreest/jobsift/internal/logger"
)

// v holds the configuration file, environment overrides and global flags.
var v = config.NewViper()

// configErr is a config file that exists but could not be read. It is
// reported by the first command that needs the configuration.
var configErr error

var rootCmd = &cobra.Command{
	Use:   "jobsift",
	Short: "Collect, score and track job postings from listing sites",
	Long: `Jobsift collects job postings from the configured listing sites,
scores them against your keyword rules, filters them and keeps a history
of when each posting was first and last seen.

Every run writes the current postings, the full history and the postings
that are new since the previous run.

Examples:
  # Run every configured site
  jobsift collect

  # Re-score stored postings after editing the rule files
  jobsift rescore

  # Rebuild a history from kept batch files
  jobsift unify --mode extend -o versions.json`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config file (default $HOME/.jobsift.yaml or ./.jobsift.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "only log errors")
	rootCmd.PersistentFlags().Bool("json-logs", false, "log as JSON")

	_ = v.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = v.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = v.BindPFlag("json_logs", rootCmd.PersistentFlags().Lookup("json-logs"))
}

func initConfig() {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		configErr = fmt.Errorf("load .env: %w", err)
		return
	}

	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".jobsift")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			configErr = fmt.Errorf("%w: read config: %w", config.ErrInvalid, err)
		}
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// initLogger applies the global logging flags.
func initLogger() {
	logger.Init(logger.Options{
		Debug: v.GetBool("debug"),
		Quiet: v.GetBool("quiet"),
		JSON:  v.GetBool("json_logs"),
	})
}

// loadConfig decodes and validates the configuration.
func loadConfig() (*config.Config, error) {
	if configErr != nil {
		return nil, configErr
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	if used := v.ConfigFileUsed(); used != "" {
		logger.Debug("config loaded", "path", used, "sites", len(cfg.SiteNames()))
	} else {
		logger.Warn("no config file found, using defaults")
	}
	return cfg, nil
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// logInfo prints an info message to stderr (unless quiet mode).
func logInfo(format string, args ...any) {
	if !v.GetBool("quiet") {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
