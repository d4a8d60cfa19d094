package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bimmerbailey/lastseen/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "lastseen",
	Short: "Find when each dashboard was last viewed",
	Long: `Lastseen scans a directory of web-server access logs, plain or
compressed (gzip, zstd, snappy), and reports for every dashboard identifier
the most recent time it was requested along with its slug.

Examples:
  lastseen scan /var/log/httpd
  lastseen scan --format json /var/log/httpd
  lastseen scan --include 'access_log*' --since 30d /var/log/httpd
  lastseen scan --merge replace /var/log/httpd`,
	SilenceUsage: true,
}

// Execute is called by main.main(). It runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.lastseen.yaml)")
	rootCmd.PersistentFlags().StringP("format", "f", "text", "output format (text, json, jsonl, table, yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	_ = viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error finding home directory:", err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".lastseen")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("LASTSEEN")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("format", "text")
	viper.SetDefault("verbose", false)
	viper.SetDefault("route_prefix", config.DefaultRoutePrefix)
	viper.SetDefault("id_length", config.DefaultIDLength)
	viper.SetDefault("timestamp_format", config.DefaultTimestampFormat)
	viper.SetDefault("merge", string(config.MergeTimestampOnly))

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// newLogger returns the diagnostics logger. Skipped records are reported at
// WARN; per-file progress only shows up with --verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
