package cmd

import (
	"fmt"

	"github.com/bimmerbailey/lastseen/internal/config"
	"github.com/bimmerbailey/lastseen/internal/output"
	"github.com/bimmerbailey/lastseen/internal/parser"
	"github.com/bimmerbailey/lastseen/internal/reducer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var scanCmd = &cobra.Command{
	Use:   "scan [flags] <dir>",
	Short: "Report the last access of every dashboard in a log directory",
	Long: `Read every file in a log directory, decompressing where needed, and
report each dashboard identifier with its slug and the epoch timestamp of the
newest request seen for it.

Lines with an identifier of the wrong length are skipped with a warning.
A timestamp that cannot be parsed aborts the scan and nothing is reported.

By default the slug reported for an identifier is the one from the first
file it appeared in, even when a later file has a newer request with a
different slug. Use --merge replace to report the newest slug instead.

Examples:
  lastseen scan /var/log/httpd
  lastseen scan --format table --since 7d /var/log/httpd
  lastseen scan --route-prefix /grafana/d/ --include '*.gz' ./logs`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().String("merge", "", "merge mode for newer records: timestamp-only or replace")
	scanCmd.Flags().String("route-prefix", "", "URL path prefix preceding the identifier")
	scanCmd.Flags().Int("id-length", 0, "required identifier length")
	scanCmd.Flags().StringSlice("include", nil, "only read directory entries matching glob (repeatable)")
	scanCmd.Flags().String("since", "", "only report records seen since timestamp (RFC3339 or relative like '7d')")
	scanCmd.Flags().String("until", "", "only report records seen until timestamp (RFC3339 or relative like '1h')")
	scanCmd.Flags().Bool("no-color", false, "disable colored output")
	scanCmd.Flags().Bool("summary", false, "print scan totals to stderr")

	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadScanConfig(cmd, args)
	if err != nil {
		return err
	}

	sinceStr, _ := cmd.Flags().GetString("since")
	untilStr, _ := cmd.Flags().GetString("until")
	noColor, _ := cmd.Flags().GetBool("no-color")
	showSummary, _ := cmd.Flags().GetBool("summary")

	var filter reducer.FilterOptions
	if sinceStr != "" {
		filter.Since, err = config.ParseTimeRef(sinceStr)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
	}
	if untilStr != "" {
		filter.Until, err = config.ParseTimeRef(untilStr)
		if err != nil {
			return fmt.Errorf("invalid --until value: %w", err)
		}
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Verbose)

	p, err := parser.New(
		parser.WithRoutePrefix(cfg.RoutePrefix),
		parser.WithIDLength(cfg.IDLength),
		parser.WithTimestampFormat(cfg.TimestampFormat),
		parser.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	r := reducer.New(p,
		reducer.WithMergeMode(cfg.Merge),
		reducer.WithInclude(cfg.Include),
		reducer.WithLogger(logger),
	)

	records, summary, err := r.Reduce(cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to parse logs: %w", err)
	}

	colorMode := output.ColorAuto
	if noColor {
		colorMode = output.ColorNever
	}

	format := output.ParseFormat(cfg.Format)
	writer := output.New(cmd.OutOrStdout(), format).WithColor(colorMode)
	if err := writer.WriteRecords(reducer.Select(records, filter)); err != nil {
		return err
	}

	if showSummary {
		writeSummary(cmd, summary)
	}
	return nil
}

// loadScanConfig merges the config file, environment and explicitly set
// flags, in increasing order of precedence.
func loadScanConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(args) == 1 {
		cfg.LogDir = args[0]
	}
	if cfg.LogDir == "" {
		return nil, fmt.Errorf("a log directory is required (argument or log_dir in config)")
	}

	flags := cmd.Flags()
	if flags.Changed("merge") {
		s, _ := flags.GetString("merge")
		cfg.Merge = config.MergeMode(s)
	}
	if flags.Changed("route-prefix") {
		cfg.RoutePrefix, _ = flags.GetString("route-prefix")
	}
	if flags.Changed("id-length") {
		cfg.IDLength, _ = flags.GetInt("id-length")
	}
	if flags.Changed("include") {
		cfg.Include, _ = flags.GetStringSlice("include")
	}

	if cfg.RoutePrefix == "" {
		cfg.RoutePrefix = config.DefaultRoutePrefix
	}
	if cfg.IDLength == 0 {
		cfg.IDLength = config.DefaultIDLength
	}
	if cfg.TimestampFormat == "" {
		cfg.TimestampFormat = config.DefaultTimestampFormat
	}

	mode, err := config.ParseMergeMode(string(cfg.Merge))
	if err != nil {
		return nil, err
	}
	cfg.Merge = mode

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func writeSummary(cmd *cobra.Command, s reducer.Summary) {
	w := cmd.ErrOrStderr()
	fmt.Fprintf(w, "Scanned %d files (%d skipped)\n", s.Files, s.Skipped)
	fmt.Fprintf(w, "  Lines:       %d\n", s.Totals.Lines)
	fmt.Fprintf(w, "  Matched:     %d\n", s.Totals.Matched)
	fmt.Fprintf(w, "  Invalid:     %d\n", s.Totals.Invalid)
	fmt.Fprintf(w, "  Identifiers: %d\n", s.Identifiers)
}
