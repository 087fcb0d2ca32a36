package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/jobsift/internal/collector"
	"github.com/jmylchreest/jobsift/internal/logger"
	"github.com/jmylchreest/jobsift/internal/output"
	"github.com/jmylchreest/jobsift/internal/posting"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect every configured site and update the snapshots",
	Long: `Collect fetches every enabled site, extracts and scores its postings,
merges them into the history, applies the pipeline and compares the result
with the previous run.

The snapshots are only replaced when the whole run succeeds. Interrupting
a run leaves them untouched.

Examples:
  # Full run with the default config
  jobsift collect

  # Write the added/removed reports as JSON lines to ./reports
  jobsift collect --format jsonl -o reports`,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)

	flags := collectCmd.Flags()
	flags.String("format", "", "report format: json, jsonl, yaml (default from config)")
	flags.StringP("output", "o", "", "report directory (default from config)")
	flags.String("date", "", "collection date as YYYY-MM-DD (default today)")
}

func runCollect(cmd *cobra.Command, args []string) error {
	initLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		logError("%v", err)
		return err
	}

	var opts []collector.Option
	if s, _ := cmd.Flags().GetString("format"); s != "" {
		f, err := output.ParseFormat(s)
		if err != nil {
			logError("%v", err)
			return err
		}
		opts = append(opts, collector.WithFormat(f))
	}
	if dir, _ := cmd.Flags().GetString("output"); dir != "" {
		opts = append(opts, collector.WithOutputDir(dir))
	}
	if date, _ := cmd.Flags().GetString("date"); date != "" {
		if !posting.ValidDate(date) {
			err := fmt.Errorf("--date %q is not a %s date", date, posting.DateLayout)
			logError("%v", err)
			return err
		}
		opts = append(opts, collector.WithToday(date))
	}

	c, err := collector.New(cfg, opts...)
	if err != nil {
		logError("%v", err)
		return err
	}
	res, err := c.Run(ctx)
	if err != nil {
		logger.Error("collect failed", "run", res.RunID, "error", err)
		return err
	}

	logInfo("Collected %s postings from %d sites in %s",
		humanize.Comma(int64(res.Collected)), len(res.Sites), res.Duration.Round(time.Millisecond))
	logInfo("  current %s, history %s, added %d, removed %d",
		humanize.Comma(int64(res.Current)), humanize.Comma(int64(res.History)), len(res.Added), len(res.Removed))
	for _, site := range res.Failed {
		logInfo("  site %s failed", site)
	}
	for _, path := range res.Reports {
		logInfo("  wrote %s", path)
	}
	return nil
}
