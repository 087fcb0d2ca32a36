package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/jobsift/internal/collector"
)

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Re-score and re-filter the stored history without fetching",
	Long: `Rescore applies the current rule files, keyword list and pipeline to
the stored history. The current snapshot is rebuilt from the postings seen
on the latest collection date.`,
	Args: cobra.NoArgs,
	RunE: runRescore,
}

func init() {
	rootCmd.AddCommand(rescoreCmd)
}

func runRescore(cmd *cobra.Command, args []string) error {
	initLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		logError("%v", err)
		return err
	}
	c, err := collector.New(cfg)
	if err != nil {
		logError("%v", err)
		return err
	}
	res, err := c.Rescore(ctx)
	if err != nil {
		logError("%v", err)
		return err
	}
	logInfo("Rescored %d postings, %d current", res.History, res.Current)
	return nil
}
