package commands

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/jobsift/internal/collector"
	"github.com/jmylchreest/jobsift/internal/merge"
	"github.com/jmylchreest/jobsift/internal/snapshot"
)

var unifyCmd = &cobra.Command{
	Use:   "unify [batch files...]",
	Short: "Unify dated batch files into one snapshot",
	Long: `Unify merges dated batch files (postings_<source>_<date>.json) into one
view keyed by posting id, oldest batch first. Without arguments every batch
in the snapshot directory is used.

In fill mode each posting is one record with first/last-seen dates. In
extend mode every sighting is kept as a version.

Examples:
  # Print the unified postings
  jobsift unify

  # Keep every version of each posting
  jobsift unify --mode extend -o versions.json

  # Rebuild the history snapshot from the kept batches
  jobsift unify --save`,
	RunE: runUnify,
}

func init() {
	rootCmd.AddCommand(unifyCmd)

	flags := unifyCmd.Flags()
	flags.String("mode", "", "merge mode: fill, extend (default from config)")
	flags.StringP("output", "o", "", "output file (default: stdout)")
	flags.Bool("save", false, "replace the history snapshot with the result (fill mode)")
}

func runUnify(cmd *cobra.Command, args []string) error {
	initLogger()

	cfg, err := loadConfig()
	if err != nil {
		logError("%v", err)
		return err
	}
	mode := cfg.MergeMode()
	if s, _ := cmd.Flags().GetString("mode"); s != "" {
		if mode, err = merge.ParseMode(s); err != nil {
			logError("%v", err)
			return err
		}
	}

	store := snapshot.New(cfg.SnapshotDir(), cfg.Snapshot.Pretty)
	res, err := collector.Unify(store, mode, args...)
	if err != nil {
		logError("%v", err)
		return err
	}

	if save, _ := cmd.Flags().GetBool("save"); save {
		if res.Mode != merge.ModeFill {
			err := errors.New("--save needs fill mode")
			logError("%v", err)
			return err
		}
		if err := store.Save(snapshot.History, res.Postings); err != nil {
			logError("%v", err)
			return err
		}
		logInfo("Saved %d postings to %s", res.Len(), store.Path(snapshot.History))
		return nil
	}

	var view any = res.Postings
	if res.Mode == merge.ModeExtend {
		view = res.Groups
	}
	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	data = append(data, '\n')

	path, _ := cmd.Flags().GetString("output")
	if path == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := snapshot.WriteFileAtomic(path, data); err != nil {
		logError("%v", err)
		return err
	}
	logInfo("Wrote %d postings to %s", res.Len(), path)
	return nil
}
