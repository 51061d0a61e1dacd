package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sbrops/groundcheck-cli/internal/runlog"
)

var recapShowFailures bool

var recapCmd = &cobra.Command{
	Use:   "recap [run-log.xlsx]",
	Short: "Summarize a run log",
	Long:  "Reads a run-log xlsx and prints status counts. Without an argument the most recent run log is used.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			latest, err := latestRunLog(cfg.RunLog.Dir)
			if err != nil {
				return err
			}
			path = latest
		}

		rows, err := runlog.ReadRows(path)
		if err != nil {
			return err
		}

		counts := map[string]int{}
		for _, r := range rows {
			counts[r.Status]++
		}

		fmt.Printf("Run log: %s\n", path)
		fmt.Printf("Records: %d\n", len(rows))
		for _, status := range []string{
			runlog.StatusSucceeded, runlog.StatusFailed,
			runlog.StatusError, runlog.StatusSkipped,
		} {
			fmt.Printf("  %-9s %d\n", status+":", counts[status])
		}

		if recapShowFailures {
			for _, r := range rows {
				if r.Status == runlog.StatusSucceeded {
					continue
				}
				fmt.Printf("  row %-5d %-12s %-8s %s\n", r.No, r.ID, r.Status, r.Note)
			}
		}
		return nil
	},
}

func init() {
	recapCmd.Flags().BoolVar(&recapShowFailures, "failures", false, "list every non-successful row")
	rootCmd.AddCommand(recapCmd)
}

// latestRunLog finds the newest xlsx under the run-log tree.
func latestRunLog(dir string) (string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".xlsx" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return "", eris.Wrapf(err, "recap: scan %s", dir)
	}
	if len(paths) == 0 {
		return "", eris.Errorf("recap: no run logs under %s", dir)
	}
	sort.Slice(paths, func(i, j int) bool {
		fi, errI := os.Stat(paths[i])
		fj, errJ := os.Stat(paths[j])
		if errI != nil || errJ != nil {
			return paths[i] < paths[j]
		}
		return fi.ModTime().After(fj.ModTime())
	})
	return paths[0], nil
}
