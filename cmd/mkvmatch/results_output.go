package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"mkvmatch/internal/model"
)

// renderResults prints matched episodes and failures as two rounded
// tables, the way the teacher's status command renders queue state.
func renderResults(cmd *cobra.Command, results []model.MatchResult, failures []model.FailedMatch) {
	out := cmd.OutOrStdout()

	if len(results) > 0 {
		rows := make([][]string, 0, len(results))
		for _, r := range results {
			name := filepath.Base(r.MatchedFile)
			if name == "." {
				name = filepath.Base(r.OriginalFile)
			}
			rows = append(rows, []string{
				filepath.Base(r.OriginalFile),
				name,
				r.EpisodeInfo.SEFormat(),
				fmt.Sprintf("%.2f", r.Confidence),
			})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"Source", "Renamed To", "Episode", "Confidence"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
		))
	}

	if len(failures) > 0 {
		rows := make([][]string, 0, len(failures))
		for _, f := range failures {
			rows = append(rows, []string{
				filepath.Base(f.OriginalFile),
				f.Reason,
				fmt.Sprintf("%.2f", f.Confidence),
			})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"Source", "Reason", "Confidence"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight},
		))
	}
}
