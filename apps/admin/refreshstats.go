package main

import (
	"context"
	"fmt"
	"sort"
)

// refreshStats recomputes the statistics of studentID, or of every active student when it is empty.
func (cli *commandLine) refreshStats(studentID string) error {
	ctx := context.Background()
	agg := cli.app.Predictor.Stats()

	if studentID != "" {
		if _, err := cli.app.Users.GetByID(ctx, studentID); err != nil {
			return err
		}
		stats, err := agg.Refresh(ctx, studentID)
		if err != nil {
			return err
		}
		fmt.Fprintln(cli.out, stats)
		return nil
	}

	report, err := agg.RefreshAll(ctx, cli.app.Users)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "refreshed %d student(s)\n", report.Refreshed)

	failed := make([]string, 0, len(report.Failed))
	for id := range report.Failed {
		failed = append(failed, id)
	}
	sort.Strings(failed)
	for _, id := range failed {
		fmt.Fprintf(cli.out, "  %s: %s\n", id, report.Failed[id])
	}
	return nil
}
