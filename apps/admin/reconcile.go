package main

import (
	"context"
	"strings"
	"time"
)

// reconcile replays the payment sessions created in the last period and prints the outcome.
func (cli *commandLine) reconcile(period time.Duration) error {
	since := time.Now().UTC().Add(-period)
	report, err := cli.enrollmentSvc.Reconcile(context.Background(), since)
	if err != nil {
		return err
	}

	cli.printf("reconciled sessions since %s\n", since.Format(time.RFC3339))
	cli.printf("  scanned:   %d\n", report.Scanned)
	cli.printf("  recovered: %d\n", report.Recovered)
	cli.printf("  settled:   %d\n", report.Settled)
	cli.printf("  expired:   %d\n", report.Expired)
	cli.printf("  skipped:   %d\n", report.Skipped)
	if len(report.Unrecoverable) > 0 {
		cli.printf("  unrecoverable: %s\n", strings.Join(report.Unrecoverable, ", "))
	}
	return nil
}
