package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/MrCodeEU/drowsiguard/pkg/archive"
)

func cmdReports(args []string) error {
	store, err := openStorage()
	if err != nil {
		return err
	}

	if len(args) > 0 {
		report, err := store.LoadReport(args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	if cfg.Archive.Enabled {
		return listArchived()
	}

	reports, err := store.ListReports()
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		fmt.Println("No session reports.")
		return nil
	}

	fmt.Println("Session reports:")
	for _, r := range reports {
		fmt.Printf("  - %s\n", r.Name)
	}
	fmt.Printf("\nTotal: %d report(s)\n", len(reports))
	return nil
}

func listArchived() error {
	arch, err := archive.Open(cfg.Archive.Path)
	if err != nil {
		return err
	}
	defer arch.Close()

	rows, err := arch.Sessions(context.Background(), 0)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("No archived sessions.")
		return nil
	}

	fmt.Printf("%-10s %-19s %9s %7s %7s %7s %5s\n", "SESSION", "STARTED", "DURATION", "DROWSY", "DISTR", "YAWN", "SCORE")
	for _, row := range rows {
		id := row.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Printf("%-10s %-19s %8.0fs %7d %7d %7d %5d\n",
			id,
			row.Started.Local().Format("2006-01-02 15:04:05"),
			row.Duration,
			row.Counts.Drowsy,
			row.Counts.Distracted,
			row.Counts.Yawn,
			row.Score,
		)
	}
	return nil
}
