package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"saferm/internal/exitcodes"
	"saferm/internal/history"
)

func main() {
	dbPath := flag.String("db", "/var/lib/saferm/history.db", "Path to deletion history database")
	recent := flag.Int("recent", 0, "Show N most recent outcomes")
	outcome := flag.String("outcome", "", "Filter by outcome (deleted, hidden, mount_point, error, ...)")
	runs := flag.Int("runs", 0, "Show N most recent runs")
	flag.Parse()

	db, err := history.Open(*dbPath)
	if err != nil {
		log.Fatalf("ERROR: failed to open database %s: %v", *dbPath, err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("ERROR: failed to close database: %v", err)
		}
	}()

	switch {
	case *runs > 0:
		showRuns(db, *runs)
	case *recent > 0 || *outcome != "":
		limit := *recent
		if limit <= 0 {
			limit = 20
		}
		showRecent(db, limit, *outcome)
	default:
		flag.Usage()
		fmt.Println("\nExamples:")
		fmt.Println("  saferm-history -recent 20                # Show 20 most recent outcomes")
		fmt.Println("  saferm-history -outcome error            # Show failed deletions")
		fmt.Println("  saferm-history -outcome mount_point      # Show skipped mount points")
		fmt.Println("  saferm-history -runs 10                  # Show 10 most recent runs")
		os.Exit(exitcodes.InvalidPath)
	}
}

func showRecent(db *history.DB, limit int, outcome string) {
	records, err := db.Recent(limit, outcome)
	if err != nil {
		log.Fatalf("ERROR: failed to query outcomes: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tRUN\tACTION\tOUTCOME\tPATH\tERROR")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			r.Timestamp.Format("2006-01-02 15:04:05"), r.RunID, r.Action, r.Outcome, r.Path, r.ErrorMessage)
	}
	w.Flush()
}

func showRuns(db *history.DB, limit int) {
	runs, err := db.Runs(limit)
	if err != nil {
		log.Fatalf("ERROR: failed to query runs: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tDRY_RUN\tTARGET")
	for _, r := range runs {
		fmt.Fprintf(w, "%d\t%s\t%v\t%s\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.DryRun, r.Target)
	}
	w.Flush()
}
