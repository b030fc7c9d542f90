package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"focusift/internal/event"

	sqlitestore "focusift/internal/storage/sqlite"
)

// SessionReport aggregates stored session summaries.
type SessionReport struct {
	Sessions       int
	Interrupted    int
	TotalFocus     time.Duration
	AvgTabSwitches float64
	TopSuggestions []SuggestionCount
}

type SuggestionCount struct {
	Technique string
	Count     int
}

func summarize(recs []event.SessionRecord) SessionReport {
	var rep SessionReport
	counts := make(map[string]int)
	switches := 0
	for _, r := range recs {
		rep.Sessions++
		if r.WasInterrupted {
			rep.Interrupted++
		}
		if d := r.Duration(); d > 0 {
			rep.TotalFocus += d
		}
		switches += r.TabSwitchCount
		if r.Suggestion != "" {
			counts[r.Suggestion]++
		}
	}
	if rep.Sessions > 0 {
		rep.AvgTabSwitches = float64(switches) / float64(rep.Sessions)
	}
	for name, n := range counts {
		rep.TopSuggestions = append(rep.TopSuggestions, SuggestionCount{Technique: name, Count: n})
	}
	sort.Slice(rep.TopSuggestions, func(i, j int) bool {
		a, b := rep.TopSuggestions[i], rep.TopSuggestions[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Technique < b.Technique
	})
	return rep
}

func formatDurationHuman(d time.Duration) string {
	d = d.Round(time.Minute)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute

	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate reports from Focusift data",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		rootCmd.PersistentPreRun(cmd, args)
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			fatalf("database file not found at %s. Ensure the focusift daemon has run or specify path with --db.", dbPath)
		} else if err != nil {
			fatalf("accessing database file %s: %v", dbPath, err)
		}
	},
}

var reportSessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Summarise finished focus sessions",
	Run: func(cmd *cobra.Command, args []string) {
		days, _ := cmd.Flags().GetInt("days")
		user, _ := cmd.Flags().GetString("user")
		if days <= 0 {
			fatalf("--days must be positive")
		}

		endTime := time.Now()
		startTime := endTime.AddDate(0, 0, -days)

		store := sqlitestore.NewSQLiteStore(dbPath, nil)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := store.Init(ctx); err != nil {
			fatalf("failed to initialize storage connection: %v", err)
		}
		defer store.Close()

		recs, err := store.GetSessions(ctx, user, startTime, endTime)
		if err != nil {
			fatalf("failed to fetch sessions: %v", err)
		}
		if len(recs) == 0 {
			fmt.Println("No sessions found for the specified period.")
			return
		}

		fmt.Printf("Sessions from %s to %s\n\n", startTime.Format("2006-01-02"), endTime.Format("2006-01-02"))
		for _, r := range recs {
			flag := ""
			if r.WasInterrupted {
				flag = " (interrupted)"
			}
			fmt.Printf("  %s  %-8s %6s  tab switches: %d%s",
				r.StartTime.Local().Format("2006-01-02 15:04"), r.UserID,
				formatDurationHuman(r.Duration()), r.TabSwitchCount, flag)
			if r.Suggestion != "" {
				fmt.Printf("  -> %s", r.Suggestion)
			}
			fmt.Println()
		}

		rep := summarize(recs)
		fmt.Printf("\nTotal: %d sessions, %s focused, %d interrupted, %.1f tab switches on average\n",
			rep.Sessions, formatDurationHuman(rep.TotalFocus), rep.Interrupted, rep.AvgTabSwitches)
		if len(rep.TopSuggestions) > 0 {
			fmt.Println("Most suggested:")
			for i, s := range rep.TopSuggestions {
				if i == 3 {
					break
				}
				fmt.Printf("  %s (%d)\n", s.Technique, s.Count)
			}
		}
	},
}
