package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/uqmarks/uqmarks/internal/analytics"
	"github.com/uqmarks/uqmarks/internal/api"
	"github.com/uqmarks/uqmarks/internal/config"
	"github.com/uqmarks/uqmarks/internal/searchlog"
	"github.com/uqmarks/uqmarks/internal/storage"
)

// --- lookup ---

var lookupCmd = &cobra.Command{
	Use:   "lookup <code> <semester-id>",
	Short: "Show the assessment weightings of a course",
	Long: `Show the assessment weightings of a course via the running server.

Examples:
  uqmarks lookup CSSE1001 2025S1
  uqmarks lookup COMP3506 2025S2 --url https://course-profiles.uq.edu.au/course-profiles/COMP3506-20000-7560`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		profileURL, _ := cmd.Flags().GetString("url")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runLookup(cmd.Context(), client, cmd.OutOrStdout(), args[0], args[1], profileURL)
	},
}

func init() {
	lookupCmd.Flags().String("url", "", "course profile URL, needed the first time a course is looked up")
}

func runLookup(ctx context.Context, client *apiClient, w io.Writer, code, semesterID, profileURL string) error {
	query := map[string]string{"courseCode": code, "semesterId": semesterID}
	if profileURL != "" {
		query["courseProfileUrl"] = profileURL
	}
	res, err := client.get(ctx, "/api/getcourse/", query)
	if err != nil {
		return err
	}

	if res.IsError() {
		var failed api.CourseErrorResponse
		if err := json.Unmarshal(res.Body(), &failed); err != nil || failed.Success {
			return fmt.Errorf("server returned %d: %s", res.StatusCode(), res.String())
		}
		if failed.ShowURLRequest {
			if failed.Error == "" {
				failed.Error = fmt.Sprintf("%s has not been looked up for %s yet", strings.ToUpper(code), semesterID)
			}
			return fmt.Errorf("%s; rerun with --url <course profile URL>", failed.Error)
		}
		return fmt.Errorf("%s", failed.Error)
	}

	var found api.CourseResponse
	if err := json.Unmarshal(res.Body(), &found); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	fmt.Fprintf(w, "%s  %s\n\n", colorize(colorBold, found.CourseCode), found.SemesterID)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, item := range found.AssessmentItems {
		fmt.Fprintf(tw, "  %s\t%s\n", item.Task, item.Weight)
	}
	return tw.Flush()
}

// --- semesters ---

var semestersCmd = &cobra.Command{
	Use:   "semesters",
	Short: "List selectable semesters, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runSemesters(cmd.Context(), client, cmd.OutOrStdout())
	},
}

func runSemesters(ctx context.Context, client *apiClient, w io.Writer) error {
	res, err := client.get(ctx, "/api/semesters/", nil)
	if err != nil {
		return err
	}
	var list []api.SemesterOption
	if err := decodeJSON(res, &list); err != nil {
		return err
	}
	for _, s := range list {
		fmt.Fprintf(w, "%s  %s\n", colorize(colorCyan, s.Value), s.Label)
	}
	return nil
}

// --- logs ---

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Import or export the search log",
}

var logsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Append events from a pipe-delimited log file",
	Long: `Append events from a log file with one event per line:

  epoch_seconds|code|semester|year

A malformed line aborts the import before anything is written.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store *storage.Store) error {
			n, err := importLog(cmd.Context(), store, args[0])
			if err != nil {
				return err
			}
			printSuccess("Imported %d events from %s", n, args[0])
			return nil
		})
	},
}

var logsExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write every logged event in the import format",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store *storage.Store) error {
			n, err := exportLog(cmd.Context(), store, args[0])
			if err != nil {
				return err
			}
			printSuccess("Exported %d events to %s", n, args[0])
			return nil
		})
	},
}

func init() {
	logsCmd.AddCommand(logsImportCmd)
	logsCmd.AddCommand(logsExportCmd)
}

// withStore opens the configured database for commands that work offline.
func withStore(fn func(store *storage.Store) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func importLog(ctx context.Context, store *storage.Store, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening log: %w", err)
	}
	defer f.Close()
	return searchlog.Import(ctx, f, store)
}

func exportLog(ctx context.Context, store *storage.Store, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating output file: %w", err)
	}
	n, err := searchlog.Export(ctx, f, store, storage.SearchQuery{})
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return n, err
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the search log",
	Long: `Summarize the search log for a date range.

Examples:
  uqmarks stats
  uqmarks stats --range 90 --semester 2025S1 --code CSSE1001 --top 20`,
	RunE: func(cmd *cobra.Command, args []string) error {
		params := analytics.Params{}
		params.Range, _ = cmd.Flags().GetString("range")
		params.Semester, _ = cmd.Flags().GetString("semester")
		params.Lock, _ = cmd.Flags().GetBool("lock")
		params.Code, _ = cmd.Flags().GetString("code")
		top, _ := cmd.Flags().GetInt("top")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		return withStore(func(store *storage.Store) error {
			svc := analytics.NewService(store, analytics.NewEngine(loc))
			return runStats(cmd.Context(), svc, cmd.OutOrStdout(), params, top, time.Now())
		})
	},
}

func init() {
	statsCmd.Flags().String("range", analytics.DefaultRange, "days back (30, 90, 180, 365) or ALL")
	statsCmd.Flags().String("semester", "", "only count searches for this semester id")
	statsCmd.Flags().Bool("lock", false, "use the semester's teaching dates as the range")
	statsCmd.Flags().String("code", "", "highlight this course code")
	statsCmd.Flags().Int("top", 10, "number of ranked codes to show")
}

func runStats(ctx context.Context, svc *analytics.Service, w io.Writer, p analytics.Params, top int, now time.Time) error {
	f, err := analytics.ParseFilter(p, now, svc.Engine().Location())
	if err != nil {
		return err
	}
	report, err := svc.Report(ctx, f, top, analytics.DefaultTopK)
	if err != nil {
		return err
	}

	s := report.Summary
	fmt.Fprintf(w, "%s to %s\n\n", f.Start.Format(time.DateOnly), f.End.Format(time.DateOnly))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "  Searches\t%d\n", s.Total)
	fmt.Fprintf(tw, "  Per day\t%.1f\n", s.AveragePerDay)
	fmt.Fprintf(tw, "  Distinct codes\t%d\n", s.DistinctCodes)
	fmt.Fprintf(tw, "  Median per code\t%.1f\n", s.MedianPerCode)
	fmt.Fprintf(tw, "  Top %d share\t%.1f%%\n", s.TopK, s.TopShare*100)
	if s.MostSearched != "" {
		fmt.Fprintf(tw, "  Most searched\t%s (%d)\n", s.MostSearched, s.MostSearchedCount)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(report.Top.Rows) == 0 {
		fmt.Fprintln(w, "\nNo searches in range.")
		return nil
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, row := range report.Top.Rows {
		label := row.Label
		if row.Code == f.Highlight {
			label = colorize(colorYellow, label)
		}
		fmt.Fprintf(tw, "  %d\t%s\t%d\n", row.Rank, label, row.Count)
	}
	return tw.Flush()
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		printConfig(cmd.OutOrStdout(), config.ShowAll(cfg))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}

func printConfig(w io.Writer, keys []config.KeyInfo) {
	for _, k := range keys {
		fmt.Fprintf(w, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
	}
}
