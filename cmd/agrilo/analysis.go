package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var detectCmd = &cobra.Command{
	Use:   "detect FILE",
	Short: "Detect leaf disease from a photo",
	Long: `Upload a leaf photo for disease detection. The image must be under
10 MB.

Examples:
  agrilo detect tomato-leaf.jpg
  agrilo detect leaf.png -o json`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(runDetect),
}

var rootAnalyzeCmd = &cobra.Command{
	Use:   "root FILE",
	Short: "Diagnose root health from a photo",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runRootAnalyze),
}

var similarCmd = &cobra.Command{
	Use:   "similar DISEASE",
	Short: "List scans from other farms with the same disease",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		if err := a.requireLogin(ctx); err != nil {
			return err
		}
		cases, err := a.client.SimilarCases(ctx, args[0])
		if err != nil {
			return err
		}
		return a.print(cases, func(w io.Writer) {
			if len(cases) == 0 {
				fmt.Fprintln(w, "No similar cases found")
				return
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tDISEASE\tLOCATION")
			for _, c := range cases {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", formatTime(c.Date.Time), c.Disease, c.Location)
			}
			_ = tw.Flush()
		})
	}),
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past leaf, root and soil analyses",
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		if err := a.requireLogin(ctx); err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		records, err := a.client.AnalysisHistory(ctx, limit)
		if err != nil {
			return err
		}
		return a.print(records, func(w io.Writer) {
			if len(records) == 0 {
				fmt.Fprintln(w, "No analyses yet")
				return
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tTYPE\tRESULT\tSTATUS\tID")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", formatTime(r.Date.Time), r.Type, r.Result, r.Status, r.ID)
			}
			_ = tw.Flush()
		})
	}),
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Maximum number of records")

	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(rootAnalyzeCmd)
	rootCmd.AddCommand(similarCmd)
	rootCmd.AddCommand(historyCmd)
}

func runDetect(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	if err := a.requireLogin(ctx); err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	result, err := a.client.DetectDisease(ctx, filepath.Base(args[0]), f)
	if err != nil {
		return err
	}

	return a.print(result, func(w io.Writer) {
		if result.Healthy() {
			fmt.Fprintf(w, "✓ Leaf looks healthy (%.0f%% confidence)\n", result.Confidence*100)
		} else {
			fmt.Fprintf(w, "Disease:     %s\n", result.Disease)
			fmt.Fprintf(w, "Confidence:  %.0f%%\n", result.Confidence*100)
			if result.Severity != "" {
				fmt.Fprintf(w, "Severity:    %s\n", result.Severity)
			}
		}
		printTreatment(w, result.Treatment)
		if result.ReportID != "" {
			fmt.Fprintf(w, "Report:      %s\n", result.ReportID)
		}
	})
}

func runRootAnalyze(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	if err := a.requireLogin(ctx); err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	diagnosis, err := a.client.AnalyzeRoot(ctx, filepath.Base(args[0]), f)
	if err != nil {
		return err
	}

	return a.print(diagnosis, func(w io.Writer) {
		fmt.Fprintf(w, "Diagnosis:       %s\n", diagnosis.Diagnosis)
		fmt.Fprintf(w, "Recommendation:  %s\n", diagnosis.Recommendation)
	})
}

// printTreatment lists the treatment advice in key order. Values are
// free-form, so nested values are printed as-is.
func printTreatment(w io.Writer, treatment map[string]any) {
	if len(treatment) == 0 {
		return
	}
	keys := make([]string, 0, len(treatment))
	for k := range treatment {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintln(w, "Treatment:")
	for _, k := range keys {
		switch v := treatment[k].(type) {
		case []any:
			fmt.Fprintf(w, "  %s:\n", k)
			for _, item := range v {
				fmt.Fprintf(w, "    - %v\n", item)
			}
		default:
			fmt.Fprintf(w, "  %s: %v\n", k, v)
		}
	}
}
