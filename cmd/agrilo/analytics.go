package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/cuemby/agrilo/pkg/poller"
	"github.com/cuemby/agrilo/pkg/types"
	"github.com/spf13/cobra"
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Show the farm analytics dashboard",
	Long: `Show nutrient trends, detected diseases and recent activity.

With --watch the dashboard is refreshed on the poll interval until
interrupted.`,
	RunE: withApp(runAnalytics),
}

func init() {
	analyticsCmd.Flags().Bool("watch", false, "Keep refreshing the dashboard")
	addWatchFlags(analyticsCmd)

	rootCmd.AddCommand(analyticsCmd)
}

func runAnalytics(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	if err := a.requireLogin(ctx); err != nil {
		return err
	}

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		view := poller.NewAnalyticsView(a.client, viewOptions(a, cmd)...)
		return watchView(ctx, a, cmd, view, func(w io.Writer, u poller.Update[*types.AnalyticsSnapshot]) {
			fmt.Fprintf(w, "--- %s ---\n", u.FetchedAt.Format(time.TimeOnly))
			printAnalytics(w, u.Value)
		})
	}

	snapshot, err := a.client.AnalyticsSummary(ctx)
	if err != nil {
		return err
	}
	return a.print(snapshot, func(w io.Writer) { printAnalytics(w, snapshot) })
}

func printAnalytics(w io.Writer, s *types.AnalyticsSnapshot) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "Soil trends:")
	if len(s.SoilTrends) == 0 {
		fmt.Fprintln(tw, "  none yet")
	} else {
		fmt.Fprintln(tw, "  DATE\tN\tP\tK\tPH")
		for _, t := range s.SoilTrends {
			fmt.Fprintf(tw, "  %s\t%.0f\t%.0f\t%.0f\t%.1f\n", t.Date, t.Nitrogen, t.Phosphorus, t.Potassium, t.PH)
		}
	}

	fmt.Fprintln(tw, "Diseases detected:")
	if len(s.DiseaseStats) == 0 {
		fmt.Fprintln(tw, "  none yet")
	}
	for _, d := range s.DiseaseStats {
		fmt.Fprintf(tw, "  %s\t%d\n", d.Name, d.Count)
	}

	fmt.Fprintln(tw, "Recent activity:")
	if len(s.RecentActivity) == 0 {
		fmt.Fprintln(tw, "  none yet")
	}
	for _, item := range s.RecentActivity {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", formatTime(item.Date.Time), item.Type, item.Result, item.Status)
	}
}
