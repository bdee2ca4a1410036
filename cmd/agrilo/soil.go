package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cuemby/agrilo/pkg/client"
	"github.com/cuemby/agrilo/pkg/poller"
	"github.com/cuemby/agrilo/pkg/types"
	"github.com/spf13/cobra"
)

var soilCmd = &cobra.Command{
	Use:   "soil",
	Short: "Soil sensor readings and soil health analysis",
}

var soilLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Show the latest field sensor reading",
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		reading, err := a.client.LatestSoil(ctx)
		if client.IsNotFound(err) {
			fmt.Fprintln(a.out, "No sensor data yet")
			return nil
		}
		if err != nil {
			return err
		}
		return a.print(reading, func(w io.Writer) { printReading(w, reading) })
	}),
}

var soilHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent field sensor readings",
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		readings, err := a.client.SoilHistory(ctx, limit)
		if err != nil {
			return err
		}
		return a.print(readings, func(w io.Writer) {
			if len(readings) == 0 {
				fmt.Fprintln(w, "No sensor data yet")
				return
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tNODE\tN\tP\tK\tPH\tMOISTURE\tTEMP")
			for _, r := range readings {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%.1f\t%.0f%%\t%.1f°C\n",
					formatTime(r.Timestamp.Time), r.NodeID, r.Nitrogen, r.Phosphorus, r.Potassium, r.PH, r.Moisture, r.Temperature)
			}
			_ = tw.Flush()
		})
	}),
}

var soilAnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Assess soil health and get a crop recommendation",
	Long: `Assess soil health from a sample and get a crop recommendation.

The sample comes from the flags, from the latest sensor reading with
--from-sensor, or from a random plausible reading with --simulate.

Examples:
  agrilo soil analyze --nitrogen 90 --phosphorus 42 --potassium 43 --ph 6.5 --moisture 60
  agrilo soil analyze --from-sensor
  agrilo soil analyze --simulate`,
	RunE: withApp(runSoilAnalyze),
}

var soilFillCmd = &cobra.Command{
	Use:   "fill",
	Short: "Print a sample filled from the latest sensor reading",
	Long: `Print a soil sample filled from the latest sensor reading, or from a
random plausible reading with --simulate. The output can be edited and
passed back to 'agrilo soil analyze'.`,
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		sample, err := sampleFromSource(ctx, a, cmd)
		if err != nil {
			return err
		}
		return a.print(sample, func(w io.Writer) {
			fmt.Fprintln(w, analyzeArgs(sample))
		})
	}),
}

var soilWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the latest sensor reading as it changes",
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		view := poller.NewSoilView(a.client, viewOptions(a, cmd)...)
		return watchView(ctx, a, cmd, view, func(w io.Writer, u poller.Update[*types.SoilReading]) {
			fmt.Fprintf(w, "[%s] ", u.FetchedAt.Format(time.TimeOnly))
			printReading(w, u.Value)
		})
	}),
}

func init() {
	soilHistoryCmd.Flags().Int("limit", 20, "Maximum number of readings")

	af := soilAnalyzeCmd.Flags()
	af.Int("nitrogen", 0, "Nitrogen (mg/kg)")
	af.Int("phosphorus", 0, "Phosphorus (mg/kg)")
	af.Int("potassium", 0, "Potassium (mg/kg)")
	af.Float64("ph", 7, "Soil pH")
	af.Float64("moisture", 0, "Moisture (%)")
	af.Float64("temperature", types.DefaultTemperature, "Temperature (°C)")
	af.Float64("rainfall", types.DefaultSensorRainfall, "Rainfall (mm)")
	addSampleSourceFlags(soilAnalyzeCmd)
	addSampleSourceFlags(soilFillCmd)

	addWatchFlags(soilWatchCmd)

	soilCmd.AddCommand(soilLatestCmd)
	soilCmd.AddCommand(soilHistoryCmd)
	soilCmd.AddCommand(soilAnalyzeCmd)
	soilCmd.AddCommand(soilFillCmd)
	soilCmd.AddCommand(soilWatchCmd)
	rootCmd.AddCommand(soilCmd)
}

func addSampleSourceFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("from-sensor", false, "Use the latest sensor reading")
	cmd.Flags().Bool("simulate", false, "Use a random plausible reading")
	cmd.MarkFlagsMutuallyExclusive("from-sensor", "simulate")
}

func runSoilAnalyze(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	if err := a.requireLogin(ctx); err != nil {
		return err
	}

	fromSensor, _ := cmd.Flags().GetBool("from-sensor")
	simulate, _ := cmd.Flags().GetBool("simulate")

	var sample types.SoilSample
	if fromSensor || simulate {
		s, err := sampleFromSource(ctx, a, cmd)
		if err != nil {
			return err
		}
		sample = *s
	} else {
		flags := cmd.Flags()
		sample.Nitrogen, _ = flags.GetInt("nitrogen")
		sample.Phosphorus, _ = flags.GetInt("phosphorus")
		sample.Potassium, _ = flags.GetInt("potassium")
		sample.PH, _ = flags.GetFloat64("ph")
		sample.Moisture, _ = flags.GetFloat64("moisture")
		sample.Temperature, _ = flags.GetFloat64("temperature")
		sample.Rainfall, _ = flags.GetFloat64("rainfall")
	}

	analysis, err := a.client.AnalyzeSoil(ctx, sample)
	if err != nil {
		return err
	}

	return a.print(analysis, func(w io.Writer) {
		fmt.Fprintf(w, "Health:       %s (score %.0f)\n", analysis.HealthStatus, analysis.HealthScore)
		fmt.Fprintf(w, "Best crop:    %s\n", analysis.RecommendedCrop)
		if len(analysis.Recommendations) > 0 {
			fmt.Fprintln(w, "Recommendations:")
			for _, r := range analysis.Recommendations {
				fmt.Fprintf(w, "  - %s\n", r)
			}
		}
	})
}

// sampleFromSource simulates a sample with --simulate and otherwise reads
// the latest sensor reading
func sampleFromSource(ctx context.Context, a *app, cmd *cobra.Command) (*types.SoilSample, error) {
	if simulate, _ := cmd.Flags().GetBool("simulate"); simulate {
		sample := types.SimulateSample(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
		return &sample, nil
	}

	reading, err := a.client.LatestSoil(ctx)
	if client.IsNotFound(err) {
		return nil, fmt.Errorf("no sensor data yet, enter the values or use --simulate")
	}
	if err != nil {
		return nil, err
	}
	sample := reading.Sample()
	return &sample, nil
}

// analyzeArgs renders s as the flags of 'agrilo soil analyze'
func analyzeArgs(s *types.SoilSample) string {
	parts := []string{
		"agrilo soil analyze",
		fmt.Sprintf("--nitrogen %d", s.Nitrogen),
		fmt.Sprintf("--phosphorus %d", s.Phosphorus),
		fmt.Sprintf("--potassium %d", s.Potassium),
		fmt.Sprintf("--ph %g", s.PH),
		fmt.Sprintf("--moisture %g", s.Moisture),
		fmt.Sprintf("--temperature %g", s.Temperature),
		fmt.Sprintf("--rainfall %g", s.Rainfall),
	}
	return strings.Join(parts, " ")
}

func printReading(w io.Writer, r *types.SoilReading) {
	fmt.Fprintf(w, "node %s at %s: N=%d P=%d K=%d pH=%.1f moisture=%.0f%% temp=%.1f°C\n",
		r.NodeID, formatTime(r.Timestamp.Time), r.Nitrogen, r.Phosphorus, r.Potassium, r.PH, r.Moisture, r.Temperature)
}
