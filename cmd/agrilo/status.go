package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cuemby/agrilo/pkg/health"
	"github.com/spf13/cobra"
)

type statusReport struct {
	APIURL   string        `json:"api_url"`
	Backend  health.Result `json:"backend"`
	Session  string        `json:"session"`
	User     string        `json:"user,omitempty"`
	Language string        `json:"language"`
	DataDir  string        `json:"data_dir"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backend reachability and the session state",
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		checker, err := health.NewAPIChecker(cfg.APIURL)
		if err != nil {
			return err
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")

		report := statusReport{
			APIURL:   cfg.APIURL,
			Backend:  checker.WithTimeout(timeout).Check(ctx),
			Language: a.session.Language(),
			DataDir:  cfg.DataDir,
		}

		// The stored session can only be checked against a reachable backend
		if report.Backend.Healthy {
			if err := a.session.Init(ctx); err != nil {
				return err
			}
			if p := a.session.Profile(); p != nil {
				report.User = p.Email
			}
		}
		report.Session = a.session.State().String()

		return a.print(report, func(w io.Writer) {
			mark := "✓"
			if !report.Backend.Healthy {
				mark = "✗"
			}
			fmt.Fprintf(w, "%s Backend %s: %s (%s)\n", mark, report.APIURL, report.Backend.Message,
				report.Backend.Duration.Round(time.Millisecond))
			fmt.Fprintf(w, "  Session:   %s", report.Session)
			if report.User != "" {
				fmt.Fprintf(w, " as %s", report.User)
			}
			fmt.Fprintln(w)
			fmt.Fprintf(w, "  Language:  %s\n", report.Language)
			fmt.Fprintf(w, "  Data dir:  %s\n", report.DataDir)
		})
	}),
}

func init() {
	statusCmd.Flags().Duration("timeout", health.DefaultTimeout, "Backend probe timeout")
	rootCmd.AddCommand(statusCmd)
}
