package main

import (
	"context"
	"fmt"
	"io"

	"github.com/cuemby/agrilo/pkg/poller"
	"github.com/spf13/cobra"
)

func addWatchFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("interval", 0, "Time between refreshes (defaults to the configured poll interval)")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address while watching")
}

func viewOptions(a *app, cmd *cobra.Command) []poller.Option {
	interval, _ := cmd.Flags().GetDuration("interval")
	if interval <= 0 {
		interval = cfg.PollInterval
	}
	return []poller.Option{
		poller.WithInterval(interval),
		poller.WithTimeout(cfg.Timeout),
		poller.WithCache(a.store),
		poller.WithBroker(a.broker),
	}
}

// watchView renders every snapshot the view applies until interrupted. It
// fails when the session ends underneath it.
func watchView[T any](ctx context.Context, a *app, cmd *cobra.Command, view *poller.Poller[T], render func(io.Writer, poller.Update[T])) error {
	addr, _ := cmd.Flags().GetString("metrics-addr")
	if addr == "" {
		addr = cfg.MetricsAddr
	}
	serveMetrics(ctx, addr)

	sub := view.Subscribe()
	if err := view.Start(ctx); err != nil {
		return err
	}
	defer view.Stop()

	if a.format == outputText {
		fmt.Fprintf(a.out, "Watching %s every %s. Press Ctrl+C to stop.\n", view.Name(), view.Interval())
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-a.ended:
			if !ok {
				return nil
			}
			if endedBySession(ev) {
				return errSessionEnded
			}
		case u, ok := <-sub:
			if !ok {
				return nil
			}
			if err := a.print(u.Value, func(w io.Writer) { render(w, u) }); err != nil {
				return err
			}
		}
	}
}
