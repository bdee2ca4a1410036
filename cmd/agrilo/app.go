package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/agrilo/pkg/client"
	"github.com/cuemby/agrilo/pkg/events"
	"github.com/cuemby/agrilo/pkg/log"
	"github.com/cuemby/agrilo/pkg/metrics"
	"github.com/cuemby/agrilo/pkg/security"
	"github.com/cuemby/agrilo/pkg/session"
	"github.com/cuemby/agrilo/pkg/storage"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

var (
	errSessionEnded = errors.New("session ended, please run 'agrilo login'")
	errLoginFirst   = errors.New("not logged in, please run 'agrilo login'")
)

// app wires the client stack for a single command invocation
type app struct {
	store   *storage.BoltStore
	tokens  *session.Tokens
	client  *client.Client
	broker  *events.Broker
	session *session.Manager
	ended   events.Subscriber
	out     io.Writer
	format  string
}

func newApp(cmd *cobra.Command) (*app, error) {
	var opts []storage.Option
	if cfg.TokenPassphrase != "" {
		sealer, err := security.NewSealerFromPassphrase(cfg.TokenPassphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to create token sealer: %w", err)
		}
		opts = append(opts, storage.WithSealer(sealer))
	}

	store, err := storage.NewBoltStore(cfg.DataDir, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	tokens, err := session.NewTokens(store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	c, err := client.New(client.Config{
		BaseURL:   cfg.APIURL,
		Timeout:   cfg.Timeout,
		UserAgent: "agrilo-cli/" + Version,
	}, tokens)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	broker := events.NewBroker()
	broker.Start()

	format, _ := cmd.Flags().GetString("output")
	a := &app{
		store:   store,
		tokens:  tokens,
		client:  c,
		broker:  broker,
		ended:   broker.Subscribe(events.EventSessionEnded),
		session: session.NewManager(c, tokens, store, broker),
		out:     cmd.OutOrStdout(),
		format:  format,
	}
	return a, nil
}

func (a *app) Close() {
	a.broker.Unsubscribe(a.ended)
	a.broker.Stop()
	if err := a.store.Close(); err != nil {
		log.Errorf("Failed to close session store", err)
	}
}

// requireLogin restores the stored session and fails unless it is valid
func (a *app) requireLogin(ctx context.Context) error {
	if err := a.session.Init(ctx); err != nil {
		return err
	}
	if a.session.State() != session.StateAuthenticated {
		return errLoginFirst
	}
	return nil
}

// sessionError maps a refresh failure to the message that sends the user
// back to login
func sessionError(err error) error {
	if errors.Is(err, client.ErrAuthExpired) {
		return errSessionEnded
	}
	if errors.Is(err, session.ErrNotAuthenticated) {
		return errLoginFirst
	}
	return err
}

// endedBySession reports whether ev means the user has to log in again
func endedBySession(ev *events.Event) bool {
	return ev.Type == events.EventSessionEnded && ev.Metadata[events.MetaReason] == session.ReasonExpired
}

type runFunc func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error

// withApp builds the app around run and cancels its context on SIGINT or
// SIGTERM
func withApp(run runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		return sessionError(run(ctx, a, cmd, args))
	}
}

// print writes v as JSON or YAML, or calls text for the human format
func (a *app) print(v any, text func(w io.Writer)) error {
	switch a.format {
	case outputJSON:
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(a.out)
		defer enc.Close()
		return enc.Encode(toYAMLValue(v))
	default:
		text(a.out)
		return nil
	}
}

// toYAMLValue routes v through its JSON encoding so YAML output uses the
// same field names as the API
func toYAMLValue(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return v
	}
	return generic
}

// serveMetrics exposes the Prometheus collectors on addr until ctx is done
func serveMetrics(ctx context.Context, addr string) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Logger.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Logger.Info().Str("addr", addr).Msg("Serving metrics")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
