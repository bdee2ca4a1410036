/*
Package log provides structured logging for agrilo using zerolog.

The package keeps a single global zerolog.Logger that every other package
derives child loggers from. Logs go to stderr by default so that command
output on stdout stays clean and scriptable.

# Usage

Initializing the Logger:

	log.Init(log.Config{
		Level:      log.ParseLevel("debug"),
		JSONOutput: false,
	})

Component Loggers:

	clientLog := log.WithComponent("client")
	clientLog.Debug().Str("path", "/auth/me").Msg("sending request")

	viewLog := log.WithView("analytics")
	viewLog.Warn().Err(err).Msg("fetch failed, keeping stale snapshot")

Request-scoped logs carry the X-Request-ID the client attaches to every call:

	reqLog := log.WithRequestID("client", id)
	reqLog.Debug().Int("status", 200).Msg("response received")

# Log Levels

  - debug: every request/response pair, poll ticks
  - info: session transitions, command results
  - warn: refresh failures, poll failures
  - error: unexpected storage failures
*/
package log
