/*
Package metrics exposes Prometheus collectors for the agrilo client.

Metrics are registered with the default registry at init time. Long-running
commands (soil watch, analytics --watch) can expose them with Handler when
--metrics-addr is set.

# Metrics Catalog

	agrilo_client_requests_total{method,status}       counter
	agrilo_client_request_duration_seconds{method}    histogram
	agrilo_client_refresh_total{outcome}              counter (success|failure|shared)
	agrilo_client_retries_total                       counter
	agrilo_session_transitions_total{from,to}         counter
	agrilo_poll_fetches_total{view,outcome}           counter
	agrilo_poll_fetch_duration_seconds{view}          histogram
	agrilo_poll_stale_discarded_total{view}           counter

A refresh outcome of "shared" counts callers that joined a refresh already in
flight instead of issuing their own.

# Timer

	timer := metrics.NewTimer()
	resp, err := send(req)
	timer.ObserveDurationVec(metrics.ClientRequestDuration, req.Method)
*/
package metrics
