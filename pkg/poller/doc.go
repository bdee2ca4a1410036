/*
Package poller keeps read-only views fresh by fetching them on an interval.

A Poller fetches as soon as it starts and then every interval (5 seconds by
default) until it is stopped. Each successful fetch replaces the previous
snapshot entirely. A failed fetch is logged and counted, the last good
snapshot stays in place, and the next tick tries again with no backoff.

Fetches run concurrently with the ticker, so responses can arrive out of
order. Each fetch carries a sequence number and only a result newer than the
applied one is kept. Results that arrive after Stop are dropped.

	view := poller.NewAnalyticsView(c, poller.WithCache(store))
	if err := view.Start(ctx); err != nil {
		return err
	}
	defer view.Stop()

	for update := range view.Subscribe() {
		render(update.Value)
	}
*/
package poller
