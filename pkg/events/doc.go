/*
Package events provides an in-memory event broker for agrilo's client state.

The session manager and the polling views publish state changes here so that
front ends (the CLI today) can react without the producers knowing about them.
The most important event is session.ended: it is how an unrecoverable refresh
failure deep inside the HTTP client reaches the surface that must send the
user back to the login flow.

# Event Types

	session.authenticated  login, registration or federated login succeeded
	session.ended          logout, or refresh failed (Metadata["reason"])
	profile.updated        cached profile merged with an update
	language.changed       UI language preference changed
	snapshot.updated       a polling view applied a new snapshot (Metadata["view"])

# Delivery

Publish hands the event to a buffered channel (100 events); a single
distribution goroutine fans it out to every subscriber channel (50 events
each). A subscriber whose buffer is full misses the event rather than
blocking the publisher.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for ev := range sub {
		if ev.Type == events.EventSessionEnded {
			fmt.Println("session ended:", ev.Metadata[events.MetaReason])
		}
	}
*/
package events
