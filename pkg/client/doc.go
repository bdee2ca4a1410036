/*
Package client is the HTTP client for the agrilo backend.

Every backend call goes through (*Client).Do, which is the only place that
deals with credentials:

  - the access token from Credentials is attached as a bearer token
  - a 401 on an authenticated request triggers one refresh through the
    refresh cookie, then the request is re-issued once with the new token
  - a 401 from the refresh endpoint, or from a request that was already
    retried, is terminal and returns an error of kind KindAuthExpired

Refreshes are coalesced: concurrent 401s share a single POST /auth/refresh.
When that refresh fails the credentials are cleared and the handler set with
OnSessionEnded runs once.

# Errors

Failures are returned as *Error and match one of the sentinels with
errors.Is:

	_, err := c.Me(ctx)
	switch {
	case errors.Is(err, client.ErrAuthExpired):
		// log in again
	case errors.Is(err, client.ErrNetwork):
		// backend unreachable
	}

Validation failures carry the normalized "detail" of the response in
Error.Fields. The backend sends detail as a message, a list of {loc, msg}
items, or a nested object; ParseDetail reduces all three to field/message
pairs.

# Usage

	c, err := client.New(client.Config{BaseURL: "http://localhost:5000/api"}, tokens)
	if err != nil {
		return err
	}
	auth, err := c.Login(ctx, "farmer@example.com", "secret")
*/
package client
