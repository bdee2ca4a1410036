/*
Package session tracks who is logged in.

A Manager starts Uninitialized. Init resolves the stored token against
GET /auth/me and moves to Authenticated, or to Anonymous when there is no
token or the backend rejects it. Login, Register and LoginWithFederatedToken
move to Authenticated; Logout, and any refresh failure reported by the
client, move back to Anonymous.

The stored token and the cached profile change together: Tokens.Clear
removes both, so an Anonymous session never leaves a token behind.

Transitions are published on the events broker. A session.ended event with
reason "expired" means the user has to log in again.
*/
package session
