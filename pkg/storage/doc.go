/*
Package storage persists agrilo's client-side state.

The client keeps very little state of its own: the access token, the cached
profile of the logged-in user, the UI language, and the last good snapshot of
each polling view. The Store interface covers exactly that, with a BoltDB
implementation for the CLI and an in-memory one for tests.

# Architecture

	┌──────────────────── BOLTDB STORAGE ──────────────────────┐
	│                                                            │
	│  File: <dataDir>/agrilo.db (mode 0600)                     │
	│                                                            │
	│  ┌──────────────┬───────────────────────────────┐         │
	│  │ session      │ access_token  (optionally      │         │
	│  │              │               sealed)          │         │
	│  │              │ user          (Profile JSON)   │         │
	│  ├──────────────┼───────────────────────────────┤         │
	│  │ preferences  │ appLang                        │         │
	│  ├──────────────┼───────────────────────────────┤         │
	│  │ snapshots    │ <view name> → raw JSON         │         │
	│  └──────────────┴───────────────────────────────┘         │
	└────────────────────────────────────────────────────────┘

The token and the profile live in the same bucket because they are cleared
together: the session layer never leaves one without the other.

# Token sealing

With WithSealer, tokens are written as "sealed:" followed by AES-256-GCM
ciphertext. Reading a sealed token without a sealer is an error rather than a
silent logout, so a missing AGRILO_TOKEN_KEY is reported to the user. Plain
tokens written before a key was configured are still readable.

# Concurrency

BoltDB holds an exclusive file lock while open. NewBoltStore waits up to two
seconds for the lock, so two concurrent CLI invocations fail fast instead of
blocking forever.
*/
package storage
