package storage

import (
	"github.com/cuemby/agrilo/pkg/types"
)

// Well-known keys of the persisted client state
const (
	KeyAccessToken = "access_token"
	KeyUser        = "user"
	KeyLanguage    = "appLang"
)

// Store defines the interface for durable client-side state.
// Getters return the zero value and a nil error when nothing is stored.
type Store interface {
	// Session
	GetToken() (string, error)
	SetToken(token string) error
	DeleteToken() error

	// Cached profile
	GetProfile() (*types.Profile, error)
	SaveProfile(profile *types.Profile) error
	DeleteProfile() error

	// Preferences
	GetLanguage() (string, error)
	SetLanguage(lang string) error

	// Last good snapshot per polling view
	GetSnapshot(view string) ([]byte, error)
	SaveSnapshot(view string, data []byte) error

	// Utility
	Close() error
}
