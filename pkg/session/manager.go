package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cuemby/agrilo/pkg/client"
	"github.com/cuemby/agrilo/pkg/events"
	"github.com/cuemby/agrilo/pkg/log"
	"github.com/cuemby/agrilo/pkg/metrics"
	"github.com/cuemby/agrilo/pkg/storage"
	"github.com/cuemby/agrilo/pkg/types"
	"github.com/rs/zerolog"
)

// State is the authentication state of the session
type State int

const (
	StateUninitialized State = iota
	StateAnonymous
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "uninitialized"
	}
}

// Reasons carried in the metadata of session.ended events
const (
	ReasonLogout  = "logout"
	ReasonExpired = "expired"
	ReasonInvalid = "invalid"
)

// ErrNotAuthenticated is returned by operations that need a logged-in user
var ErrNotAuthenticated = errors.New("not logged in")

// Manager is the source of truth for who is logged in
type Manager struct {
	client *client.Client
	tokens *Tokens
	store  storage.Store
	broker *events.Broker
	logger zerolog.Logger

	mu       sync.RWMutex
	state    State
	profile  *types.Profile
	language string
}

// NewManager creates a session manager and registers it with the client so
// an unrecoverable refresh failure ends the session. broker may be nil.
func NewManager(c *client.Client, tokens *Tokens, store storage.Store, broker *events.Broker) *Manager {
	m := &Manager{
		client:   c,
		tokens:   tokens,
		store:    store,
		broker:   broker,
		logger:   log.WithComponent("session"),
		language: types.DefaultLanguage,
	}

	lang, err := store.GetLanguage()
	if err != nil {
		m.logger.Warn().Err(err).Msg("Failed to load language preference")
	}
	if lang, err := types.NormalizeLanguage(lang); err == nil {
		m.language = lang
	}
	c.SetLanguage(m.language)
	c.OnSessionEnded(m.expire)

	return m
}

// Init resolves the startup state from the stored token. It is a no-op once
// the state is known. A network failure leaves the session uninitialized so
// Init can be retried; any other failure discards the token.
func (m *Manager) Init(ctx context.Context) error {
	if m.State() != StateUninitialized {
		return nil
	}

	if m.tokens.Token() == "" {
		if err := m.store.DeleteProfile(); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to remove stale profile")
		}
		m.transition(StateAnonymous, nil)
		return nil
	}

	profile, err := m.client.Me(ctx)
	if err != nil {
		// A failed refresh has already cleared the token, even when the
		// refresh itself failed on the network
		if !errors.Is(err, client.ErrAuthExpired) && errors.Is(err, client.ErrNetwork) {
			return fmt.Errorf("failed to restore session: %w", err)
		}

		m.logger.Info().Err(err).Msg("Stored session is no longer valid")
		if clearErr := m.tokens.Clear(); clearErr != nil {
			m.logger.Error().Err(clearErr).Msg("Failed to clear credentials")
		}
		if m.transition(StateAnonymous, nil) {
			m.publish(events.EventSessionEnded, err.Error(), map[string]string{events.MetaReason: ReasonInvalid})
		}
		return nil
	}

	if err := m.store.SaveProfile(profile); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to cache profile")
	}
	m.transition(StateAuthenticated, profile)
	m.logger.Debug().Str("user_id", profile.ID).Msg("Session restored")
	return nil
}

// Login authenticates with an email or phone number and a password
func (m *Manager) Login(ctx context.Context, identifier, password string) (*types.Profile, error) {
	auth, err := m.client.Login(ctx, identifier, password)
	if err != nil {
		return nil, err
	}
	return m.establish(auth, "password")
}

// Register creates an account and logs it in immediately
func (m *Manager) Register(ctx context.Context, reg types.Registration) (*types.Profile, error) {
	if reg.Language == "" {
		reg.Language = m.Language()
	}
	auth, err := m.client.Register(ctx, reg)
	if err != nil {
		return nil, err
	}
	return m.establish(auth, "register")
}

// LoginWithFederatedToken exchanges an externally issued identity token
// for a local session
func (m *Manager) LoginWithFederatedToken(ctx context.Context, idToken string) (*types.Profile, error) {
	auth, err := m.client.FirebaseLogin(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return m.establish(auth, "federated")
}

func (m *Manager) establish(auth *types.AuthResponse, method string) (*types.Profile, error) {
	if err := m.tokens.SetToken(auth.AccessToken); err != nil {
		return nil, err
	}

	profile := auth.Profile()
	if err := m.store.SaveProfile(profile); err != nil {
		// Keep storage consistent: no profile, no token
		if clearErr := m.tokens.Clear(); clearErr != nil {
			m.logger.Error().Err(clearErr).Msg("Failed to clear credentials")
		}
		return nil, fmt.Errorf("failed to cache profile: %w", err)
	}

	m.transition(StateAuthenticated, profile)
	userLog := log.WithUserID(profile.ID)
	userLog.Info().Str("method", method).Msg("Logged in")
	m.publish(events.EventSessionAuthenticated, "logged in", map[string]string{
		events.MetaUserID: profile.ID,
		"method":          method,
	})
	return copyProfile(profile), nil
}

// UpdateProfile sends a partial update and merges the returned fields into
// the cached profile. Fields absent from the response keep their values.
func (m *Manager) UpdateProfile(ctx context.Context, update types.ProfileUpdate) (*types.Profile, error) {
	if m.State() != StateAuthenticated {
		return nil, ErrNotAuthenticated
	}

	raw, err := m.client.UpdateMe(ctx, update)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.state != StateAuthenticated {
		m.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	merged, err := types.MergeProfile(m.profile, raw)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.profile = merged
	m.mu.Unlock()

	if err := m.store.SaveProfile(merged); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to cache profile")
	}
	m.publish(events.EventProfileUpdated, "profile updated", map[string]string{events.MetaUserID: merged.ID})
	return copyProfile(merged), nil
}

// Logout revokes the refresh cookie when possible, then clears the token
// and profile
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.client.ServerLogout(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("Server logout failed, clearing local session anyway")
	}

	err := m.tokens.Clear()
	m.transition(StateAnonymous, nil)
	m.logger.Info().Msg("Logged out")
	m.publish(events.EventSessionEnded, "logged out", map[string]string{events.MetaReason: ReasonLogout})

	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// expire is called by the client after a failed refresh, once the
// credentials have already been cleared
func (m *Manager) expire(reason error) {
	m.mu.Lock()
	if m.state != StateAuthenticated {
		m.mu.Unlock()
		return
	}
	m.state = StateAnonymous
	m.profile = nil
	m.mu.Unlock()

	m.recordTransition(StateAuthenticated, StateAnonymous)
	m.logger.Warn().Err(reason).Msg("Session expired")

	msg := "session expired"
	if reason != nil {
		msg = reason.Error()
	}
	m.publish(events.EventSessionEnded, msg, map[string]string{events.MetaReason: ReasonExpired})
}

// transition moves to state and reports whether the state changed
func (m *Manager) transition(to State, profile *types.Profile) bool {
	m.mu.Lock()
	from := m.state
	m.state = to
	m.profile = profile
	m.mu.Unlock()

	if from == to {
		return false
	}
	m.recordTransition(from, to)
	return true
}

func (m *Manager) recordTransition(from, to State) {
	metrics.SessionTransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
	m.logger.Debug().Stringer("from", from).Stringer("to", to).Msg("Session state changed")
}

func (m *Manager) publish(eventType events.EventType, msg string, metadata map[string]string) {
	if m.broker == nil {
		return
	}
	m.broker.Publish(&events.Event{Type: eventType, Message: msg, Metadata: metadata})
}

// State returns the current state
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Profile returns a copy of the cached profile, or nil when not logged in
func (m *Manager) Profile() *types.Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyProfile(m.profile)
}

// Language returns the preferred language
func (m *Manager) Language() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.language
}

// SetLanguage validates, persists and applies the preferred language
func (m *Manager) SetLanguage(lang string) error {
	lang, err := types.NormalizeLanguage(lang)
	if err != nil {
		return err
	}
	if err := m.store.SetLanguage(lang); err != nil {
		return fmt.Errorf("failed to save language: %w", err)
	}

	m.mu.Lock()
	changed := m.language != lang
	m.language = lang
	m.mu.Unlock()

	m.client.SetLanguage(lang)
	if changed {
		m.publish(events.EventLanguageChanged, lang, map[string]string{events.MetaLanguage: lang})
	}
	return nil
}

func copyProfile(p *types.Profile) *types.Profile {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Location != nil {
		loc := *p.Location
		cp.Location = &loc
	}
	if p.Settings != nil {
		settings := *p.Settings
		if p.Settings.Notifications != nil {
			n := *p.Settings.Notifications
			settings.Notifications = &n
		}
		cp.Settings = &settings
	}
	return &cp
}
