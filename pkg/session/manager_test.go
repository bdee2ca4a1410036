package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/cuemby/agrilo/internal/backendtest"
	"github.com/cuemby/agrilo/pkg/client"
	"github.com/cuemby/agrilo/pkg/events"
	"github.com/cuemby/agrilo/pkg/storage"
	"github.com/cuemby/agrilo/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "asha@example.com"
	testPassword = "s3cret"
)

type fixture struct {
	srv     *backendtest.Server
	store   *storage.MemoryStore
	tokens  *Tokens
	client  *client.Client
	broker  *events.Broker
	manager *Manager
}

// newFixture wires a manager to a fake backend. seed runs against the store
// before the token holder loads from it.
func newFixture(t *testing.T, seed func(*backendtest.Server, *storage.MemoryStore)) *fixture {
	t.Helper()

	srv := backendtest.New(t)
	srv.AddAccount(testEmail, testPassword, "Asha")

	store := storage.NewMemoryStore()
	if seed != nil {
		seed(srv, store)
	}

	tokens, err := NewTokens(store)
	require.NoError(t, err)

	c, err := client.New(client.Config{BaseURL: srv.BaseURL(), Timeout: 5 * time.Second}, tokens)
	require.NoError(t, err)

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	return &fixture{
		srv:     srv,
		store:   store,
		tokens:  tokens,
		client:  c,
		broker:  broker,
		manager: NewManager(c, tokens, store, broker),
	}
}

func waitEvent(t *testing.T, sub events.Subscriber, eventType events.EventType) *events.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case event := <-sub:
			if event.Type == eventType {
				return event
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", eventType)
			return nil
		}
	}
}

func assertNoEvent(t *testing.T, sub events.Subscriber, eventType events.EventType) {
	t.Helper()
	timeout := time.After(200 * time.Millisecond)
	for {
		select {
		case event := <-sub:
			if event.Type == eventType {
				t.Fatalf("unexpected %s event: %s", eventType, event.Message)
			}
		case <-timeout:
			return
		}
	}
}

func TestInitWithoutToken(t *testing.T) {
	f := newFixture(t, func(_ *backendtest.Server, store *storage.MemoryStore) {
		require.NoError(t, store.SaveProfile(&types.Profile{Name: "stale"}))
	})
	assert.Equal(t, StateUninitialized, f.manager.State())

	require.NoError(t, f.manager.Init(context.Background()))
	assert.Equal(t, StateAnonymous, f.manager.State())
	assert.Nil(t, f.manager.Profile())
	assert.Zero(t, f.srv.Count(http.MethodGet, "/auth/me"))

	profile, err := f.store.GetProfile()
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestInitWithValidToken(t *testing.T) {
	f := newFixture(t, func(srv *backendtest.Server, store *storage.MemoryStore) {
		require.NoError(t, store.SetToken(srv.Grant(testEmail)))
	})

	require.NoError(t, f.manager.Init(context.Background()))
	assert.Equal(t, StateAuthenticated, f.manager.State())
	assert.Equal(t, testEmail, f.manager.Profile().Email)

	cached, err := f.store.GetProfile()
	require.NoError(t, err)
	assert.Equal(t, "Asha", cached.Name)

	// Init runs once
	require.NoError(t, f.manager.Init(context.Background()))
	assert.Equal(t, 1, f.srv.Count(http.MethodGet, "/auth/me"))
}

func TestInitWithRejectedToken(t *testing.T) {
	f := newFixture(t, func(_ *backendtest.Server, store *storage.MemoryStore) {
		require.NoError(t, store.SetToken("revoked"))
	})
	sub := f.broker.Subscribe()

	require.NoError(t, f.manager.Init(context.Background()))
	assert.Equal(t, StateAnonymous, f.manager.State())
	assert.Empty(t, f.tokens.Token())

	token, err := f.store.GetToken()
	require.NoError(t, err)
	assert.Empty(t, token)

	event := waitEvent(t, sub, events.EventSessionEnded)
	assert.Equal(t, ReasonInvalid, event.Metadata["reason"])
}

func TestInitNetworkFailureKeepsToken(t *testing.T) {
	f := newFixture(t, func(_ *backendtest.Server, store *storage.MemoryStore) {
		require.NoError(t, store.SetToken("kept"))
	})
	f.srv.Close()

	err := f.manager.Init(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, client.ErrNetwork))
	assert.Equal(t, StateUninitialized, f.manager.State())
	assert.Equal(t, "kept", f.tokens.Token())
}

// refreshFails drops the connection on refresh calls and passes the rest
type refreshFails struct{}

func (refreshFails) RoundTrip(req *http.Request) (*http.Response, error) {
	if strings.HasSuffix(req.URL.Path, "/auth/refresh") {
		return nil, errors.New("connection reset by peer")
	}
	return http.DefaultTransport.RoundTrip(req)
}

func TestInitRefreshNetworkFailureEndsSession(t *testing.T) {
	f := newFixture(t, func(_ *backendtest.Server, store *storage.MemoryStore) {
		require.NoError(t, store.SetToken("revoked"))
	})
	c, err := client.New(client.Config{BaseURL: f.srv.BaseURL(), Timeout: 5 * time.Second}, f.tokens,
		client.WithHTTPClient(&http.Client{Transport: refreshFails{}}))
	require.NoError(t, err)
	manager := NewManager(c, f.tokens, f.store, f.broker)
	sub := f.broker.Subscribe()

	require.NoError(t, manager.Init(context.Background()))
	assert.Equal(t, StateAnonymous, manager.State())
	assert.Empty(t, f.tokens.Token())

	token, err := f.store.GetToken()
	require.NoError(t, err)
	assert.Empty(t, token)

	event := waitEvent(t, sub, events.EventSessionEnded)
	assert.Equal(t, ReasonInvalid, event.Metadata[events.MetaReason])
}

func TestLoginStoresTokenAndProfile(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.manager.Init(context.Background()))
	sub := f.broker.Subscribe()

	profile, err := f.manager.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	assert.Equal(t, "Asha", profile.Name)
	assert.Equal(t, StateAuthenticated, f.manager.State())

	token, err := f.store.GetToken()
	require.NoError(t, err)
	assert.True(t, f.srv.IsValidAccess(token))

	cached, err := f.store.GetProfile()
	require.NoError(t, err)
	assert.Equal(t, testEmail, cached.Email)

	event := waitEvent(t, sub, events.EventSessionAuthenticated)
	assert.Equal(t, "password", event.Metadata["method"])
	assert.Equal(t, profile.ID, event.Metadata["user_id"])
}

func TestLoginFailureStaysAnonymous(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.manager.Init(context.Background()))

	_, err := f.manager.Login(context.Background(), testEmail, "wrong")
	require.Error(t, err)
	assert.Equal(t, "Incorrect email or password", err.Error())
	assert.Equal(t, StateAnonymous, f.manager.State())
	assert.Empty(t, f.tokens.Token())
}

func TestRegisterLogsIn(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.manager.SetLanguage("mr"))

	profile, err := f.manager.Register(context.Background(), types.Registration{
		Name:     "Ravi",
		Email:    "ravi@example.com",
		Password: "pw",
		Phone:    "9876543210",
	})
	require.NoError(t, err)
	assert.Equal(t, "mr", profile.Language)
	assert.Equal(t, "9876543210", profile.Phone)
	assert.Equal(t, StateAuthenticated, f.manager.State())
	assert.NotEmpty(t, f.tokens.Token())

	_, err = f.manager.Register(context.Background(), types.Registration{
		Name: "Ravi", Email: "ravi@example.com", Password: "pw",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, client.ErrValidation))
	assert.Equal(t, "Email already registered", err.Error())
}

func TestLoginWithFederatedToken(t *testing.T) {
	f := newFixture(t, nil)
	f.srv.AddFederatedToken("firebase-id-token", testEmail)

	profile, err := f.manager.LoginWithFederatedToken(context.Background(), "firebase-id-token")
	require.NoError(t, err)
	assert.Equal(t, testEmail, profile.Email)
	assert.Equal(t, StateAuthenticated, f.manager.State())

	_, err = f.manager.LoginWithFederatedToken(context.Background(), "forged")
	require.Error(t, err)
}

func TestUpdateProfileMergesReturnedFields(t *testing.T) {
	f := newFixture(t, nil)
	f.srv.PartialProfileUpdates(true)
	sub := f.broker.Subscribe()

	before, err := f.manager.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	name := "Asha Patil"
	location := types.Location{Village: "Pimpalgaon", District: "Nashik"}
	after, err := f.manager.UpdateProfile(context.Background(), types.ProfileUpdate{
		Name:     &name,
		Location: &location,
	})
	require.NoError(t, err)

	assert.Equal(t, "Asha Patil", after.Name)
	assert.Equal(t, "Nashik", after.Location.District)
	// Fields the backend did not echo keep their previous values
	assert.Equal(t, before.Email, after.Email)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, before.Role, after.Role)
	assert.Equal(t, before.Language, after.Language)

	cached, err := f.store.GetProfile()
	require.NoError(t, err)
	assert.Equal(t, "Asha Patil", cached.Name)
	assert.Equal(t, before.Email, cached.Email)

	waitEvent(t, sub, events.EventProfileUpdated)
	assert.Equal(t, StateAuthenticated, f.manager.State())
}

func TestUpdateProfileRequiresLogin(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.manager.Init(context.Background()))

	name := "x"
	_, err := f.manager.UpdateProfile(context.Background(), types.ProfileUpdate{Name: &name})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Zero(t, f.srv.Count(http.MethodPut, "/users/me"))
}

func TestProfileReturnsCopy(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.manager.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	p := f.manager.Profile()
	p.Name = "mutated"
	assert.Equal(t, "Asha", f.manager.Profile().Name)
}

func TestLogoutClearsSession(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.manager.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	sub := f.broker.Subscribe()

	require.NoError(t, f.manager.Logout(context.Background()))
	assert.Equal(t, StateAnonymous, f.manager.State())
	assert.Nil(t, f.manager.Profile())
	assert.Empty(t, f.tokens.Token())
	assert.Equal(t, 1, f.srv.Count(http.MethodPost, "/auth/logout"))

	token, err := f.store.GetToken()
	require.NoError(t, err)
	assert.Empty(t, token)
	profile, err := f.store.GetProfile()
	require.NoError(t, err)
	assert.Nil(t, profile)

	event := waitEvent(t, sub, events.EventSessionEnded)
	assert.Equal(t, ReasonLogout, event.Metadata["reason"])

	// The refresh cookie is gone with the session
	_, err = f.client.Refresh(context.Background())
	assert.True(t, errors.Is(err, client.ErrAuthExpired))
}

func TestLogoutSurvivesUnreachableServer(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.manager.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	f.srv.Close()

	require.NoError(t, f.manager.Logout(context.Background()))
	assert.Equal(t, StateAnonymous, f.manager.State())
	assert.Empty(t, f.tokens.Token())
}

func TestRefreshFailureEndsSessionOnce(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.manager.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	sub := f.broker.Subscribe()

	f.srv.ExpireAccessTokens()
	f.srv.FailRefresh(true)

	_, err = f.client.AnalyticsSummary(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, client.ErrAuthExpired))

	assert.Equal(t, StateAnonymous, f.manager.State())
	assert.Nil(t, f.manager.Profile())
	token, err := f.store.GetToken()
	require.NoError(t, err)
	assert.Empty(t, token)

	event := waitEvent(t, sub, events.EventSessionEnded)
	assert.Equal(t, ReasonExpired, event.Metadata["reason"])

	// Later failures do not end the session again
	_, err = f.client.AnalyticsSummary(context.Background())
	require.Error(t, err)
	assertNoEvent(t, sub, events.EventSessionEnded)
}

func TestSessionSurvivesSuccessfulRefresh(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.manager.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	before := f.tokens.Token()

	f.srv.ExpireAccessTokens()
	_, err = f.client.AnalyticsSummary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateAuthenticated, f.manager.State())
	assert.NotEqual(t, before, f.tokens.Token())
	stored, err := f.store.GetToken()
	require.NoError(t, err)
	assert.Equal(t, f.tokens.Token(), stored)
}

func TestSetLanguage(t *testing.T) {
	f := newFixture(t, func(_ *backendtest.Server, store *storage.MemoryStore) {
		require.NoError(t, store.SetLanguage("hi"))
	})
	assert.Equal(t, "hi", f.manager.Language())
	sub := f.broker.Subscribe()

	assert.Error(t, f.manager.SetLanguage("fr"))
	assert.Equal(t, "hi", f.manager.Language())

	require.NoError(t, f.manager.SetLanguage(" MR "))
	assert.Equal(t, "mr", f.manager.Language())

	stored, err := f.store.GetLanguage()
	require.NoError(t, err)
	assert.Equal(t, "mr", stored)

	event := waitEvent(t, sub, events.EventLanguageChanged)
	assert.Equal(t, "mr", event.Metadata["language"])

	_, _ = f.client.LatestSoil(context.Background())
	assert.Equal(t, "mr", f.srv.LastHeader(http.MethodGet, "/soil/latest").Get("Accept-Language"))
}

func TestUnsupportedStoredLanguageFallsBack(t *testing.T) {
	f := newFixture(t, func(_ *backendtest.Server, store *storage.MemoryStore) {
		require.NoError(t, store.SetLanguage("xx"))
	})
	assert.Equal(t, types.DefaultLanguage, f.manager.Language())
}
