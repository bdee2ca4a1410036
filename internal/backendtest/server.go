// Package backendtest provides an in-memory fake of the agrilo backend for
// tests. It issues real access tokens and refresh cookies so the client's
// refresh-and-retry path runs end to end.
package backendtest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/agrilo/pkg/types"
	"github.com/go-chi/chi/v5"
)

const (
	// Prefix is where the API is mounted
	Prefix = "/api"

	// RefreshCookie is the name of the refresh token cookie
	RefreshCookie = "refresh_token"

	// Banner is served at the root of the origin
	Banner = "Agri-Lo API is running"
)

// Account is a registered user of the fake backend
type Account struct {
	Password string
	Profile  types.Profile
}

type failure struct {
	status int
	body   any
}

// Server is a fake backend listening on a local httptest server
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	seq       int
	accounts  map[string]*Account // by email
	federated map[string]string   // id token -> email
	access    map[string]string   // access token -> email
	refresh   map[string]string   // refresh token -> email
	counts    map[string]int
	headers   map[string]http.Header
	failures  map[string][]failure

	refreshDelay   time.Duration
	failRefresh    bool
	partialUpdates bool

	analytics     types.AnalyticsSnapshot
	soil          []types.SoilReading
	history       []types.AnalysisRecord
	similar       []types.SimilarCase
	chat          []types.ChatMessage
	appointments  []types.Appointment
	tickets       []types.SupportTicket
	analyticsHook func()
}

// New starts a fake backend and closes it when the test ends
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		accounts:  make(map[string]*Account),
		federated: make(map[string]string),
		access:    make(map[string]string),
		refresh:   make(map[string]string),
		counts:    make(map[string]int),
		headers:   make(map[string]http.Header),
		failures:  make(map[string][]failure),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// BaseURL is the URL clients should be configured with
func (s *Server) BaseURL() string {
	return s.URL + Prefix
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": Banner})
	})

	r.Route(Prefix, func(r chi.Router) {
		r.Use(s.injectFailures)

		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/firebase-login", s.handleFederatedLogin)
		r.Post("/auth/refresh", s.handleRefresh)
		r.Post("/auth/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Get("/auth/me", s.handleMe)
			r.Put("/users/me", s.handleUpdateMe)

			r.Get("/analysis/history", s.handleAnalysisHistory)
			r.Get("/analysis/similar", s.handleSimilar)
			r.Post("/analysis/detect", s.handleDetect)
			r.Post("/analysis/soil/analyze", s.handleSoilAnalyze)
			r.Post("/root/analyze", s.handleRootAnalyze)

			r.Get("/analytics/summary", s.handleAnalytics)

			r.Post("/chat/message", s.handleChat)
			r.Get("/chat/history", s.handleChatHistory)

			r.Get("/appointments/config", s.handlePaymentConfig)
			r.Post("/appointments/create_order", s.handleCreateOrder)
			r.Post("/appointments/verify_payment", s.handleVerifyPayment)
			r.Post("/appointments/book_direct", s.handleBookDirect)
			r.Get("/appointments/my_appointments", s.handleMyAppointments)

			r.Post("/support/ticket", s.handleTicket)
		})

		// Sensor data is public
		r.Get("/soil/latest", s.handleSoilLatest)
		r.Get("/soil/history", s.handleSoilHistory)
	})

	return r
}

func routeKey(method, path string) string {
	return method + " " + strings.TrimPrefix(path, Prefix)
}

// record counts every request and keeps the headers of the last one per route
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := routeKey(r.Method, r.URL.Path)
		s.mu.Lock()
		s.counts[key]++
		s.headers[key] = r.Header.Clone()
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := routeKey(r.Method, r.URL.Path)
		s.mu.Lock()
		queue := s.failures[key]
		var f *failure
		if len(queue) > 0 {
			f = &queue[0]
			s.failures[key] = queue[1:]
		}
		s.mu.Unlock()

		if f != nil {
			writeJSON(w, f.status, f.body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type ctxKey struct{}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		email, valid := s.access[token]
		s.mu.Unlock()

		if !ok || !valid {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, email)))
	})
}

func (s *Server) currentAccount(r *http.Request) *Account {
	email, _ := r.Context().Value(ctxKey{}).(string)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[email]
}

// AddAccount registers a user that can log in with email and password
func (s *Server) AddAccount(email, password, name string) *types.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	notifications := types.DefaultNotificationSettings()
	acct := &Account{
		Password: password,
		Profile: types.Profile{
			ID:       fmt.Sprintf("user-%d", s.seq),
			Name:     name,
			Email:    email,
			Role:     types.RoleFarmer,
			Language: types.DefaultLanguage,
			Settings: &types.Settings{Notifications: &notifications},
			IsActive: true,
		},
	}
	s.accounts[email] = acct
	profile := acct.Profile
	return &profile
}

// AddFederatedToken lets idToken log in as the account with email
func (s *Server) AddFederatedToken(idToken, email string) {
	s.mu.Lock()
	s.federated[idToken] = email
	s.mu.Unlock()
}

// Grant issues an access token for email without a login round trip
func (s *Server) Grant(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueAccessLocked(email)
}

// GrantRefresh issues a refresh token for email, to be set as a cookie
func (s *Server) GrantRefresh(email string) *http.Cookie {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &http.Cookie{Name: RefreshCookie, Value: s.issueRefreshLocked(email), Path: "/"}
}

// ExpireAccessTokens invalidates every access token issued so far
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	s.access = make(map[string]string)
	s.mu.Unlock()
}

// FailRefresh makes every refresh answer 401
func (s *Server) FailRefresh(fail bool) {
	s.mu.Lock()
	s.failRefresh = fail
	s.mu.Unlock()
}

// SetRefreshDelay delays refresh responses
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.mu.Lock()
	s.refreshDelay = d
	s.mu.Unlock()
}

// PartialProfileUpdates makes PUT /users/me echo only the updated fields
func (s *Server) PartialProfileUpdates(partial bool) {
	s.mu.Lock()
	s.partialUpdates = partial
	s.mu.Unlock()
}

// FailNext queues a canned response for the next request to method and path
// (path relative to Prefix). body is encoded as JSON.
func (s *Server) FailNext(method, path string, status int, body any) {
	key := method + " " + path
	s.mu.Lock()
	s.failures[key] = append(s.failures[key], failure{status: status, body: body})
	s.mu.Unlock()
}

// Count returns how many requests reached method and path
func (s *Server) Count(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[method+" "+path]
}

// LastHeader returns the headers of the last request to method and path
func (s *Server) LastHeader(method, path string) http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headers[method+" "+path]
}

// IsValidAccess reports whether token is a live access token
func (s *Server) IsValidAccess(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.access[token]
	return ok
}

// SetAnalytics replaces the analytics summary
func (s *Server) SetAnalytics(snapshot types.AnalyticsSnapshot) {
	s.mu.Lock()
	s.analytics = snapshot
	s.mu.Unlock()
}

// OnAnalytics runs fn before each analytics summary is served
func (s *Server) OnAnalytics(fn func()) {
	s.mu.Lock()
	s.analyticsHook = fn
	s.mu.Unlock()
}

// AddSoilReading appends a sensor reading; the last one added is the latest
func (s *Server) AddSoilReading(reading types.SoilReading) {
	s.mu.Lock()
	s.soil = append(s.soil, reading)
	s.mu.Unlock()
}

// AddAnalysis appends a scan to the history
func (s *Server) AddAnalysis(record types.AnalysisRecord) {
	s.mu.Lock()
	s.history = append(s.history, record)
	s.mu.Unlock()
}

// AddSimilarCase registers a case returned by the similar cases endpoint
func (s *Server) AddSimilarCase(c types.SimilarCase) {
	s.mu.Lock()
	s.similar = append(s.similar, c)
	s.mu.Unlock()
}

// Tickets returns the support tickets received so far
func (s *Server) Tickets() []types.SupportTicket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.SupportTicket(nil), s.tickets...)
}

func (s *Server) issueAccessLocked(email string) string {
	s.seq++
	token := fmt.Sprintf("access-%d", s.seq)
	s.access[token] = email
	return token
}

func (s *Server) issueRefreshLocked(email string) string {
	s.seq++
	token := fmt.Sprintf("refresh-%d", s.seq)
	s.refresh[token] = email
	return token
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail any) {
	writeJSON(w, status, map[string]any{"detail": detail})
}

func decode(r *http.Request, v any) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
