package client

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/agrilo/internal/backendtest"
	"github.com/cuemby/agrilo/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCreds struct {
	mu      sync.Mutex
	token   string
	cleared int
}

func (m *memCreds) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

func (m *memCreds) SetToken(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *memCreds) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.cleared++
	return nil
}

func (m *memCreds) clearCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleared
}

const (
	testEmail    = "asha@example.com"
	testPassword = "s3cret"
)

// newSession returns a client logged in to a fresh fake backend
func newSession(t *testing.T) (*Client, *memCreds, *backendtest.Server) {
	t.Helper()

	srv := backendtest.New(t)
	srv.AddAccount(testEmail, testPassword, "Asha")

	creds := &memCreds{}
	c, err := New(Config{BaseURL: srv.BaseURL(), Timeout: 5 * time.Second}, creds)
	require.NoError(t, err)

	auth, err := c.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	require.NoError(t, creds.SetToken(auth.AccessToken))

	return c, creds, srv
}

func TestNewValidatesBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{name: "http with prefix", baseURL: "http://localhost:5000/api"},
		{name: "https trailing slash", baseURL: "https://agrilo.example.com/api/"},
		{name: "missing scheme", baseURL: "localhost:5000", wantErr: true},
		{name: "unsupported scheme", baseURL: "ftp://localhost", wantErr: true},
		{name: "empty", baseURL: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(Config{BaseURL: tt.baseURL}, &memCreds{})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.False(t, strings.HasSuffix(c.BaseURL(), "/"))
		})
	}
}

func TestDoAttachesBearerToken(t *testing.T) {
	c, creds, srv := newSession(t)
	c.SetLanguage("hi")

	profile, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testEmail, profile.Email)

	h := srv.LastHeader(http.MethodGet, "/auth/me")
	assert.Equal(t, "Bearer "+creds.Token(), h.Get("Authorization"))
	assert.Equal(t, "hi", h.Get("Accept-Language"))
	assert.NotEmpty(t, h.Get("X-Request-ID"))
}

func TestDoOmitsBearerWithoutToken(t *testing.T) {
	srv := backendtest.New(t)
	srv.AddSoilReading(types.SoilReading{NodeID: "node-1", Nitrogen: 40})

	c, err := New(Config{BaseURL: srv.BaseURL()}, &memCreds{})
	require.NoError(t, err)

	reading, err := c.LatestSoil(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "node-1", reading.NodeID)
	assert.Empty(t, srv.LastHeader(http.MethodGet, "/soil/latest").Get("Authorization"))
}

func TestDoRefreshesOnceAndRetries(t *testing.T) {
	c, creds, srv := newSession(t)
	old := creds.Token()
	srv.ExpireAccessTokens()

	profile, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Asha", profile.Name)

	assert.Equal(t, 1, srv.Count(http.MethodPost, "/auth/refresh"))
	assert.Equal(t, 2, srv.Count(http.MethodGet, "/auth/me"))
	assert.NotEqual(t, old, creds.Token())
	assert.True(t, srv.IsValidAccess(creds.Token()))
	assert.Equal(t, "Bearer "+creds.Token(), srv.LastHeader(http.MethodGet, "/auth/me").Get("Authorization"))
}

func TestDoRetriedRequestIsTerminal(t *testing.T) {
	c, creds, srv := newSession(t)
	detail := map[string]string{"detail": "Could not validate credentials"}
	srv.FailNext(http.MethodGet, "/auth/me", http.StatusUnauthorized, detail)
	srv.FailNext(http.MethodGet, "/auth/me", http.StatusUnauthorized, detail)

	var ended atomic.Int32
	c.OnSessionEnded(func(error) { ended.Add(1) })

	_, err := c.Me(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuthExpired))
	assert.Equal(t, "Could not validate credentials", err.Error())

	assert.Equal(t, 1, srv.Count(http.MethodPost, "/auth/refresh"))
	assert.Equal(t, 2, srv.Count(http.MethodGet, "/auth/me"))
	// The refresh itself succeeded, so the session is intact
	assert.Zero(t, ended.Load())
	assert.NotEmpty(t, creds.Token())
}

func TestRefreshEndpoint401IsTerminal(t *testing.T) {
	srv := backendtest.New(t)
	creds := &memCreds{token: "stale"}
	c, err := New(Config{BaseURL: srv.BaseURL()}, creds)
	require.NoError(t, err)

	var ended atomic.Int32
	c.OnSessionEnded(func(error) { ended.Add(1) })

	_, err = c.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuthExpired))
	assert.Equal(t, "Refresh token missing", err.Error())

	assert.Equal(t, 1, srv.Count(http.MethodPost, "/auth/refresh"))
	assert.Empty(t, srv.LastHeader(http.MethodPost, "/auth/refresh").Get("Authorization"))
	assert.Equal(t, int32(1), ended.Load())
	assert.Empty(t, creds.Token())
}

func TestRefreshFailureClearsAndSignalsOnce(t *testing.T) {
	c, creds, srv := newSession(t)
	srv.ExpireAccessTokens()
	srv.FailRefresh(true)

	var reasons []error
	var mu sync.Mutex
	c.OnSessionEnded(func(reason error) {
		mu.Lock()
		reasons = append(reasons, reason)
		mu.Unlock()
	})

	_, err := c.Me(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuthExpired))

	assert.Empty(t, creds.Token())
	assert.Equal(t, 1, creds.clearCount())
	assert.Equal(t, 1, srv.Count(http.MethodPost, "/auth/refresh"))
	assert.Equal(t, 1, srv.Count(http.MethodGet, "/auth/me"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reasons, 1)
	assert.True(t, errors.Is(reasons[0], ErrAuthExpired))
}

func TestConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	c, creds, srv := newSession(t)
	srv.ExpireAccessTokens()
	srv.SetRefreshDelay(100 * time.Millisecond)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Me(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, srv.Count(http.MethodPost, "/auth/refresh"))
	assert.True(t, srv.IsValidAccess(creds.Token()))
}

func TestConcurrentRefreshFailureSignalsOnce(t *testing.T) {
	c, creds, srv := newSession(t)
	srv.ExpireAccessTokens()
	srv.FailRefresh(true)
	srv.SetRefreshDelay(100 * time.Millisecond)

	var ended atomic.Int32
	c.OnSessionEnded(func(error) { ended.Add(1) })

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Me(context.Background())
			assert.True(t, errors.Is(err, ErrAuthExpired))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ended.Load())
	assert.Equal(t, 1, srv.Count(http.MethodPost, "/auth/refresh"))
	assert.Empty(t, creds.Token())
}

func TestRefreshUsesExistingCookie(t *testing.T) {
	srv := backendtest.New(t)
	srv.AddAccount(testEmail, testPassword, "Asha")

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	jar.SetCookies(u, []*http.Cookie{srv.GrantRefresh(testEmail)})

	creds := &memCreds{}
	c, err := New(Config{BaseURL: srv.BaseURL()}, creds, WithCookieJar(jar))
	require.NoError(t, err)

	token, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, token, creds.Token())
	assert.True(t, srv.IsValidAccess(token))
}

func TestLoginRejectedWithoutRefresh(t *testing.T) {
	srv := backendtest.New(t)
	srv.AddAccount(testEmail, testPassword, "Asha")

	c, err := New(Config{BaseURL: srv.BaseURL()}, &memCreds{})
	require.NoError(t, err)

	_, err = c.Login(context.Background(), testEmail, "wrong")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "Incorrect email or password", err.Error())
	assert.Zero(t, srv.Count(http.MethodPost, "/auth/refresh"))

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestLoginSendsForm(t *testing.T) {
	_, _, srv := newSession(t)

	h := srv.LastHeader(http.MethodPost, "/auth/login")
	assert.Equal(t, contentTypeForm, h.Get("Content-Type"))
	assert.Empty(t, h.Get("Authorization"))
}

func TestDoClassifiesErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     any
		sentinel error
		message  string
		fields   int
	}{
		{
			name:     "server error",
			status:   http.StatusInternalServerError,
			body:     map[string]string{"detail": "Registration failed: db down"},
			sentinel: ErrServer,
			message:  "Registration failed: db down",
			fields:   1,
		},
		{
			name:     "server error without body",
			status:   http.StatusBadGateway,
			sentinel: ErrServer,
			message:  "HTTP 502 Bad Gateway",
		},
		{
			name:   "validation list",
			status: http.StatusUnprocessableEntity,
			body: map[string]any{"detail": []map[string]any{
				{"loc": []string{"body", "email"}, "msg": "value is not a valid email address", "type": "value_error"},
				{"loc": []string{"body", "password"}, "msg": "Field required", "type": "missing"},
			}},
			sentinel: ErrValidation,
			message:  "email: value is not a valid email address, password: Field required",
			fields:   2,
		},
		{
			name:     "validation message",
			status:   http.StatusBadRequest,
			body:     map[string]string{"detail": "Email already registered"},
			sentinel: ErrValidation,
			message:  "Email already registered",
			fields:   1,
		},
		{
			name:     "bad request without detail",
			status:   http.StatusBadRequest,
			body:     map[string]string{"error": "nope"},
			sentinel: ErrUnknown,
			message:  "HTTP 400 Bad Request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := backendtest.New(t)
			srv.FailNext(http.MethodPost, "/auth/register", tt.status, tt.body)

			c, err := New(Config{BaseURL: srv.BaseURL()}, &memCreds{})
			require.NoError(t, err)

			_, err = c.Register(context.Background(), types.Registration{
				Name: "Asha", Email: testEmail, Password: testPassword,
			})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.sentinel), "got kind %s", KindOf(err))
			assert.Equal(t, tt.message, err.Error())

			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Len(t, apiErr.Fields, tt.fields)
		})
	}
}

func TestDoNetworkError(t *testing.T) {
	srv := backendtest.New(t)
	baseURL := srv.BaseURL()
	srv.Close()

	c, err := New(Config{BaseURL: baseURL, Timeout: time.Second}, &memCreds{token: "t"})
	require.NoError(t, err)

	_, err = c.Me(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetwork))
	assert.Equal(t, KindNetwork, KindOf(err))
}

func TestDoContextCanceled(t *testing.T) {
	c, _, _ := newSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Me(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetwork))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestLatestSoilNotFound(t *testing.T) {
	srv := backendtest.New(t)
	c, err := New(Config{BaseURL: srv.BaseURL()}, &memCreds{})
	require.NoError(t, err)

	_, err = c.LatestSoil(context.Background())
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "No sensor data found", err.Error())
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestDetectDiseaseUploadsImage(t *testing.T) {
	c, _, srv := newSession(t)

	result, err := c.DetectDisease(context.Background(), "leaf.png", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.Equal(t, "Tomato Early Blight", result.Disease)
	assert.Equal(t, "image/png", result.Treatment["content_type"])
	assert.Equal(t, float64(len(pngHeader)), result.Treatment["bytes"])
	assert.False(t, result.Healthy())

	assert.Contains(t, srv.LastHeader(http.MethodPost, "/analysis/detect").Get("Content-Type"), "multipart/form-data")
}

func TestDetectDiseaseRetriesUploadAfterRefresh(t *testing.T) {
	c, _, srv := newSession(t)
	srv.ExpireAccessTokens()

	result, err := c.DetectDisease(context.Background(), "leaf.png", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.Equal(t, float64(len(pngHeader)), result.Treatment["bytes"])
	assert.Equal(t, 2, srv.Count(http.MethodPost, "/analysis/detect"))
	assert.Equal(t, 1, srv.Count(http.MethodPost, "/auth/refresh"))
}

func TestUploadRejectsInvalidFiles(t *testing.T) {
	c, _, srv := newSession(t)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "not an image", data: []byte("plain text, not a picture")},
		{name: "too large", data: append(append([]byte{}, pngHeader...), make([]byte, MaxUploadSize)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.AnalyzeRoot(context.Background(), "root.png", bytes.NewReader(tt.data))
			assert.Error(t, err)
		})
	}
	assert.Zero(t, srv.Count(http.MethodPost, "/root/analyze"))
}

func TestUpdateMeReturnsRawFields(t *testing.T) {
	c, _, srv := newSession(t)
	srv.PartialProfileUpdates(true)

	name := "Asha Patil"
	raw, err := c.UpdateMe(context.Background(), types.ProfileUpdate{Name: &name})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Asha Patil"}`, string(raw))

	_, err = c.UpdateMe(context.Background(), types.ProfileUpdate{})
	assert.Error(t, err)
}

func TestEndpointsRoundTrip(t *testing.T) {
	c, _, srv := newSession(t)
	ctx := context.Background()

	srv.AddSimilarCase(types.SimilarCase{ID: "case-1", Disease: "Tomato Early Blight", Location: "Nashik"})
	srv.AddSimilarCase(types.SimilarCase{ID: "case-2", Disease: "Leaf Rust"})
	srv.AddSoilReading(types.SoilReading{NodeID: "node-1", Nitrogen: 30})
	srv.AddSoilReading(types.SoilReading{NodeID: "node-1", Nitrogen: 45})
	srv.SetAnalytics(types.AnalyticsSnapshot{DiseaseStats: []types.DiseaseStat{{Name: "Leaf Rust", Count: 3}}})

	similar, err := c.SimilarCases(ctx, "Tomato Early Blight")
	require.NoError(t, err)
	require.Len(t, similar, 1)
	assert.Equal(t, "Nashik", similar[0].Location)

	history, err := c.SoilHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 45, history[0].Nitrogen)

	summary, err := c.AnalyticsSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.DiseaseStats[0].Count)

	analysis, err := c.AnalyzeSoil(ctx, types.SoilSample{Nitrogen: 30, Phosphorus: 40, Potassium: 40, PH: 5.5, Moisture: 40, Rainfall: 100})
	require.NoError(t, err)
	assert.Equal(t, "Needs Attention", analysis.HealthStatus)
	assert.Len(t, analysis.Recommendations, 2)

	reply, err := c.SendChat(ctx, "when should I water?", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", reply.Language)

	chat, err := c.ChatHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, chat, 2)

	booked, err := c.BookDirect(ctx, types.Booking{Name: "Asha", Phone: "9999999999", Address: "Nashik", Date: "2026-11-02"})
	require.NoError(t, err)
	assert.NotEmpty(t, booked.AppointmentID)

	order, err := c.CreateOrder(ctx, BookingAmount, "")
	require.NoError(t, err)
	assert.Equal(t, int64(19900), order.Amount)
	assert.Equal(t, BookingCurrency, order.Currency)

	_, err = c.VerifyPayment(ctx, types.PaymentVerification{
		OrderID: order.ID, PaymentID: "pay_1", Signature: "forged",
		AppointmentDetails: types.Booking{Name: "Asha", Phone: "9999999999", Address: "Nashik", Date: "2026-11-03"},
	})
	assert.True(t, errors.Is(err, ErrValidation))

	paid, err := c.VerifyPayment(ctx, types.PaymentVerification{
		OrderID: order.ID, PaymentID: "pay_1", Signature: "valid",
		AppointmentDetails: types.Booking{Name: "Asha", Phone: "9999999999", Address: "Nashik", Date: "2026-11-03"},
	})
	require.NoError(t, err)
	assert.NotEqual(t, booked.AppointmentID, paid.AppointmentID)

	appointments, err := c.MyAppointments(ctx)
	require.NoError(t, err)
	require.Len(t, appointments, 2)
	assert.Equal(t, types.AppointmentConfirmed, appointments[0].Status)
	assert.Equal(t, types.AppointmentPending, appointments[1].Status)

	cfg, err := c.PaymentConfig(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Key)

	ticket, err := c.SubmitTicket(ctx, "Sensor offline", "Node 1 stopped reporting")
	require.NoError(t, err)
	assert.Equal(t, "success", ticket.Status)
	assert.Len(t, srv.Tickets(), 1)

	records, err := c.AnalysisHistory(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestServerLogoutRevokesRefreshCookie(t *testing.T) {
	c, _, srv := newSession(t)
	ctx := context.Background()

	require.NoError(t, c.ServerLogout(ctx))

	_, err := c.Refresh(ctx)
	assert.True(t, errors.Is(err, ErrAuthExpired))
	assert.Equal(t, 1, srv.Count(http.MethodPost, "/auth/logout"))
}
