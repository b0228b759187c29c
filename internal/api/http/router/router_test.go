package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	httpcontext "github.com/dtroode/accessgate/internal/api/http/context"
	"github.com/dtroode/accessgate/internal/api/http/middleware"
	"github.com/dtroode/accessgate/internal/clock"
	"github.com/dtroode/accessgate/internal/credential"
	"github.com/dtroode/accessgate/internal/metrics"
	"github.com/dtroode/accessgate/internal/model"
	"github.com/dtroode/accessgate/internal/payment"
	"github.com/dtroode/accessgate/internal/repository/memory"
	"github.com/dtroode/accessgate/internal/service"
	"github.com/dtroode/accessgate/internal/session"
	"github.com/dtroode/accessgate/internal/testutil"
	"github.com/dtroode/accessgate/internal/token"
)

const (
	testWebhookSecret = "whsec_router"
	testAdminKey      = "admin-key"
	testFrontend      = "http://frontend.local/auth/callback"
)

var start = time.Date(2026, time.March, 3, 12, 0, 0, 0, time.UTC)

type stubExchanger struct {
	profiles map[string]credential.ExternalProfile
}

func (s *stubExchanger) AuthCodeURL(provider, state string) (string, error) {
	if provider != credential.ProviderGoogle {
		return "", model.ErrUnknownProvider
	}
	return "https://accounts.example/auth?state=" + state, nil
}

func (s *stubExchanger) Exchange(ctx context.Context, provider, code string) (credential.ExternalProfile, error) {
	p, ok := s.profiles[code]
	if !ok {
		return credential.ExternalProfile{}, model.ErrExchangeFailed
	}
	return p, nil
}

type fixture struct {
	engine      *gin.Engine
	clock       *clock.FakeClock
	invitations *memory.InvitationRepository
	payments    *memory.PaymentRepository
	exchanger   *stubExchanger
	metrics     *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, Options{FrontendRedirectURL: testFrontend, AdminKey: testAdminKey}, 1000, 1000)
}

func newFixtureWith(t *testing.T, opts Options, rps float64, burst int) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := memory.NewDB()
	users := memory.NewUserRepository(db)
	f := &fixture{
		clock:       clock.Fake(start),
		invitations: memory.NewInvitationRepository(db),
		payments:    memory.NewPaymentRepository(db),
		exchanger:   &stubExchanger{profiles: map[string]credential.ExternalProfile{}},
		metrics:     metrics.New(),
	}

	log := testutil.MakeNoopLogger()
	jwt := token.NewJWT("secret", f.clock)
	hasher := credential.NewBcrypt(bcrypt.MinCost)
	verifier, err := credential.NewLocal(users, hasher)
	require.NoError(t, err)

	issuer := session.NewIssuer(users, f.invitations, f.payments, jwt, f.clock, 4*time.Hour, f.metrics, log)
	auth := service.NewAuth(users, users, verifier, hasher, f.exchanger, issuer, f.clock, false, log)
	pay := service.NewPayment(f.payments, nil, nil, testWebhookSecret, f.clock, f.metrics, log)
	inv := service.NewInvitation(f.invitations, users, f.clock, 14*24*time.Hour, log)

	r := New(
		Services{
			Auth:       auth,
			Payment:    pay,
			Invitation: inv,
			Token:      service.NewTokenService(jwt, log),
		},
		opts,
		middleware.NewRateLimit(rps, burst, f.clock, f.metrics),
		f.metrics,
		httpcontext.NewManager(),
		log,
	)
	f.engine, err = r.Register()
	require.NoError(t, err)
	return f
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func (f *fixture) invite(t *testing.T, email string) {
	t.Helper()
	_, err := f.invitations.Upsert(context.Background(), model.Invitation{
		Email:     email,
		ExpiresAt: start.Add(24 * time.Hour),
		CreatedAt: start,
	})
	require.NoError(t, err)
}

func jsonRequest(method, target string, body any) *http.Request {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestRouter_RegisterLoginMe(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.invite(t, "ada@example.com")

	creds := map[string]string{"email": "Ada@Example.com", "password": "correct horse"}

	w := f.do(t, jsonRequest(http.MethodPost, "/auth/register", creds))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	var registered session.Payload
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &registered))
	assert.NotEmpty(t, registered.AuthToken)
	assert.Equal(t, "ada@example.com", registered.AuthUser.Email)
	assert.True(t, registered.PaymentUser.HasValidInvite)
	assert.False(t, registered.PaymentUser.PaymentRequired)

	w = f.do(t, jsonRequest(http.MethodPost, "/auth/register", creds))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "duplicate_email", decode(t, w)["error"])

	w = f.do(t, jsonRequest(http.MethodPost, "/auth/login", creds))
	require.Equal(t, http.StatusOK, w.Code)
	var loggedIn session.Payload
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loggedIn))

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+loggedIn.AuthToken)
	w = f.do(t, req)
	require.Equal(t, http.StatusOK, w.Code)

	me := decode(t, w)
	assert.Equal(t, "", me["auth_token"])
	assert.Equal(t, registered.AuthUser.ID.String(), me["auth_user"].(map[string]any)["id"])
}

func TestRouter_CredentialErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	tests := []struct {
		name     string
		req      func() *http.Request
		wantCode int
		wantErr  string
	}{
		{
			name: "register without invitation",
			req: func() *http.Request {
				return jsonRequest(http.MethodPost, "/auth/register", map[string]string{"email": "new@example.com", "password": "long enough"})
			},
			wantCode: http.StatusForbidden,
			wantErr:  "payment_disabled",
		},
		{
			name: "malformed body",
			req: func() *http.Request {
				return jsonRequest(http.MethodPost, "/auth/login", map[string]string{"email": "x@example.com"})
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "bad_request",
		},
		{
			name: "unknown principal",
			req: func() *http.Request {
				return jsonRequest(http.MethodPost, "/auth/login", map[string]string{"email": "ghost@example.com", "password": "whatever1"})
			},
			wantCode: http.StatusUnauthorized,
			wantErr:  "invalid_credentials",
		},
		{
			name:     "me without token",
			req:      func() *http.Request { return httptest.NewRequest(http.MethodGet, "/auth/me", nil) },
			wantCode: http.StatusUnauthorized,
			wantErr:  "unauthorized",
		},
		{
			name: "me with garbage token",
			req: func() *http.Request {
				req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
				req.Header.Set("Authorization", "Bearer not-a-jwt")
				return req
			},
			wantCode: http.StatusUnauthorized,
			wantErr:  "unauthorized",
		},
		{
			name: "confirm without token",
			req: func() *http.Request {
				return jsonRequest(http.MethodPost, "/payment/confirm", map[string]string{"charge_id": "ch_1"})
			},
			wantCode: http.StatusUnauthorized,
			wantErr:  "unauthorized",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, tt.req())
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, decode(t, w)["error"])
		})
	}
}

func TestRouter_OAuth(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.invite(t, "grace@example.com")
	f.exchanger.profiles["good"] = credential.ExternalProfile{Provider: credential.ProviderGoogle, Subject: "g-1", Email: "grace@example.com"}
	f.exchanger.profiles["stranger"] = credential.ExternalProfile{Provider: credential.ProviderGoogle, Subject: "g-2", Email: "stranger@example.com"}

	w := f.do(t, httptest.NewRequest(http.MethodGet, "/auth/oauth/google/start", nil))
	require.Equal(t, http.StatusFound, w.Code)

	var state string
	for _, c := range w.Result().Cookies() {
		if c.Name == "oauth_state" {
			state = c.Value
		}
	}
	require.NotEmpty(t, state)
	assert.Contains(t, w.Header().Get("Location"), "state="+state)

	callback := func(code, queryState, cookieState string) url.Values {
		req := httptest.NewRequest(http.MethodGet, "/auth/oauth/google/callback?code="+code+"&state="+queryState, nil)
		if cookieState != "" {
			req.AddCookie(&http.Cookie{Name: "oauth_state", Value: cookieState})
		}
		w := f.do(t, req)
		require.Equal(t, http.StatusFound, w.Code)
		loc, err := url.Parse(w.Header().Get("Location"))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(loc.String(), testFrontend))
		return loc.Query()
	}

	q := callback("good", state, state)
	assert.NotEmpty(t, q.Get("token"))
	assert.Equal(t, "grace@example.com", q.Get("email"))
	assert.Equal(t, "true", q.Get("is_new_user"))
	assert.Equal(t, "false", q.Get("payment_required"))
	assert.Equal(t, "true", q.Get("has_valid_invite"))
	_, err := uuid.Parse(q.Get("user_id"))
	assert.NoError(t, err)

	q = callback("good", state, state)
	assert.Equal(t, "false", q.Get("is_new_user"))

	assert.Equal(t, "no_invite", callback("stranger", state, state).Get("error"))
	assert.Equal(t, "oauth_exchange_failed", callback("good", state, "other").Get("error"))
	assert.Equal(t, "oauth_exchange_failed", callback("good", state, "").Get("error"))
	assert.Equal(t, "oauth_exchange_failed", callback("unknown-code", state, state).Get("error"))

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/auth/oauth/myspace/start", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "unknown_provider", decode(t, w)["error"])
}

func TestRouter_PaymentWebhook(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	userID := uuid.New()

	body := []byte(`{"id":"evt_1","type":"payment.succeeded","user_id":"` + userID.String() +
		`","subscription_end_at":"2026-04-03T12:00:00Z","occurred_at":"2026-03-03T12:00:00Z"}`)

	send := func(signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
		req.Header.Set("X-Signature", signature)
		return f.do(t, req)
	}

	w := send(payment.Sign([]byte(testWebhookSecret), body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "applied", decode(t, w)["status"])

	w = send(payment.Sign([]byte(testWebhookSecret), body))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "duplicate", decode(t, w)["status"])

	w = send("sha256=00")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "webhook_unverified", decode(t, w)["error"])

	rec, err := f.payments.GetByUserID(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusActive, rec.Status)
}

func TestRouter_AdminInvitations(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	create := func(key string, body any) *httptest.ResponseRecorder {
		req := jsonRequest(http.MethodPost, "/admin/invitations", body)
		if key != "" {
			req.Header.Set(middleware.AdminKeyHeader, key)
		}
		return f.do(t, req)
	}

	w := create("", map[string]any{"email": "lin@example.com"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = create("wrong", map[string]any{"email": "lin@example.com"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = create(testAdminKey, map[string]any{"email": "lin@example.com"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "lin@example.com", decode(t, w)["email"])

	w = create(testAdminKey, map[string]any{"email": "forever@example.com", "permanent": true})
	require.Equal(t, http.StatusCreated, w.Code)
	inv, err := f.invitations.GetByEmail(context.Background(), "forever@example.com")
	require.NoError(t, err)
	assert.True(t, inv.ExpiresAt.Equal(model.FarFuture))

	w = create(testAdminKey, map[string]any{"email": "late@example.com", "expires_at": start.Add(-time.Hour)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	w := f.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `http_requests_total{method="GET",path="/healthz",status="200"} 1`)
}

func TestRouter_RateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	t.Parallel()
	f := newFixtureWith(t, Options{}, 0.001, 1)

	allowed := 0
	for i := 0; i < 20; i++ {
		req := jsonRequest(http.MethodPost, "/auth/login", map[string]string{"email": "a@x.com", "password": "pw"})
		req.RemoteAddr = "203.0.113.7:4000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		req.Header.Set("X-Real-IP", fmt.Sprintf("198.51.100.%d", i+1))
		if w := f.do(t, req); w.Code != http.StatusTooManyRequests {
			allowed++
		}
	}
	assert.Equal(t, 1, allowed)
}

func TestRouter_RateLimitHonoursTrustedProxy(t *testing.T) {
	t.Parallel()
	f := newFixtureWith(t, Options{TrustedProxies: []string{"10.0.0.0/8"}}, 0.001, 1)

	for i := 0; i < 3; i++ {
		req := jsonRequest(http.MethodPost, "/auth/login", map[string]string{"email": "a@x.com", "password": "pw"})
		req.RemoteAddr = "10.1.2.3:4000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		w := f.do(t, req)
		assert.NotEqual(t, http.StatusTooManyRequests, w.Code, "clients behind the proxy get their own bucket")
	}
}

func TestRouter_InvalidTrustedProxy(t *testing.T) {
	t.Parallel()
	r := New(Services{}, Options{TrustedProxies: []string{"not-an-ip"}}, nil, nil, httpcontext.NewManager(), testutil.MakeNoopLogger())
	_, err := r.Register()
	require.Error(t, err)
}
