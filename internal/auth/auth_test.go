package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/backoffice/internal/apiclient"
	"github.com/Checker-Finance/backoffice/internal/session"
)

// backend mimics the auth endpoints: login issues a1/r1, a1 is already
// expired on /orders/, refresh with r1 issues a2/r2.
type backend struct {
	refreshCalls atomic.Int32
	ordersCalls  atomic.Int32

	mu          sync.Mutex
	loginForm   map[string]string
	loginCT     string
	refreshBody map[string]string
	ordersAuth  []string
}

func (b *backend) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(LoginPath, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		b.mu.Lock()
		b.loginCT = r.Header.Get("Content-Type")
		b.loginForm = map[string]string{
			"username": r.PostForm.Get("username"),
			"password": r.PostForm.Get("password"),
		}
		b.mu.Unlock()
		if r.PostForm.Get("password") != "p" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"detail":"Incorrect email or password"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"a1","refresh_token":"r1","token_type":"bearer"}`))
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		b.refreshCalls.Add(1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.refreshBody = body
		b.mu.Unlock()
		if body["refresh_token"] != "r1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"a2","refresh_token":"r2","token_type":"bearer"}`))
	})
	mux.HandleFunc("/orders/", func(w http.ResponseWriter, r *http.Request) {
		b.ordersCalls.Add(1)
		auth := r.Header.Get("Authorization")
		b.mu.Lock()
		b.ordersAuth = append(b.ordersAuth, auth)
		b.mu.Unlock()
		if auth != "Bearer a2" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Token expired"}`))
			return
		}
		_, _ = w.Write([]byte(`[{"id":"o-1","order_number":"ORD-1"}]`))
	})
	mux.HandleFunc(MePath, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":"u-1","email":"u@example.com","is_active":true,"is_superuser":false}`))
	})
	mux.HandleFunc(RegisterPath, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] == "taken@example.com" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"detail":"The user with this email already exists in the system"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"u-2","email":"` + body["email"] + `"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type observed struct {
	loginForm   map[string]string
	loginCT     string
	refreshBody map[string]string
	ordersAuth  []string
}

func (b *backend) observed() observed {
	b.mu.Lock()
	defer b.mu.Unlock()
	return observed{
		loginForm:   b.loginForm,
		loginCT:     b.loginCT,
		refreshBody: b.refreshBody,
		ordersAuth:  append([]string(nil), b.ordersAuth...),
	}
}

func newService(t *testing.T, srv *httptest.Server, opts ...apiclient.Option) (*Service, *apiclient.Client, session.Store) {
	t.Helper()
	store := session.NewMemoryStore()
	client, err := apiclient.New(apiclient.Config{BaseURL: srv.URL}, store, opts...)
	require.NoError(t, err)
	return NewService(client, zap.NewNop()), client, store
}

// ─── End to end: login → 401 → refresh → retry ──────────────────────────────

func TestLoginThenRefreshAndRetry(t *testing.T) {
	b := &backend{}
	srv := b.server(t)
	relogin := NewRelogin(zap.NewNop())
	svc, client, store := newService(t, srv, apiclient.WithRedirect(RedirectFunc(relogin)))
	ctx := context.Background()

	creds, err := svc.Login(ctx, "u", "p")
	require.NoError(t, err)
	assert.Equal(t, session.Credentials{AccessToken: "a1", RefreshToken: "r1"}, creds)
	seen := b.observed()
	assert.Equal(t, "application/x-www-form-urlencoded", seen.loginCT)
	assert.Equal(t, map[string]string{"username": "u", "password": "p"}, seen.loginForm)

	stored, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, creds, stored)

	var orders []map[string]string
	require.NoError(t, client.Get(ctx, "/orders/", nil, &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, "ORD-1", orders[0]["order_number"])

	assert.Equal(t, int32(1), b.refreshCalls.Load())
	seen = b.observed()
	assert.Equal(t, map[string]string{"refresh_token": "r1"}, seen.refreshBody)
	assert.Equal(t, []string{"Bearer a1", "Bearer a2"}, seen.ordersAuth)
	assert.False(t, relogin.Pending())

	stored, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.Credentials{AccessToken: "a2", RefreshToken: "r2"}, stored)
}

// ─── Login / logout / restore ────────────────────────────────────────────────

func TestLogin_BadPassword(t *testing.T) {
	b := &backend{}
	svc, client, store := newService(t, b.server(t))

	_, err := svc.Login(context.Background(), "u", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Incorrect email or password")
	assert.False(t, svc.IsAuthenticated())
	assert.Empty(t, client.DefaultHeader().Get("Authorization"))

	creds, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.Credentials{}, creds)
}

func TestLogin_SetsDefaultHeaderAndLogoutClears(t *testing.T) {
	b := &backend{}
	svc, client, store := newService(t, b.server(t))
	ctx := context.Background()

	_, err := svc.Login(ctx, "u", "p")
	require.NoError(t, err)
	assert.True(t, svc.IsAuthenticated())
	assert.Equal(t, "Bearer a1", client.DefaultHeader().Get("Authorization"))

	require.NoError(t, svc.Logout(ctx))
	assert.False(t, svc.IsAuthenticated())
	assert.Empty(t, client.DefaultHeader().Get("Authorization"))

	creds, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.Credentials{}, creds)
}

func TestRestore(t *testing.T) {
	b := &backend{}
	svc, client, store := newService(t, b.server(t))
	ctx := context.Background()

	ok, err := svc.Restore(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, client.DefaultHeader().Get("Authorization"))

	require.NoError(t, store.Set(ctx, session.Credentials{AccessToken: "stored", RefreshToken: "r"}))
	ok, err = svc.Restore(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, svc.IsAuthenticated())
	assert.Equal(t, "Bearer stored", client.DefaultHeader().Get("Authorization"))
}

func TestEstablish_RejectsEmptyToken(t *testing.T) {
	b := &backend{}
	svc, _, _ := newService(t, b.server(t))
	assert.ErrorIs(t, svc.Establish(context.Background(), session.Credentials{}), ErrEmptyToken)
}

// ─── Register / current user ─────────────────────────────────────────────────

func TestRegister(t *testing.T) {
	b := &backend{}
	svc, _, _ := newService(t, b.server(t))

	require.NoError(t, svc.Register(context.Background(), "new@example.com", "secret"))

	err := svc.Register(context.Background(), "taken@example.com", "secret")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apiclient.StatusCode(err))
}

func TestCurrentUser(t *testing.T) {
	b := &backend{}
	svc, _, _ := newService(t, b.server(t))
	ctx := context.Background()

	_, err := svc.Login(ctx, "u", "p")
	require.NoError(t, err)

	u, err := svc.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, &User{ID: "u-1", Email: "u@example.com", IsActive: true}, u)
}

// ─── Redirectors ─────────────────────────────────────────────────────────────

func TestRelogin_FlagAndTake(t *testing.T) {
	r := NewRelogin(nil)
	assert.False(t, r.Pending())

	r.Redirect(context.Background(), apiclient.ReasonRefreshFailed)
	r.Redirect(context.Background(), apiclient.ReasonRetried)
	assert.True(t, r.Pending())
	assert.Equal(t, int64(2), r.Count())

	assert.True(t, r.Take())
	assert.False(t, r.Take())
	assert.False(t, r.Pending())
}

func TestRelogin_FlaggedWhenNoRefreshToken(t *testing.T) {
	b := &backend{}
	srv := b.server(t)
	relogin := NewRelogin(zap.NewNop())
	svc, client, _ := newService(t, srv, apiclient.WithRedirect(RedirectFunc(relogin)))
	ctx := context.Background()

	require.NoError(t, svc.Establish(ctx, session.Credentials{AccessToken: "a1"}))
	err := client.Get(ctx, "/orders/", nil, nil)
	assert.True(t, apiclient.IsUnauthorized(err))
	assert.True(t, relogin.Pending())
	assert.Equal(t, int32(0), b.refreshCalls.Load())
}
