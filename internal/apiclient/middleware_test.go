package apiclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/backoffice/internal/rate"
	"github.com/Checker-Finance/backoffice/internal/session"
)

// capture is a terminal handler that records the request it receives.
type capture struct {
	mu   sync.Mutex
	seen []*Request
}

func (c *capture) handle(_ context.Context, req *Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, req)
	return &Response{StatusCode: http.StatusOK}, nil
}

func (c *capture) last() *Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen[len(c.seen)-1]
}

func runContentType(t *testing.T, req *Request) *Request {
	t.Helper()
	c := &capture{}
	_, err := Chain(c.handle, ContentType())(context.Background(), req)
	require.NoError(t, err)
	return c.last()
}

// ─── Content type ────────────────────────────────────────────────────────────

func TestContentType_MultipartDropsPresetType(t *testing.T) {
	for _, preset := range []string{"", ContentTypeJSON, "multipart/form-data", "text/plain"} {
		req := NewRequest(http.MethodPost, "/expenses/", NewMultipartForm().Add("amount", "12.50"))
		if preset != "" {
			req.Header.Set(HeaderContentType, preset)
		}

		got := runContentType(t, req)
		assert.Empty(t, got.Header.Values(HeaderContentType), "preset %q must be removed", preset)
	}
}

func TestContentType_DefaultsToJSON(t *testing.T) {
	bodies := []any{nil, map[string]string{"a": "b"}, []byte(`{}`), "raw"}
	for _, body := range bodies {
		got := runContentType(t, NewRequest(http.MethodPost, "/orders/", body))
		assert.Equal(t, []string{ContentTypeJSON}, got.Header.Values(HeaderContentType))
	}
}

func TestContentType_PreservesCallerValue(t *testing.T) {
	req := NewRequest(http.MethodPost, "/auth/login/access-token", url.Values{"username": {"u"}})
	req.Header.Set(HeaderContentType, ContentTypeForm)

	got := runContentType(t, req)
	assert.Equal(t, ContentTypeForm, got.Header.Get(HeaderContentType))
}

// ─── Authenticate ────────────────────────────────────────────────────────────

func TestAuthenticate_AttachesStoredToken(t *testing.T) {
	store := session.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), session.Credentials{AccessToken: "a1", RefreshToken: "r1"}))

	c := &capture{}
	_, err := Chain(c.handle, Authenticate(store, zap.NewNop()))(context.Background(), NewRequest(http.MethodGet, "/orders/", nil))
	require.NoError(t, err)
	assert.Equal(t, "Bearer a1", c.last().Header.Get(HeaderAuthorization))
}

func TestAuthenticate_NoTokenLeavesHeadersUntouched(t *testing.T) {
	c := &capture{}
	req := NewRequest(http.MethodGet, "/orders/", nil)
	_, err := Chain(c.handle, Authenticate(session.NewMemoryStore(), zap.NewNop()))(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, c.last().Header)
}

func TestAuthenticate_RetryKeepsRefreshedToken(t *testing.T) {
	store := session.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), session.Credentials{AccessToken: "stale", RefreshToken: "r1"}))
	c := &capture{}
	h := Chain(c.handle, Authenticate(store, zap.NewNop()))

	retry := NewRequest(http.MethodGet, "/orders/", nil).Retry()
	retry.Header.Set(HeaderAuthorization, BearerToken("fresh"))
	_, err := h(context.Background(), retry)
	require.NoError(t, err)
	assert.Equal(t, "Bearer fresh", c.last().Header.Get(HeaderAuthorization))

	_, err = h(context.Background(), NewRequest(http.MethodGet, "/orders/", nil).Retry())
	require.NoError(t, err)
	assert.Equal(t, "Bearer stale", c.last().Header.Get(HeaderAuthorization))
}

// ─── Chain ordering ──────────────────────────────────────────────────────────

func TestChain_FirstMiddlewareIsOutermost(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, req *Request) (*Response, error) {
				order = append(order, name+">")
				resp, err := next(ctx, req)
				order = append(order, "<"+name)
				return resp, err
			}
		}
	}

	c := &capture{}
	_, err := Chain(c.handle, mark("a"), mark("b"))(context.Background(), NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"a>", "b>", "<b", "<a"}, order)
}

func TestRequestID_KeepsExistingValue(t *testing.T) {
	c := &capture{}
	h := Chain(c.handle, RequestID())

	_, err := h(context.Background(), NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Len(t, c.last().Header.Get(HeaderRequestID), 36)

	req := NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "fixed")
	_, err = h(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "fixed", c.last().Header.Get(HeaderRequestID))
}

func TestRateLimit_CanceledContext(t *testing.T) {
	mgr := rate.NewManager(rate.Config{RequestsPerSecond: 1, Burst: 1})
	c := &capture{}
	h := Chain(c.handle, RateLimit(mgr, "api"))

	_, err := h(context.Background(), NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h(ctx, NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, c.seen, 1)
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/orders/:id", RouteLabel("/orders/42"))
	assert.Equal(t, "/orders/quotes/:id/convert-to-order", RouteLabel("/orders/quotes/7/convert-to-order"))
	assert.Equal(t, "/imports/:id", RouteLabel("/imports/0b7e4c1a-3f1e-4a55-9d7b-2b3f6f1f1e11"))
	assert.Equal(t, "/orders/", RouteLabel("/orders/?skip=0"))
}

// ─── Through the full client ─────────────────────────────────────────────────

type seenRequest struct {
	header http.Header
	body   string
}

func recordingServer(t *testing.T) (*httptest.Server, *[]seenRequest) {
	t.Helper()
	var mu sync.Mutex
	var seen []seenRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, seenRequest{header: r.Header.Clone(), body: string(b)})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestClient_MultipartGetsBoundaryFromTransport(t *testing.T) {
	srv, seen := recordingServer(t)
	client, err := New(Config{BaseURL: srv.URL}, session.NewMemoryStore())
	require.NoError(t, err)

	form := NewMultipartForm().
		Add("description", "fuel").
		AddFile("file", "orders.csv", "", []byte("a,b\n1,2\n"))
	req := NewRequest(http.MethodPost, "/orders/import-file", form)
	req.Header.Set(HeaderContentType, ContentTypeJSON)

	require.NoError(t, client.Send(context.Background(), req, nil))
	require.Len(t, *seen, 1)

	ct := (*seen)[0].header.Get(HeaderContentType)
	assert.True(t, strings.HasPrefix(ct, "multipart/form-data; boundary="), ct)
	assert.Contains(t, (*seen)[0].body, `name="description"`)
	assert.Contains(t, (*seen)[0].body, `filename="orders.csv"`)
}

func TestClient_FormBodyKeepsCallerContentType(t *testing.T) {
	srv, seen := recordingServer(t)
	client, err := New(Config{BaseURL: srv.URL}, session.NewMemoryStore())
	require.NoError(t, err)

	req := NewRequest(http.MethodPost, "/auth/login/access-token", url.Values{"username": {"u"}, "password": {"p"}})
	req.Header.Set(HeaderContentType, ContentTypeForm)
	require.NoError(t, client.Send(context.Background(), req, nil))

	assert.Equal(t, ContentTypeForm, (*seen)[0].header.Get(HeaderContentType))
	assert.Equal(t, "password=p&username=u", (*seen)[0].body)
}

func TestClient_JSONBodyAndDefaults(t *testing.T) {
	srv, seen := recordingServer(t)
	client, err := New(Config{BaseURL: srv.URL + "/"}, session.NewMemoryStore())
	require.NoError(t, err)
	client.SetDefaultAuthorization("default-token")

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, client.Post(context.Background(), "/tasks/", map[string]string{"title": "prep"}, &out))
	assert.True(t, out.OK)

	got := (*seen)[0]
	assert.Equal(t, ContentTypeJSON, got.header.Get(HeaderContentType))
	assert.Equal(t, "Bearer default-token", got.header.Get(HeaderAuthorization))
	assert.JSONEq(t, `{"title":"prep"}`, got.body)
	assert.NotEmpty(t, got.header.Get(HeaderRequestID))

	client.ClearDefaultAuthorization()
	assert.Empty(t, client.DefaultHeader().Get(HeaderAuthorization))
}

func TestClient_HTTPErrorCarriesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Order not found"}`))
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL}, session.NewMemoryStore())
	require.NoError(t, err)

	err = client.Get(context.Background(), "/orders/9", nil, nil)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsUnauthorized(err))
	assert.Contains(t, err.Error(), "Order not found")
}

func TestClient_NilRequest(t *testing.T) {
	client, err := New(Config{}, session.NewMemoryStore())
	require.NoError(t, err)
	_, err = client.Do(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilRequest)
}

func TestParseDetail_ValidationList(t *testing.T) {
	body := []byte(`{"detail":[{"loc":["body","amount"],"msg":"field required"},{"loc":["query","limit"],"msg":"ensure this value is less than or equal to 200"}]}`)
	assert.Equal(t, "amount: field required; limit: ensure this value is less than or equal to 200", parseDetail(body))
	assert.Empty(t, parseDetail([]byte("not json")))
}
