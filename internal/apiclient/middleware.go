package apiclient

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/backoffice/internal/metrics"
	"github.com/Checker-Finance/backoffice/internal/rate"
	"github.com/Checker-Finance/backoffice/internal/session"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderContentType   = "Content-Type"
	HeaderRequestID     = "X-Request-ID"

	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"
)

// Handler dispatches one request descriptor.
type Handler func(ctx context.Context, req *Request) (*Response, error)

// Middleware wraps a Handler.
type Middleware func(next Handler) Handler

// Chain composes mws around h. mws[0] is the outermost.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// BearerToken formats an Authorization value.
func BearerToken(token string) string {
	return "Bearer " + token
}

// Authenticate attaches the stored access token. A store failure is logged and
// the request goes out without credentials. A retry that already carries the
// refreshed token keeps it.
func Authenticate(store session.Store, logger *zap.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (*Response, error) {
			if req.Retried() && req.Header.Get(HeaderAuthorization) != "" {
				return next(ctx, req)
			}
			creds, err := store.Get(ctx)
			if err != nil {
				logger.Warn("apiclient.session_read_failed", zap.Error(err))
			} else if creds.AccessToken != "" {
				req.Header.Set(HeaderAuthorization, BearerToken(creds.AccessToken))
			}
			return next(ctx, req)
		}
	}
}

// ContentType drops any preset type for multipart bodies so the transport can
// set the boundary, and defaults everything else to JSON.
func ContentType() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (*Response, error) {
			if req.IsMultipart() {
				req.Header.Del(HeaderContentType)
			} else if req.Header.Get(HeaderContentType) == "" {
				req.Header.Set(HeaderContentType, ContentTypeJSON)
			}
			return next(ctx, req)
		}
	}
}

// RequestID stamps X-Request-ID once per logical operation; retries inherit it
// through the cloned headers.
func RequestID() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (*Response, error) {
			if req.Header.Get(HeaderRequestID) == "" {
				req.Header.Set(HeaderRequestID, uuid.NewString())
			}
			return next(ctx, req)
		}
	}
}

// RateLimit blocks on the limiter registered under key before each dispatch.
func RateLimit(mgr *rate.Manager, key string) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (*Response, error) {
			if err := mgr.Wait(ctx, key); err != nil {
				return nil, err
			}
			return next(ctx, req)
		}
	}
}

// Instrument records request counts and latency per route.
func Instrument(logger *zap.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (*Response, error) {
			start := time.Now()
			route := RouteLabel(req.Path)

			resp, err := next(ctx, req)

			metrics.ObserveDuration(metrics.APIRequestDuration, start, req.Method, route)
			status := "error"
			switch {
			case err == nil && resp != nil:
				status = strconv.Itoa(resp.StatusCode)
			case StatusCode(err) != 0:
				status = strconv.Itoa(StatusCode(err))
			}
			metrics.IncAPIRequest(req.Method, route, status)

			if err != nil && StatusCode(err) == 0 {
				metrics.IncError("apiclient", "transport")
				logger.Debug("apiclient.transport_error",
					zap.String("route", route),
					zap.String("attempt", req.Attempt().String()),
					zap.Error(err))
			}
			return resp, err
		}
	}
}

var numericSegment = regexp.MustCompile(`^\d+$`)

// RouteLabel replaces id-like path segments with ":id" to bound metric cardinality.
func RouteLabel(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if numericSegment.MatchString(p) {
			parts[i] = ":id"
			continue
		}
		if _, err := uuid.Parse(p); err == nil {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}
