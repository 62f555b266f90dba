package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Checker-Finance/backoffice/internal/metrics"
	"github.com/Checker-Finance/backoffice/internal/session"
)

// Redirect reasons passed to RedirectFunc.
const (
	ReasonRetried        = "retried"
	ReasonNoRefreshToken = "no_refresh_token"
	ReasonRefreshFailed  = "refresh_failed"
)

// RedirectFunc is invoked when the session cannot be recovered and the user
// has to log in again.
type RedirectFunc func(ctx context.Context, reason string)

// LogRedirect is the default RedirectFunc: it records the hand-off to loginPath.
func LogRedirect(logger *zap.Logger, loginPath string) RedirectFunc {
	return func(_ context.Context, reason string) {
		logger.Warn("apiclient.redirect_to_login",
			zap.String("location", loginPath),
			zap.String("reason", reason))
	}
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
}

type refresher struct {
	client *Client
	path   string
	group  singleflight.Group
}

// middleware recovers a 401 by refreshing the session once and re-dispatching
// a retry-tagged copy of the request. The refresh call itself goes to next, so
// it never re-enters this middleware.
func (r *refresher) middleware(next Handler) Handler {
	var handle Handler
	handle = func(ctx context.Context, req *Request) (*Response, error) {
		if req == nil {
			return nil, ErrNilRequest
		}

		resp, err := next(ctx, req)
		if err == nil {
			return resp, nil
		}

		var httpErr *HTTPError
		if !errors.As(err, &httpErr) {
			return nil, err
		}
		if httpErr.StatusCode != http.StatusUnauthorized {
			r.client.logger.Warn("apiclient.request_failed",
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Int("status", httpErr.StatusCode),
				zap.String("detail", httpErr.Detail))
			return nil, err
		}

		if req.Retried() {
			r.redirect(ctx, ReasonRetried)
			return nil, err
		}

		creds, serr := r.client.store.Get(ctx)
		if serr != nil || !creds.CanRefresh() {
			if serr != nil {
				r.client.logger.Warn("apiclient.session_read_failed", zap.Error(serr))
			}
			r.redirect(ctx, ReasonNoRefreshToken)
			return nil, err
		}

		retry := req.Retry()

		// Another request already rotated the pair: reuse it instead of refreshing again.
		sent := req.Header.Get(HeaderAuthorization)
		if creds.AccessToken != "" && sent != "" && sent != BearerToken(creds.AccessToken) {
			metrics.IncTokenRefresh("reused")
			retry.Header.Set(HeaderAuthorization, BearerToken(creds.AccessToken))
			return handle(ctx, retry)
		}

		fresh, rerr := r.refresh(ctx, creds.RefreshToken, next)
		if rerr != nil && ctx.Err() != nil {
			// the caller gave up; the session itself may still be fine
			return nil, ctx.Err()
		}
		if rerr != nil {
			r.client.logger.Warn("apiclient.refresh_failed",
				zap.String("path", req.Path),
				zap.Error(rerr))
			r.redirect(ctx, ReasonRefreshFailed)
			return nil, err
		}

		retry.Header.Set(HeaderAuthorization, BearerToken(fresh.AccessToken))
		return handle(ctx, retry)
	}
	return handle
}

// refresh collapses concurrent refreshes that share a refresh token. The
// exchange runs detached from any one caller's cancellation; each caller waits
// on its own ctx.
func (r *refresher) refresh(ctx context.Context, refreshToken string, next Handler) (session.Credentials, error) {
	ch := r.group.DoChan(refreshToken, func() (any, error) {
		return r.exchange(context.WithoutCancel(ctx), refreshToken, next)
	})

	select {
	case <-ctx.Done():
		return session.Credentials{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return session.Credentials{}, res.Err
		}
		if res.Shared {
			metrics.IncTokenRefresh("shared")
		}
		return res.Val.(session.Credentials), nil
	}
}

func (r *refresher) exchange(ctx context.Context, refreshToken string, next Handler) (session.Credentials, error) {
	req := NewRequest(http.MethodPost, r.path, map[string]string{"refresh_token": refreshToken})
	resp, err := next(ctx, req)
	if err != nil {
		metrics.IncTokenRefresh("error")
		return session.Credentials{}, fmt.Errorf("refresh: %w", err)
	}

	var pair tokenPair
	if err := resp.Decode(&pair); err != nil {
		metrics.IncTokenRefresh("error")
		return session.Credentials{}, fmt.Errorf("refresh: %w", err)
	}
	if pair.AccessToken == "" {
		metrics.IncTokenRefresh("error")
		return session.Credentials{}, ErrEmptyAccessToken
	}

	creds := session.Credentials{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}
	if creds.RefreshToken == "" {
		creds.RefreshToken = refreshToken
	}
	if err := r.client.store.Set(ctx, creds); err != nil {
		r.client.logger.Warn("apiclient.session_write_failed", zap.Error(err))
	}
	r.client.SetDefaultAuthorization(creds.AccessToken)

	metrics.IncTokenRefresh("ok")
	r.client.logger.Info("apiclient.token_refreshed")
	return creds, nil
}

func (r *refresher) redirect(ctx context.Context, reason string) {
	metrics.IncLoginRedirect(reason)
	r.client.redirect(ctx, reason)
}
