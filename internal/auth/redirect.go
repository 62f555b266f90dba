package auth

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Checker-Finance/backoffice/internal/apiclient"
)

// Redirector is the side effect run when the session is unrecoverable.
type Redirector interface {
	Redirect(ctx context.Context, reason string)
}

// RedirectFunc adapts a Redirector to the client option.
func RedirectFunc(r Redirector) apiclient.RedirectFunc {
	return r.Redirect
}

// Relogin marks the session as needing a fresh login. Whoever owns the
// credentials (the sync loop) polls Pending and logs in again.
type Relogin struct {
	logger  *zap.Logger
	pending atomic.Bool
	count   atomic.Int64
}

func NewRelogin(logger *zap.Logger) *Relogin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relogin{logger: logger}
}

func (r *Relogin) Redirect(_ context.Context, reason string) {
	r.count.Add(1)
	if r.pending.CompareAndSwap(false, true) {
		r.logger.Warn("auth.relogin_required", zap.String("reason", reason))
	}
}

// Pending reports whether a login is required.
func (r *Relogin) Pending() bool {
	return r.pending.Load()
}

// Take clears the flag and reports whether it was set.
func (r *Relogin) Take() bool {
	return r.pending.CompareAndSwap(true, false)
}

// Count is the number of redirects seen since start.
func (r *Relogin) Count() int64 {
	return r.count.Load()
}

var _ Redirector = (*Relogin)(nil)
