// Package secrets resolves the sync agent's login credentials.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/backoffice/internal/metrics"
	pkgsecrets "github.com/Checker-Finance/backoffice/pkg/secrets"
)

// ErrIncompleteCredentials is returned when the secret lacks a username or password.
var ErrIncompleteCredentials = errors.New("secrets: username and password are required")

// LoginCredentials are what the agent posts to the login endpoint.
type LoginCredentials struct {
	Username string
	Password string
}

// Resolver fetches credentials from a Provider and caches them locally.
//
// Secret naming convention: {env}/backoffice/{profile}
type Resolver struct {
	logger   *zap.Logger
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[LoginCredentials]
	name     string
}

// NewResolver builds a resolver for one profile. A non-positive ttl defaults to 15 minutes.
func NewResolver(logger *zap.Logger, provider pkgsecrets.Provider, env, profile string, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Resolver{
		logger:   logger,
		provider: provider,
		cache:    pkgsecrets.NewCache[LoginCredentials](ttl),
		name:     SecretName(env, profile),
	}
}

// SecretName builds the secret key for a profile.
func SecretName(env, profile string) string {
	return strings.ToLower(fmt.Sprintf("%s/backoffice/%s", env, profile))
}

// Name returns the secret key this resolver reads.
func (r *Resolver) Name() string { return r.name }

// Resolve returns cached credentials or fetches them.
func (r *Resolver) Resolve(ctx context.Context) (LoginCredentials, error) {
	if creds, ok := r.cache.Get(r.name); ok {
		metrics.IncCacheHit("hit")
		return creds, nil
	}
	metrics.IncCacheHit("miss")

	raw, err := r.provider.GetSecret(ctx, r.name)
	if err != nil {
		r.logger.Warn("secrets.fetch_failed", zap.String("key", r.name), zap.Error(err))
		metrics.IncError("secrets", "fetch")
		return LoginCredentials{}, fmt.Errorf("resolve credentials: %w", err)
	}

	creds, err := parseCredentials(raw)
	if err != nil {
		return LoginCredentials{}, fmt.Errorf("parse secret %q: %w", r.name, err)
	}

	r.cache.Put(r.name, creds)
	r.logger.Info("secrets.credentials_resolved",
		zap.String("key", r.name),
		zap.String("username", creds.Username))
	return creds, nil
}

// StartCleaner evicts expired entries every interval until stop is closed.
func (r *Resolver) StartCleaner(interval time.Duration, stop <-chan struct{}) {
	r.cache.StartCleaner(interval, stop)
}

// Invalidate drops the cached credentials so the next Resolve refetches them.
func (r *Resolver) Invalidate() {
	r.cache.Bust(r.name)
}

// parseCredentials accepts "username" or "email" for the login name.
func parseCredentials(raw map[string]string) (LoginCredentials, error) {
	creds := LoginCredentials{
		Username: raw["username"],
		Password: raw["password"],
	}
	if creds.Username == "" {
		creds.Username = raw["email"]
	}
	if creds.Username == "" || creds.Password == "" {
		return LoginCredentials{}, ErrIncompleteCredentials
	}
	return creds, nil
}
