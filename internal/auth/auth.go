// Package auth owns the login lifecycle of a back-office session: login,
// register, logout, restore on start-up and the current user.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Checker-Finance/backoffice/internal/apiclient"
	"github.com/Checker-Finance/backoffice/internal/session"
	"github.com/Checker-Finance/backoffice/pkg/utils"
)

const (
	LoginPath    = "/auth/login/access-token"
	RegisterPath = "/auth/register"
	MePath       = "/users/users/me"
)

// ErrEmptyToken is returned when login succeeds without an access token.
var ErrEmptyToken = errors.New("auth: login returned empty access token")

// User is the account behind the session.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	IsActive    bool   `json:"is_active"`
	IsSuperuser bool   `json:"is_superuser"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Service performs auth calls and keeps the session store and the client's
// default Authorization header in step.
type Service struct {
	client        *apiclient.Client
	store         session.Store
	logger        *zap.Logger
	authenticated atomic.Bool
}

func NewService(client *apiclient.Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		client: client,
		store:  client.Store(),
		logger: logger,
	}
}

// IsAuthenticated reports whether a session was established by Login or Restore.
func (s *Service) IsAuthenticated() bool {
	return s.authenticated.Load()
}

// Login exchanges username and password (form encoded) for a token pair and
// stores it.
func (s *Service) Login(ctx context.Context, username, password string) (session.Credentials, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req := apiclient.NewRequest(http.MethodPost, LoginPath, form)
	req.Header.Set(apiclient.HeaderContentType, apiclient.ContentTypeForm)

	var tok tokenResponse
	if err := s.client.Send(ctx, req, &tok); err != nil {
		s.logger.Warn("auth.login_failed", zap.String("username", username), zap.Error(err))
		return session.Credentials{}, fmt.Errorf("auth login: %w", err)
	}
	if tok.AccessToken == "" {
		return session.Credentials{}, ErrEmptyToken
	}

	creds := session.Credentials{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if err := s.establish(ctx, creds); err != nil {
		return session.Credentials{}, err
	}
	s.logger.Info("auth.login_success",
		zap.String("username", username),
		zap.String("token", utils.MaskToken(creds.AccessToken)))
	return creds, nil
}

// Establish stores an externally obtained pair as the active session.
func (s *Service) Establish(ctx context.Context, creds session.Credentials) error {
	if creds.AccessToken == "" {
		return ErrEmptyToken
	}
	return s.establish(ctx, creds)
}

func (s *Service) establish(ctx context.Context, creds session.Credentials) error {
	if err := s.store.Set(ctx, creds); err != nil {
		return fmt.Errorf("auth store session: %w", err)
	}
	s.client.SetDefaultAuthorization(creds.AccessToken)
	s.authenticated.Store(true)
	return nil
}

// Register creates an account. It does not log in.
func (s *Service) Register(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	if err := s.client.Post(ctx, RegisterPath, body, nil); err != nil {
		return fmt.Errorf("auth register: %w", err)
	}
	s.logger.Info("auth.registered", zap.String("email", email))
	return nil
}

// Logout forgets both tokens and the default Authorization header.
func (s *Service) Logout(ctx context.Context) error {
	s.client.ClearDefaultAuthorization()
	s.authenticated.Store(false)
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("auth logout: %w", err)
	}
	s.logger.Info("auth.logout")
	return nil
}

// Restore re-applies a stored access token as the default Authorization.
// It reports whether a session was found.
func (s *Service) Restore(ctx context.Context) (bool, error) {
	creds, err := session.Load(ctx, s.store)
	if errors.Is(err, session.ErrNoCredentials) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("auth restore: %w", err)
	}
	s.client.SetDefaultAuthorization(creds.AccessToken)
	s.authenticated.Store(true)
	s.logger.Debug("auth.session_restored", zap.Bool("refreshable", creds.CanRefresh()))
	return true, nil
}

// CurrentUser fetches the account the session belongs to.
func (s *Service) CurrentUser(ctx context.Context) (*User, error) {
	var u User
	if err := s.client.Get(ctx, MePath, nil, &u); err != nil {
		return nil, fmt.Errorf("auth current user: %w", err)
	}
	return &u, nil
}
