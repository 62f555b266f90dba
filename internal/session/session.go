// Package session owns the persisted credential pair used by the API client.
//
// A Store holds two string values under the well-known keys "token" and
// "refreshToken". Exactly one Store is constructed per process and handed to
// the API client and the auth service; nothing else reads or writes tokens.
package session

import (
	"context"
	"errors"
)

const (
	// AccessTokenKey is the key the access token is persisted under.
	AccessTokenKey = "token"
	// RefreshTokenKey is the key the refresh token is persisted under.
	RefreshTokenKey = "refreshToken"
)

// ErrNoCredentials is returned by Load when no access token is stored.
var ErrNoCredentials = errors.New("session: no credentials stored")

// Credentials is the access/refresh token pair issued by the API.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// CanRefresh reports whether the pair can be renewed without logging in again.
func (c Credentials) CanRefresh() bool {
	return c.RefreshToken != ""
}

// Store persists a credential pair.
//
// Get returns empty strings (and a nil error) for values that are not set.
// Set with an empty RefreshToken removes any stored refresh token.
type Store interface {
	Get(ctx context.Context) (Credentials, error)
	Set(ctx context.Context, creds Credentials) error
	Clear(ctx context.Context) error
}

// Load returns the stored pair or ErrNoCredentials when no access token is present.
func Load(ctx context.Context, s Store) (Credentials, error) {
	creds, err := s.Get(ctx)
	if err != nil {
		return Credentials{}, err
	}
	if creds.AccessToken == "" {
		return creds, ErrNoCredentials
	}
	return creds, nil
}
