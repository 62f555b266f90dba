package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactories builds every backend so the same contract runs against each.
func storeFactories(t *testing.T) map[string]func() Store {
	t.Helper()
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"bolt": func() Store {
			s, err := OpenBoltStore(filepath.Join(t.TempDir(), "profile", "session.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"redis": func() Store {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			return NewRedisStore(rdb, "")
		},
	}
}

func TestStore_Contract(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()

			creds, err := s.Get(ctx)
			require.NoError(t, err)
			assert.Empty(t, creds.AccessToken)
			assert.Empty(t, creds.RefreshToken)

			require.NoError(t, s.Set(ctx, Credentials{AccessToken: "a1", RefreshToken: "r1"}))
			creds, err = s.Get(ctx)
			require.NoError(t, err)
			assert.Equal(t, Credentials{AccessToken: "a1", RefreshToken: "r1"}, creds)

			// overwrite on refresh
			require.NoError(t, s.Set(ctx, Credentials{AccessToken: "a2", RefreshToken: "r2"}))
			creds, err = s.Get(ctx)
			require.NoError(t, err)
			assert.Equal(t, "a2", creds.AccessToken)
			assert.Equal(t, "r2", creds.RefreshToken)

			// access token without refresh token stays usable but not renewable
			require.NoError(t, s.Set(ctx, Credentials{AccessToken: "a3"}))
			creds, err = s.Get(ctx)
			require.NoError(t, err)
			assert.Equal(t, "a3", creds.AccessToken)
			assert.False(t, creds.CanRefresh())

			require.NoError(t, s.Clear(ctx))
			creds, err = s.Get(ctx)
			require.NoError(t, err)
			assert.Equal(t, Credentials{}, creds)
		})
	}
}

func TestLoad_NoCredentials(t *testing.T) {
	_, err := Load(context.Background(), NewMemoryStore())
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestLoad_ReturnsStoredPair(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Set(context.Background(), Credentials{AccessToken: "a", RefreshToken: "r"}))

	creds, err := Load(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, creds.CanRefresh())
}

func TestBoltStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	s, err := OpenBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), Credentials{AccessToken: "a", RefreshToken: "r"}))
	require.NoError(t, s.Close())

	reopened, err := OpenBoltStore(path)
	require.NoError(t, err)
	defer reopened.Close() //nolint:errcheck

	creds, err := reopened.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Credentials{AccessToken: "a", RefreshToken: "r"}, creds)
}

func TestRedisStore_UsesPrefixedKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close() //nolint:errcheck

	s := NewRedisStore(rdb, "tenant-a:")
	require.NoError(t, s.Set(context.Background(), Credentials{AccessToken: "a", RefreshToken: "r"}))

	got, err := mr.Get("tenant-a:token")
	require.NoError(t, err)
	assert.Equal(t, "a", got)
	got, err = mr.Get("tenant-a:refreshToken")
	require.NoError(t, err)
	assert.Equal(t, "r", got)
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close() //nolint:errcheck
	mr.Close()

	_, err := NewRedisStore(rdb, "").Get(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis get")
}
