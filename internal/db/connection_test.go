package db

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yagnadeepxo/avici-internal-dashboard/database"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/config"
)

func writePasswordFile(t *testing.T, password string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(path, []byte(password+"\n"), 0o600))
	return path
}

func TestNewPool_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     *config.DatabaseConfig
		wantErr string
	}{
		{
			name:    "nil config",
			cfg:     nil,
			wantErr: "database configuration is required",
		},
		{
			name: "unreadable password file",
			cfg: &config.DatabaseConfig{
				Host:         "localhost",
				Port:         5432,
				User:         "avici",
				Database:     "avici",
				PasswordFile: "/nonexistent/password",
			},
			wantErr: "failed to get database connection string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pool, err := NewPool(context.Background(), tt.cfg)
			require.Error(t, err)
			assert.Nil(t, pool)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewPool_GivesUpAfterConnectTimeout(t *testing.T) {
	t.Parallel()

	cfg := &config.DatabaseConfig{
		Host:           "127.0.0.1",
		Port:           1,
		User:           "avici",
		Database:       "avici",
		PasswordFile:   writePasswordFile(t, "secret"),
		SSLMode:        "disable",
		ConnectTimeout: "1s",
	}

	start := time.Now()
	pool, err := NewPool(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, pool)
	assert.Contains(t, err.Error(), "failed to connect to database")
	assert.Less(t, time.Since(start), 15*time.Second)
}

func TestNewPool_HonoursContextCancellation(t *testing.T) {
	t.Parallel()

	cfg := &config.DatabaseConfig{
		Host:           "127.0.0.1",
		Port:           1,
		User:           "avici",
		Database:       "avici",
		PasswordFile:   writePasswordFile(t, "secret"),
		SSLMode:        "disable",
		ConnectTimeout: "1m",
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPool(ctx, cfg)
	require.Error(t, err)
}

func TestNewPool_Connects(t *testing.T) {
	t.Parallel()

	_, connStr := database.SetupTestDB(t)

	u, err := url.Parse(connStr)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	password, _ := u.User.Password()

	cfg := &config.DatabaseConfig{
		Host:         u.Hostname(),
		Port:         port,
		User:         u.User.Username(),
		Database:     u.Path[1:],
		PasswordFile: writePasswordFile(t, password),
		SSLMode:      "disable",
		MaxConns:     3,
	}

	pool, err := NewPool(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	assert.Equal(t, int32(3), pool.Config().MaxConns)
	require.NoError(t, pool.Ping(context.Background()))
}
