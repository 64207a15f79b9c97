package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "HOST", "ENV", "PUBLIC_URL", "COUNTDOWN_MS", "DATABASE_URL", "LOG_LEVEL", "ROOM_CODE_LENGTH", "ALLOWED_ORIGINS"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.GetAddr())
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 3*time.Second, cfg.Game.Countdown)
	assert.Equal(t, 6, cfg.Game.RoomCodeLength)
	assert.Equal(t, "http://localhost:8080", cfg.Server.PublicURL)
	assert.Empty(t, cfg.Database.URL)
	assert.Empty(t, cfg.Server.AllowedOrigins)
}

func TestLoad_AllowedOrigins(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", " localhost:5173, ,*.monatype.app ")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost:5173", "*.monatype.app"}, cfg.Server.AllowedOrigins)
}

func TestLoad_DotEnvAndOverrides(t *testing.T) {
	for _, k := range []string{"PORT", "COUNTDOWN_MS", "LOG_LEVEL", "ENV"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=9090\nCOUNTDOWN_MS=0\nLOG_LEVEL=debug\n"), 0o600))
	t.Setenv("ENV", "production")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Zero(t, cfg.Game.Countdown)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.IsDevelopment())
}

func TestGetEnvInt_FallsBackOnGarbage(t *testing.T) {
	t.Setenv("ROOM_CODE_LENGTH", "six")
	assert.Equal(t, 6, getEnvInt("ROOM_CODE_LENGTH", 6))
}
