package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, DefaultProgramID, cfg.ProgramID)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, int32(10), cfg.Storage.PostgresMaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "sai_swap", cfg.Metrics.Namespace)
	assert.Equal(t, 64, cfg.Stream.BufferSize)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, DefaultProgramID, cfg.Program().String())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swapd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9999"
dev_mode: true
storage:
  driver: postgres
  postgres_dsn: postgres://file/db
log:
  level: debug
`), 0o600))

	t.Setenv("SAISWAP_STORAGE_POSTGRES_DSN", "postgres://env/db")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Listen)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "postgres://env/db", cfg.Storage.PostgresDSN, "env overrides file")
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadWithFlags_FlagsWin(t *testing.T) {
	t.Setenv("SAISWAP_LISTEN", ":7000")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("listen", "", "")
	require.NoError(t, flags.Parse([]string{"--listen=:6000"}))

	cfg, err := LoadWithFlags("", flags)
	require.NoError(t, err)
	assert.Equal(t, ":6000", cfg.Listen)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without dsn", map[string]string{"SAISWAP_STORAGE_DRIVER": "postgres"}},
		{"unknown driver", map[string]string{"SAISWAP_STORAGE_DRIVER": "sqlite"}},
		{"bad program id", map[string]string{"SAISWAP_PROGRAM_ID": "not-base58-0OIl"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvFile_DoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nSAISWAP_TEST_A=file\nSAISWAP_TEST_B=file\nbroken line\n"), 0o600))

	t.Setenv("SAISWAP_TEST_A", "env")
	t.Cleanup(func() { os.Unsetenv("SAISWAP_TEST_B") })

	loadEnvFile(path)

	assert.Equal(t, "env", os.Getenv("SAISWAP_TEST_A"))
	assert.Equal(t, "file", os.Getenv("SAISWAP_TEST_B"))
}
