package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", cfg.Server.IP)
	require.Equal(t, 4, cfg.Server.WorkerNum)
	require.Equal(t, "INFO", cfg.Logging.Level)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tinyrpc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  ip: 10.0.0.1
  port: 9100
  worker_num: 8
  idle_timeout_seconds: 30
  max_connection_num: 100
  pool_initial_capacity: 16
  max_fd_capacity: 1024
client:
  ip: 10.0.0.2
  port: 9100
  connect_timeout_ms: 500
logging:
  level: DEBUG
  format: json
  output: stdout
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1", cfg.Server.IP)
	require.Equal(t, uint16(9100), cfg.Server.Port)
	require.Equal(t, 8, cfg.Server.WorkerNum)
	require.Equal(t, "DEBUG", cfg.Logging.Level)
}

func TestLoadValidationFailsOnBadLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tinyrpc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: NOTALEVEL
  format: text
  output: stdout
`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tinyrpc.yaml")
	cfg := defaultConfig()
	cfg.Server.WorkerNum = 6

	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 6, loaded.Server.WorkerNum)
}
