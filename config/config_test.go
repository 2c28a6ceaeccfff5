package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/require"
)

func TestConfigFile(t *testing.T) {
	doc := `
keys = ["circuits/joinsplit_2_2_4.key", "circuits/joinsplit_1_1_4.key"]

[circuit]
inputs = 2
outputs = 2
tree_depth = 4

[server]
prover_address = "0.0.0.0:3001"
redis_url = "redis://localhost:6379/0"
`
	var cfg Config
	err := toml.Unmarshal([]byte(doc), &cfg)
	require.NoError(t, err)

	require.Len(t, cfg.Keys, 2)
	require.True(t, cfg.HasKey("circuits/joinsplit_1_1_4.key"))
	require.False(t, cfg.HasKey("circuits/joinsplit_3_3_4.key"))
	require.Equal(t, uint32(4), cfg.Circuit.TreeDepth)
	require.Equal(t, "0.0.0.0:3001", cfg.Server.ProverAddress)
	require.Equal(t, "redis://localhost:6379/0", cfg.Server.RedisURL)
}

func TestReadConfigKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("keys = [\"a.key\"]\n"), 0o644))
	t.Setenv("PROVER_API_KEY", "secret")

	cfg, err := ReadConfig(path)
	require.NoError(t, err)

	defaults := Defaults()
	require.Equal(t, defaults.Circuit, cfg.Circuit)
	require.Equal(t, defaults.Server.ProverAddress, cfg.Server.ProverAddress)
	require.Equal(t, defaults.Server.MetricsAddress, cfg.Server.MetricsAddress)
	require.Equal(t, "secret", cfg.Server.APIKey)
	require.Equal(t, []string{"a.key"}, cfg.Keys)
}

func TestReadConfigMissingFile(t *testing.T) {
	_, err := ReadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
