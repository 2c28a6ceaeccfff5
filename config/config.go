package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"
)

type CircuitConfig struct {
	Inputs    uint32 `toml:"inputs"`
	Outputs   uint32 `toml:"outputs"`
	TreeDepth uint32 `toml:"tree_depth"`
}

type ServerConfig struct {
	ProverAddress  string `toml:"prover_address"`
	MetricsAddress string `toml:"metrics_address"`
	RedisURL       string `toml:"redis_url"`
	APIKey         string `toml:"api_key"`
}

type Config struct {
	Keys    []string      `toml:"keys"`
	Circuit CircuitConfig `toml:"circuit"`
	Server  ServerConfig  `toml:"server"`
}

// Defaults matches the 2-in/2-out, depth 4 setup used throughout the tests.
func Defaults() Config {
	return Config{
		Circuit: CircuitConfig{
			Inputs:    2,
			Outputs:   2,
			TreeDepth: 4,
		},
		Server: ServerConfig{
			ProverAddress:  "localhost:3001",
			MetricsAddress: "localhost:9998",
		},
	}
}

func (cfg *Config) HasKey(key string) bool {
	for _, k := range cfg.Keys {
		if k == key {
			return true
		}
	}
	return false
}

// ReadConfig decodes file over Defaults, so omitted tables keep their default values.
func ReadConfig(file string) (Config, error) {
	cfg := Defaults()
	configFileData, err := os.ReadFile(file)
	if err != nil {
		return cfg, err
	}
	err = toml.Unmarshal(configFileData, &cfg)
	if err != nil {
		return cfg, err
	}
	if cfg.Server.APIKey == "" {
		cfg.Server.APIKey = os.Getenv("PROVER_API_KEY")
	}
	return cfg, nil
}
