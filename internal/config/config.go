package config

import (
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Server  ServerConfig
	Agents  AgentsConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

// AgentsConfig identifies the remote agent platform and the four agent
// roles this system calls. The ids are opaque platform identifiers.
type AgentsConfig struct {
	BaseURL      string
	APIKey       string
	Router       string
	Orchestrator string
	Composer     string
	Sender       string
	CallTimeout  string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Agents: AgentsConfig{
			BaseURL:      "https://agents.orgcopilot.dev",
			Router:       "696e415ee1e4c42b224b252d",
			Orchestrator: "696e4142c3a33af8ef0633c3",
			Composer:     "696e4179e1e4c42b224b2534",
			Sender:       "696e4197e1e4c42b224b2535",
			CallTimeout:  "30s",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "orgcopilot-data"
		}
	}
	return filepath.Join(dir, "orgcopilot")
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/orgcopilot/config.json with ORGCOPILOT_* environment
// variables taking precedence. The agent platform API key is secret and
// comes from the environment only.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Agents.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: agent platform API key. " +
			"Set it via environment variable ORGCOPILOT_AGENTS_API_KEY")
	}

	return cfg, nil
}
