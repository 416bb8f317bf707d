package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "ORGCOPILOT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "agents.base_url", typ: kString, env: "ORGCOPILOT_AGENTS_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Agents.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Agents.BaseURL },
	},
	{
		key: "agents.api_key", typ: kString, env: "ORGCOPILOT_AGENTS_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Agents.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Agents.APIKey },
	},
	{
		key: "agents.router", typ: kString, env: "ORGCOPILOT_AGENTS_ROUTER",
		apply:   func(cfg *Config, v any) { cfg.Agents.Router = v.(string) },
		extract: func(cfg Config) any { return cfg.Agents.Router },
	},
	{
		key: "agents.orchestrator", typ: kString, env: "ORGCOPILOT_AGENTS_ORCHESTRATOR",
		apply:   func(cfg *Config, v any) { cfg.Agents.Orchestrator = v.(string) },
		extract: func(cfg Config) any { return cfg.Agents.Orchestrator },
	},
	{
		key: "agents.composer", typ: kString, env: "ORGCOPILOT_AGENTS_COMPOSER",
		apply:   func(cfg *Config, v any) { cfg.Agents.Composer = v.(string) },
		extract: func(cfg Config) any { return cfg.Agents.Composer },
	},
	{
		key: "agents.sender", typ: kString, env: "ORGCOPILOT_AGENTS_SENDER",
		apply:   func(cfg *Config, v any) { cfg.Agents.Sender = v.(string) },
		extract: func(cfg Config) any { return cfg.Agents.Sender },
	},
	{
		key: "agents.call_timeout", typ: kString, env: "ORGCOPILOT_AGENTS_CALL_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Agents.CallTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Agents.CallTimeout },
	},
	{
		key: "storage.data_dir", typ: kString, env: "ORGCOPILOT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "ORGCOPILOT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
