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
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "services.ingest_url", typ: kString, env: "VQA_SERVICES_INGEST_URL",
		apply:   func(cfg *Config, v any) { cfg.Services.IngestURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Services.IngestURL },
	},
	{
		key: "services.agent_url", typ: kString, env: "VQA_SERVICES_AGENT_URL",
		apply:   func(cfg *Config, v any) { cfg.Services.AgentURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Services.AgentURL },
	},
	{
		key: "project.app_name", typ: kString, env: "VQA_PROJECT_APP_NAME",
		apply:   func(cfg *Config, v any) { cfg.Project.AppName = v.(string) },
		extract: func(cfg Config) any { return cfg.Project.AppName },
	},
	{
		key: "storage.data_dir", typ: kString, env: "VQA_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.quota_bytes", typ: kInt, env: "VQA_STORAGE_QUOTA_BYTES",
		apply:   func(cfg *Config, v any) { cfg.Storage.QuotaBytes = v.(int) },
		extract: func(cfg Config) any { return cfg.Storage.QuotaBytes },
	},
	{
		key: "server.port", typ: kInt, env: "VQA_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "log.level", typ: kString, env: "VQA_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
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
