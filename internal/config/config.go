package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

type Config struct {
	Services ServicesConfig
	Project  ProjectConfig
	Storage  StorageConfig
	Server   ServerConfig
	Log      LogConfig
}

// ServicesConfig locates the upstream pipeline services.
type ServicesConfig struct {
	IngestURL string
	AgentURL  string
}

type ProjectConfig struct {
	// AppName overrides the onboarded project name in prompts and BDD
	// requests. Empty means use the stored project name.
	AppName string
}

type StorageConfig struct {
	DataDir    string
	QuotaBytes int
}

type ServerConfig struct {
	Port int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Services: ServicesConfig{
			IngestURL: "http://localhost:8001",
			AgentURL:  "http://localhost:8080",
		},
		Storage: StorageConfig{
			DataDir:    defaultDataDir(),
			QuotaBytes: 5 << 20,
		},
		Server: ServerConfig{
			Port: 4100,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file, a .env file in the
// working directory, and environment variables, in increasing precedence.
//
// The config file lives at $XDG_CONFIG_HOME/vqa/config.json. Environment
// variables (VQA_*) override file values; a .env file only sets variables
// that are not already present in the environment.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), ".env")
}

func loadWith(b ConfigBackend, dotenv string) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "[WARN] could not read %s: %v. Ignoring it.\n", dotenv, err)
		}
	}
	applyEnvOverrides(&cfg)

	if cfg.Storage.QuotaBytes < 0 {
		return Config{}, fmt.Errorf("storage.quota_bytes must not be negative, got %d", cfg.Storage.QuotaBytes)
	}
	if cfg.Services.IngestURL == "" || cfg.Services.AgentURL == "" {
		return Config{}, fmt.Errorf("missing required config: services.ingest_url and services.agent_url must be set")
	}
	return cfg, nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "vqa-data"
		}
	}
	return filepath.Join(dir, "vqa")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "vqa", "config.json")
}
