package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Ollama    OllamaConfig    `json:"ollama"`
	Storage   StorageConfig   `json:"storage"`
	Retrieval RetrievalConfig `json:"retrieval"`
	Auth      AuthConfig      `json:"auth"`
	Log       LogConfig       `json:"log"`
}

type ServerConfig struct {
	Port int `json:"port"`
}

type OllamaConfig struct {
	BaseURL    string `json:"base_url"`
	ChatModel  string `json:"chat_model"`
	EmbedModel string `json:"embed_model"`
}

type StorageConfig struct {
	DataDir string `json:"data_dir"`
}

type RetrievalConfig struct {
	TopK int `json:"top_k"`
}

// AuthConfig seeds the first user so a fresh install is reachable. Further
// users are added via the CLI.
type AuthConfig struct {
	BootstrapCodeword string `json:"bootstrap_codeword"`
	BootstrapName     string `json:"bootstrap_name"`
}

type LogConfig struct {
	Level string `json:"level"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4200,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			ChatModel:  "phi3.5",
			EmbedModel: "nomic-embed-text",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Retrieval: RetrievalConfig{
			TopK: 5,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration: built-in defaults, overlaid by the JSON file at
// $XDG_CONFIG_HOME/rubi/config.json (if present), overlaid by RUBI_*
// environment variables.
func Load() (Config, error) {
	cfg := defaults()

	if err := applyFile(&cfg, Path()); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	return cfg, nil
}

// Path returns the config file location.
func Path() string {
	return filepath.Join(configDir(), "config.json")
}

func configDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "rubi")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "rubi"
	}
	return filepath.Join(home, ".config", "rubi")
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "rubi")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".local", "share", "rubi")
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RUBI_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RUBI_OLLAMA_URL"); v != "" {
		cfg.Ollama.BaseURL = v
	}
	if v := os.Getenv("RUBI_CHAT_MODEL"); v != "" {
		cfg.Ollama.ChatModel = v
	}
	if v := os.Getenv("RUBI_EMBED_MODEL"); v != "" {
		cfg.Ollama.EmbedModel = v
	}
	if v := os.Getenv("RUBI_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("RUBI_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			cfg.Retrieval.TopK = k
		}
	}
	if v := os.Getenv("RUBI_BOOTSTRAP_CODEWORD"); v != "" {
		cfg.Auth.BootstrapCodeword = v
	}
	if v := os.Getenv("RUBI_BOOTSTRAP_NAME"); v != "" {
		cfg.Auth.BootstrapName = v
	}
	if v := os.Getenv("RUBI_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}
