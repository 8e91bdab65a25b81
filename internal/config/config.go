package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	API      struct {
		BaseURL        string  `json:"base_url"`
		Token          string  `json:"token"`
		TokenFile      string  `json:"token_file"`
		TimeoutSeconds int     `json:"timeout_seconds"`
		RateLimit      float64 `json:"rate_limit"`
		RateBurst      int     `json:"rate_burst"`
		MaxAttempts    int     `json:"max_attempts"`
	} `json:"api"`
	Chat struct {
		Target              string `json:"target"`
		TurnTimeoutSeconds  int    `json:"turn_timeout_seconds"`
		ReadBufferSize      int    `json:"read_buffer_size"`
		TitleRefreshSeconds []int  `json:"title_refresh_seconds"`
	} `json:"chat"`
	Output struct {
		Format string `json:"format"`
	} `json:"output"`
}

// Defaults returns the configuration used when no file exists.
func Defaults() *Config {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".gatewaychat"),
		LogLevel: "info",
	}
	cfg.API.BaseURL = "http://localhost:8000"
	cfg.API.TimeoutSeconds = 30
	cfg.API.RateLimit = 10
	cfg.API.RateBurst = 5
	cfg.API.MaxAttempts = 3
	cfg.Chat.Target = "openai"
	cfg.Chat.TurnTimeoutSeconds = 300
	cfg.Chat.ReadBufferSize = 4096
	cfg.Chat.TitleRefreshSeconds = []int{3, 6, 12}
	cfg.Output.Format = "text"
	return cfg
}

func Load(path string) (*Config, error) {
	cfg := Defaults()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if baseURL := os.Getenv("GATEWAY_API_URL"); baseURL != "" {
		cfg.API.BaseURL = baseURL
	}
	if token := os.Getenv("GATEWAY_TOKEN"); token != "" {
		cfg.API.Token = token
	}
	if tokenFile := os.Getenv("GATEWAY_TOKEN_FILE"); tokenFile != "" {
		cfg.API.TokenFile = tokenFile
	}

	return cfg, nil
}

// Save writes cfg to path atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// TurnTimeout is the upper bound on one streamed turn.
func (c *Config) TurnTimeout() time.Duration {
	return time.Duration(c.Chat.TurnTimeoutSeconds) * time.Second
}

// RequestTimeout bounds each non-streaming API call.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// TitleRefreshDelays converts the configured refresh offsets.
func (c *Config) TitleRefreshDelays() []time.Duration {
	out := make([]time.Duration, 0, len(c.Chat.TitleRefreshSeconds))
	for _, s := range c.Chat.TitleRefreshSeconds {
		if s > 0 {
			out = append(out, time.Duration(s)*time.Second)
		}
	}
	return out
}

// ToMap converts cfg to a nested map via its JSON form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues returns cfg as dot-separated keys, with secrets masked when
// mask is set.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// readRaw loads the config file as a nested map, keeping keys the Config
// struct does not know about.
func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// GetValue returns the value stored under a dot-separated key. The file
// is created with defaults if it does not exist yet.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	m, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := Flatten(m)[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue stores value under a dot-separated key in an existing config
// file. Values that parse as JSON (numbers, booleans, arrays) are stored
// typed; anything else is stored as a string.
func SetValue(path, key, value string) error {
	m, err := readRaw(path)
	if err != nil {
		return err
	}
	flat := Flatten(m)

	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}
	flat[key] = parsed

	data, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	// The result must still load.
	var check Config
	if err := json.Unmarshal(data, &check); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return writeFile(path, data)
}
