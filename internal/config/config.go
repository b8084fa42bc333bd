package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/wardenhq/warden/internal/core/domain"
)

// Config is the host process configuration, read once at startup.
type Config struct {
	DBPath     string `yaml:"db_path"`
	ListenAddr string `yaml:"listen_addr"`

	Jobs       JobsConfig              `yaml:"jobs"`
	Extensions ExtensionsConfig        `yaml:"extensions"`
	Scheduled  []domain.ScheduledEntry `yaml:"scheduled_entries"`
	Agent      AgentConfig             `yaml:"agent"`
	LLM        LLMConfig               `yaml:"llm"`
}

type JobsConfig struct {
	MaxConcurrent      int64 `yaml:"max_concurrent"`
	CancelGraceSeconds int   `yaml:"cancel_grace_seconds"`
}

// ExtensionsConfig names the base directory and the explicit allowlist
// of extensions to activate. Absence from the allowlist means the
// extension is not loaded at all.
type ExtensionsConfig struct {
	Dir    string   `yaml:"dir"`
	Active []string `yaml:"active"`
}

type AgentConfig struct {
	MaxSteps       int      `yaml:"max_steps"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	AllowedActions []string `yaml:"allowed_actions"`
}

// Timeout returns the wall-clock bound as a duration.
func (c AgentConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type LLMConfig struct {
	Provider string `yaml:"provider"` // "ollama" or "openai"
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DBPath:     "warden.db",
		ListenAddr: ":8420",
		Jobs: JobsConfig{
			MaxConcurrent:      10,
			CancelGraceSeconds: 5,
		},
		Extensions: ExtensionsConfig{Dir: "extensions"},
		Agent: AgentConfig{
			MaxSteps:       10,
			TimeoutSeconds: 300,
		},
		LLM: LLMConfig{Provider: "ollama", Model: "llama3.1"},
	}
}

// Load reads the YAML file at path (optional) over the defaults, then
// applies environment overrides. A .env file next to the process is
// honoured when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("WARDEN_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("WARDEN_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("WARDEN_EXTENSIONS_DIR"); v != "" {
		c.Extensions.Dir = v
	}
	if v := os.Getenv("WARDEN_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("WARDEN_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("WARDEN_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
}
