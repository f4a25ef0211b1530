package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	DefaultModel             = "gpt-4o-mini"
	DefaultMaxTokens         = 2048
	DefaultTemperature       = 0.7
	DefaultTickMs            = 100
	DefaultAutoSaveMinutes   = 10
	DefaultMaxAttempts       = 3
	DefaultBufSize           = 100
	DefaultCeremonyTime      = "03:00"
	DefaultTopicCapacity     = 7
	DefaultTokenBudget       = 8000
	DefaultDecayRate         = 0.15
	DefaultAutoCheckpoints   = 10
	DefaultManualSlots       = 5
	DefaultCheckpointBackend = "file"
)

type Config struct {
	Provider   ProviderConfig   `json:"provider"`
	Engine     EngineConfig     `json:"engine"`
	Extraction ExtractionConfig `json:"extraction"`
	Ceremony   CeremonyConfig   `json:"ceremony"`
	Checkpoint CheckpointConfig `json:"checkpoint"`
}

type ProviderConfig struct {
	APIKey      string  `json:"apiKey"`
	BaseURL     string  `json:"baseUrl,omitempty"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"maxTokens"`
	Temperature float64 `json:"temperature"`
}

type EngineConfig struct {
	TickMs          int `json:"tickMs"`
	AutoSaveMinutes int `json:"autoSaveMinutes"`
	MaxAttempts     int `json:"maxAttempts"`
	BusBufSize      int `json:"busBufSize"`
}

type ExtractionConfig struct {
	TokenBudget int `json:"tokenBudget"`
	// ModelBudgets maps known model names to larger context budgets.
	ModelBudgets map[string]int `json:"modelBudgets,omitempty"`
}

type CeremonyConfig struct {
	Time          string  `json:"time"` // HH:MM local time
	TopicCapacity int     `json:"topicCapacity"`
	DecayRate     float64 `json:"decayRate"`
}

type CheckpointConfig struct {
	Backend     string `json:"backend"` // "file" or "sqlite"
	Dir         string `json:"dir,omitempty"`
	DBPath      string `json:"dbPath,omitempty"`
	AutoSlots   int    `json:"autoSlots"`
	ManualSlots int    `json:"manualSlots"`
}

func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Model:       DefaultModel,
			MaxTokens:   DefaultMaxTokens,
			Temperature: DefaultTemperature,
		},
		Engine: EngineConfig{
			TickMs:          DefaultTickMs,
			AutoSaveMinutes: DefaultAutoSaveMinutes,
			MaxAttempts:     DefaultMaxAttempts,
			BusBufSize:      DefaultBufSize,
		},
		Extraction: ExtractionConfig{
			TokenBudget: DefaultTokenBudget,
		},
		Ceremony: CeremonyConfig{
			Time:          DefaultCeremonyTime,
			TopicCapacity: DefaultTopicCapacity,
			DecayRate:     DefaultDecayRate,
		},
		Checkpoint: CheckpointConfig{
			Backend:     DefaultCheckpointBackend,
			AutoSlots:   DefaultAutoCheckpoints,
			ManualSlots: DefaultManualSlots,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".eidolon")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// DataDir is where checkpoints and state live unless overridden.
func DataDir() string {
	return filepath.Join(ConfigDir(), "data")
}

func LoadConfig() (*Config, error) {
	// A .env alongside the working directory may carry the API key.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if key := os.Getenv("EIDOLON_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if url := os.Getenv("EIDOLON_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if model := os.Getenv("EIDOLON_MODEL"); model != "" {
		cfg.Provider.Model = model
	}
	if v := os.Getenv("EIDOLON_TICK_MS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.Engine.TickMs = parsed
		}
	}
	if v := os.Getenv("EIDOLON_TOKEN_BUDGET"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.Extraction.TokenBudget = parsed
		}
	}
	if v := os.Getenv("EIDOLON_CEREMONY_TIME"); v != "" {
		cfg.Ceremony.Time = v
	}
	if v := os.Getenv("EIDOLON_CHECKPOINT_BACKEND"); v != "" {
		cfg.Checkpoint.Backend = v
	}
	if v := os.Getenv("EIDOLON_CHECKPOINT_DIR"); v != "" {
		cfg.Checkpoint.Dir = v
	}
	if v := os.Getenv("EIDOLON_CHECKPOINT_DB"); v != "" {
		cfg.Checkpoint.DBPath = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Provider.Model == "" {
		cfg.Provider.Model = DefaultModel
	}
	if cfg.Provider.MaxTokens <= 0 {
		cfg.Provider.MaxTokens = DefaultMaxTokens
	}
	if cfg.Engine.TickMs <= 0 {
		cfg.Engine.TickMs = DefaultTickMs
	}
	if cfg.Engine.AutoSaveMinutes <= 0 {
		cfg.Engine.AutoSaveMinutes = DefaultAutoSaveMinutes
	}
	if cfg.Engine.MaxAttempts <= 0 {
		cfg.Engine.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Engine.BusBufSize <= 0 {
		cfg.Engine.BusBufSize = DefaultBufSize
	}
	if cfg.Extraction.TokenBudget <= 0 {
		cfg.Extraction.TokenBudget = DefaultTokenBudget
	}
	if cfg.Ceremony.Time == "" {
		cfg.Ceremony.Time = DefaultCeremonyTime
	}
	if cfg.Ceremony.TopicCapacity <= 0 {
		cfg.Ceremony.TopicCapacity = DefaultTopicCapacity
	}
	if cfg.Ceremony.DecayRate <= 0 {
		cfg.Ceremony.DecayRate = DefaultDecayRate
	}
	if cfg.Checkpoint.Backend == "" {
		cfg.Checkpoint.Backend = DefaultCheckpointBackend
	}
	if cfg.Checkpoint.Dir == "" {
		cfg.Checkpoint.Dir = filepath.Join(DataDir(), "checkpoints")
	}
	if cfg.Checkpoint.DBPath == "" {
		cfg.Checkpoint.DBPath = filepath.Join(DataDir(), "checkpoints.db")
	}
	if cfg.Checkpoint.AutoSlots <= 0 {
		cfg.Checkpoint.AutoSlots = DefaultAutoCheckpoints
	}
	if cfg.Checkpoint.ManualSlots <= 0 {
		cfg.Checkpoint.ManualSlots = DefaultManualSlots
	}
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}

// TokenBudgetFor resolves the chunking budget for a model: an explicit
// per-model entry wins, then the configured default.
func (c *Config) TokenBudgetFor(model string) int {
	if budget, ok := c.Extraction.ModelBudgets[model]; ok && budget > 0 {
		return budget
	}
	if budget, ok := knownModelBudgets[model]; ok && budget > c.Extraction.TokenBudget {
		return budget
	}
	return c.Extraction.TokenBudget
}

// knownModelBudgets lists context budgets for models with windows larger
// than the conservative default. Only a safe lower bound matters here.
var knownModelBudgets = map[string]int{
	"gpt-4o":      100000,
	"gpt-4o-mini": 100000,
	"gpt-4-turbo": 100000,
}
