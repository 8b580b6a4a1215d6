// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/FlavioCFOliveira/QNeuron/internal/layer"
	"github.com/joho/godotenv"
)

// DefaultQM9Source is where the QM9 CSV is published.
const DefaultQM9Source = "https://deepchemdata.s3-us-west-1.amazonaws.com/datasets/qm9.csv"

// Config holds application configuration
type Config struct {
	InputSize  int
	HiddenSize int
	NQubits    int
	NLayers    int
	Backend    string
	Seed       uint64
	Routing    string // reference or dedicated
	Embedding  string // truncate or strict

	QM9Source   string // https:// URL or s3://bucket/key
	QM9CacheDir string
	QM9Timeout  time.Duration
	AWSRegion   string

	LogLevel  string
	LogPretty bool
}

// Load reads configuration from environment variables, after loading a .env
// file from the working directory if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cacheDir := getEnv("QM9_CACHE_DIR", "")
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		cacheDir = filepath.Join(home, ".qneuron", "datasets")
	}
	absCacheDir, err := filepath.Abs(cacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory path: %w", err)
	}

	cfg := &Config{
		InputSize:   getEnvAsInt("QLSTM_INPUT_SIZE", 4),
		HiddenSize:  getEnvAsInt("QLSTM_HIDDEN_SIZE", 4),
		NQubits:     getEnvAsInt("QLSTM_N_QUBITS", 4),
		NLayers:     getEnvAsInt("QLSTM_N_LAYERS", 1),
		Backend:     getEnv("QLSTM_BACKEND", "default.qubit"),
		Seed:        getEnvAsUint("QLSTM_SEED", 42),
		Routing:     getEnv("QLSTM_ROUTING", "reference"),
		Embedding:   getEnv("QLSTM_EMBEDDING", "truncate"),
		QM9Source:   getEnv("QM9_SOURCE", DefaultQM9Source),
		QM9CacheDir: absCacheDir,
		QM9Timeout:  time.Duration(getEnvAsInt("QM9_TIMEOUT_SECONDS", 120)) * time.Second,
		AWSRegion:   getEnv("AWS_REGION", "us-west-1"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogPretty:   getEnvAsBool("LOG_PRETTY", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks sizes and enumerated settings.
func (c *Config) Validate() error {
	if c.InputSize <= 0 || c.HiddenSize <= 0 || c.NQubits <= 0 || c.NLayers <= 0 {
		return fmt.Errorf("invalid cell sizes: input=%d hidden=%d qubits=%d layers=%d",
			c.InputSize, c.HiddenSize, c.NQubits, c.NLayers)
	}
	if _, err := layer.ParseRouting(c.Routing); err != nil {
		return err
	}
	if _, err := layer.ParseEmbedding(c.Embedding); err != nil {
		return err
	}
	if c.QM9Timeout <= 0 {
		return fmt.Errorf("invalid QM9 timeout %s", c.QM9Timeout)
	}
	if !strings.HasPrefix(c.QM9Source, "https://") &&
		!strings.HasPrefix(c.QM9Source, "http://") &&
		!strings.HasPrefix(c.QM9Source, "s3://") {
		return fmt.Errorf("unsupported QM9 source %q", c.QM9Source)
	}
	return nil
}

// QLSTM converts the cell settings into a layer configuration.
func (c *Config) QLSTM() (layer.QLSTMConfig, error) {
	routing, err := layer.ParseRouting(c.Routing)
	if err != nil {
		return layer.QLSTMConfig{}, err
	}
	embedding, err := layer.ParseEmbedding(c.Embedding)
	if err != nil {
		return layer.QLSTMConfig{}, err
	}
	return layer.QLSTMConfig{
		InputSize:  c.InputSize,
		HiddenSize: c.HiddenSize,
		NQubits:    c.NQubits,
		NLayers:    c.NLayers,
		Backend:    c.Backend,
		Seed:       c.Seed,
		Routing:    routing,
		Embedding:  embedding,
	}, nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsUint(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if uintVal, err := strconv.ParseUint(value, 10, 64); err == nil {
			return uintVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
