// Package config loads and validates the validator service configuration
// from environment variables. A .env file is honored when present.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the validator service.
type Config struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
	APIToken string `json:"-"`

	// Miner dispatch
	MinerEndpoints    []string      `json:"miner_endpoints"`
	MinerTimeout      time.Duration `json:"miner_timeout"`
	MaxMinersPerRound int           `json:"max_miners_per_round"`

	// Round loop
	RoundInterval    time.Duration `json:"round_interval"`
	OrganicEveryNth  int           `json:"organic_every_nth"`
	DirectoryRefresh time.Duration `json:"directory_refresh"`

	// Reference data API
	RefAPIURL          string        `json:"ref_api_url"`
	RefAPIKey          string        `json:"-"`
	RefAPITimeout      time.Duration `json:"ref_api_timeout"`
	RefAPICacheTTL     time.Duration `json:"ref_api_cache_ttl"`
	RefAPIMaxRetries   int           `json:"ref_api_max_retries"`
	RefAPIRetryDelay   time.Duration `json:"ref_api_retry_delay"`
	CompaniesEndpoint  string        `json:"companies_endpoint"`
	ValidationEndpoint string        `json:"validation_endpoint"`

	// Grading blend. StructureWeight and AccuracyWeight must sum to 1.0;
	// latency and confidence weights are layered on top of that blend and
	// the final score is clamped, so all four deliberately sum to 1.3.
	StructureWeight  float64 `json:"structure_weight"`
	AccuracyWeight   float64 `json:"accuracy_weight"`
	LatencyWeight    float64 `json:"latency_weight"`
	ConfidenceWeight float64 `json:"confidence_weight"`

	// Incentive mechanism
	MovingAverageAlpha float64 `json:"moving_average_alpha"`
	SoftmaxTemperature float64 `json:"softmax_temperature"`

	// State persistence
	StateFile string `json:"state_file"`

	// Chain submission
	ChainEnabled    bool   `json:"chain_enabled"`
	EthRPCURL       string `json:"-"`
	ContractAddress string `json:"contract_address"`
	PrivateKeyHex   string `json:"-"`
	SubnetID        uint64 `json:"subnet_id"`
}

// Load reads configuration from the environment. Missing optional values get
// defaults; invalid values fail loading.
func Load() (*Config, error) {
	// Best effort; real environment variables win over the file.
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		APIToken:           getEnv("API_TOKEN", ""),
		MinerEndpoints:     splitList(getEnv("MINER_ENDPOINTS", "")),
		RefAPIURL:          getEnv("REF_API_URL", ""),
		RefAPIKey:          getEnv("REF_API_KEY", ""),
		CompaniesEndpoint:  getEnv("REF_COMPANIES_ENDPOINT", "/validator/companies"),
		ValidationEndpoint: getEnv("REF_VALIDATION_ENDPOINT", "/validator/<ticker>/types/<category>"),
		StateFile:          getEnv("STATE_FILE", "validator_state.json"),
		EthRPCURL:          getEnv("ETH_RPC_URL", ""),
		ContractAddress:    getEnv("WEIGHTS_CONTRACT_ADDRESS", ""),
		PrivateKeyHex:      getEnv("VALIDATOR_PRIVATE_KEY", ""),
	}

	var err error
	if cfg.Port, err = getEnvInt("PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.MaxMinersPerRound, err = getEnvInt("MAX_MINERS_PER_ROUND", 20); err != nil {
		return nil, err
	}
	if cfg.OrganicEveryNth, err = getEnvInt("ORGANIC_EVERY_NTH", 10); err != nil {
		return nil, err
	}
	if cfg.RefAPIMaxRetries, err = getEnvInt("REF_API_MAX_RETRIES", 2); err != nil {
		return nil, err
	}

	if cfg.MinerTimeout, err = getEnvDuration("MINER_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RoundInterval, err = getEnvDuration("ROUND_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.DirectoryRefresh, err = getEnvDuration("DIRECTORY_REFRESH", time.Hour); err != nil {
		return nil, err
	}
	if cfg.RefAPITimeout, err = getEnvDuration("REF_API_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RefAPICacheTTL, err = getEnvDuration("REF_API_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RefAPIRetryDelay, err = getEnvDuration("REF_API_RETRY_DELAY", time.Second); err != nil {
		return nil, err
	}

	if cfg.StructureWeight, err = getEnvFloat("STRUCTURE_WEIGHT", 0.3); err != nil {
		return nil, err
	}
	if cfg.AccuracyWeight, err = getEnvFloat("ACCURACY_WEIGHT", 0.7); err != nil {
		return nil, err
	}
	if cfg.LatencyWeight, err = getEnvFloat("LATENCY_WEIGHT", 0.15); err != nil {
		return nil, err
	}
	if cfg.ConfidenceWeight, err = getEnvFloat("CONFIDENCE_WEIGHT", 0.15); err != nil {
		return nil, err
	}
	if cfg.MovingAverageAlpha, err = getEnvFloat("MOVING_AVERAGE_ALPHA", 0.1); err != nil {
		return nil, err
	}
	if cfg.SoftmaxTemperature, err = getEnvFloat("SOFTMAX_TEMPERATURE", 2.0); err != nil {
		return nil, err
	}

	cfg.ChainEnabled = getEnv("CHAIN_ENABLED", "false") == "true"
	subnetID, err := getEnvInt("SUBNET_ID", 0)
	if err != nil {
		return nil, err
	}
	cfg.SubnetID = uint64(subnetID)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration. Failures here are fatal at startup and
// never recovered at runtime.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be in 1..65535, got %d", c.Port)
	}

	if math.Abs(c.StructureWeight+c.AccuracyWeight-1.0) > 0.01 {
		return fmt.Errorf("structure and accuracy weights must sum to 1.0, got %.4f",
			c.StructureWeight+c.AccuracyWeight)
	}
	if c.LatencyWeight < 0 || c.ConfidenceWeight < 0 {
		return fmt.Errorf("latency and confidence weights must be non-negative")
	}

	if c.MinerTimeout <= 0 {
		return fmt.Errorf("miner timeout must be positive, got %s", c.MinerTimeout)
	}
	if c.RoundInterval <= 0 {
		return fmt.Errorf("round interval must be positive, got %s", c.RoundInterval)
	}
	if c.RefAPITimeout <= 0 {
		return fmt.Errorf("reference API timeout must be positive, got %s", c.RefAPITimeout)
	}

	if c.MaxMinersPerRound < 1 {
		return fmt.Errorf("max miners per round must be at least 1, got %d", c.MaxMinersPerRound)
	}
	if c.OrganicEveryNth < 1 {
		return fmt.Errorf("organic round cadence must be at least 1, got %d", c.OrganicEveryNth)
	}

	if c.MovingAverageAlpha <= 0 || c.MovingAverageAlpha > 1 {
		return fmt.Errorf("moving average alpha must be in (0,1], got %.4f", c.MovingAverageAlpha)
	}
	if c.SoftmaxTemperature <= 0 {
		return fmt.Errorf("softmax temperature must be positive, got %.4f", c.SoftmaxTemperature)
	}

	for _, endpoint := range c.MinerEndpoints {
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			return fmt.Errorf("miner endpoint %q must be an http(s) URL", endpoint)
		}
	}

	if c.ChainEnabled {
		if c.EthRPCURL == "" {
			return fmt.Errorf("ETH_RPC_URL is required when chain submission is enabled")
		}
		if c.ContractAddress == "" {
			return fmt.Errorf("WEIGHTS_CONTRACT_ADDRESS is required when chain submission is enabled")
		}
		if c.PrivateKeyHex == "" {
			return fmt.Errorf("VALIDATOR_PRIVATE_KEY is required when chain submission is enabled")
		}
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return v, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
