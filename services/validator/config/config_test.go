package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Port:               8080,
		MinerTimeout:       30 * time.Second,
		MaxMinersPerRound:  20,
		RoundInterval:      time.Minute,
		OrganicEveryNth:    10,
		RefAPITimeout:      30 * time.Second,
		StructureWeight:    0.3,
		AccuracyWeight:     0.7,
		LatencyWeight:      0.15,
		ConfidenceWeight:   0.15,
		MovingAverageAlpha: 0.1,
		SoftmaxTemperature: 2.0,
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 20, cfg.MaxMinersPerRound)
	assert.Equal(t, 10, cfg.OrganicEveryNth)
	assert.InDelta(t, 0.3, cfg.StructureWeight, 1e-9)
	assert.InDelta(t, 0.7, cfg.AccuracyWeight, 1e-9)
	assert.InDelta(t, 0.1, cfg.MovingAverageAlpha, 1e-9)
	assert.InDelta(t, 2.0, cfg.SoftmaxTemperature, 1e-9)
	assert.False(t, cfg.ChainEnabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MINER_ENDPOINTS", "http://miner-a:7001, http://miner-b:7002")
	t.Setenv("ROUND_INTERVAL", "30s")
	t.Setenv("MOVING_AVERAGE_ALPHA", "0.2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"http://miner-a:7001", "http://miner-b:7002"}, cfg.MinerEndpoints)
	assert.Equal(t, 30*time.Second, cfg.RoundInterval)
	assert.InDelta(t, 0.2, cfg.MovingAverageAlpha, 1e-9)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	_, err := Load()
	require.Error(t, err)
}

func TestValidateWeightSum(t *testing.T) {
	cfg := validConfig()
	cfg.StructureWeight = 0.5
	cfg.AccuracyWeight = 0.6
	assert.Error(t, cfg.Validate())

	cfg.StructureWeight = 0.4
	assert.NoError(t, cfg.Validate())
}

func TestValidatePortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Port = 0
	assert.Error(t, cfg.Validate())

	cfg.Port = 70000
	assert.Error(t, cfg.Validate())
}

func TestValidateTimeouts(t *testing.T) {
	cfg := validConfig()
	cfg.MinerTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.RoundInterval = -time.Second
	assert.Error(t, cfg.Validate())
}

func TestValidateMinerEndpoints(t *testing.T) {
	cfg := validConfig()
	cfg.MinerEndpoints = []string{"http://ok:7001", "tcp://bad:7002"}
	assert.Error(t, cfg.Validate())
}

func TestValidateAlphaAndTemperature(t *testing.T) {
	cfg := validConfig()
	cfg.MovingAverageAlpha = 1.5
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.SoftmaxTemperature = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateChainRequirements(t *testing.T) {
	cfg := validConfig()
	cfg.ChainEnabled = true
	assert.Error(t, cfg.Validate(), "chain submission needs RPC, contract and key")

	cfg.EthRPCURL = "http://localhost:8545"
	cfg.ContractAddress = "0x0000000000000000000000000000000000000001"
	cfg.PrivateKeyHex = "ab"
	assert.NoError(t, cfg.Validate())
}
