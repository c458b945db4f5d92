package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
chains:
  - chainId: 1
    name: ethereum
    rpcEndpoint: https://eth.example.com
    blockTimeMs: 12000
pairs:
  - chainId: 1
    tokenA: WETH
    tokenB: USDC
    venueKeys: [v1, v2]
    providerKeys: [p1]
    minVolume24hUsd: 100000
    minTradeSizeUsd: 500
loadBalancing: least-loaded
minMarginBps: 30
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_ParsesChainsAndPairs(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Chains, 1)
	assert.Equal(t, int64(1), cfg.Chains[0].ChainID)
	assert.Equal(t, "https://eth.example.com", cfg.Chains[0].RPCEndpoint)

	require.Len(t, cfg.Pairs, 1)
	assert.Equal(t, "WETH", cfg.Pairs[0].TokenA)
	assert.Equal(t, []string{"v1", "v2"}, cfg.Pairs[0].VenueKeys)
	assert.Equal(t, int64(30), cfg.MinMarginBps)
}

func TestLoad_AppliesDefaultsWhenKeysAbsent(t *testing.T) {
	path := writeTempConfig(t, `
chains:
  - chainId: 1
    name: ethereum
    rpcEndpoint: https://eth.example.com
loadBalancing: least-loaded
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(25), cfg.MinMarginBps)
	assert.Equal(t, 5000, cfg.ScanPeriodMs)
	assert.Equal(t, 64, cfg.QueueCapacity)
	assert.False(t, cfg.SimulationMode)
	assert.False(t, cfg.KillSwitch)
}

func TestLoad_RejectsMissingChains(t *testing.T) {
	path := writeTempConfig(t, `loadBalancing: least-loaded`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsUnknownLoadBalancingPolicy(t *testing.T) {
	path := writeTempConfig(t, `
chains:
  - chainId: 1
    name: ethereum
    rpcEndpoint: https://eth.example.com
loadBalancing: round-the-houses
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsPairReferencingUnknownChain(t *testing.T) {
	path := writeTempConfig(t, `
chains:
  - chainId: 1
    name: ethereum
    rpcEndpoint: https://eth.example.com
pairs:
  - chainId: 99
    tokenA: WETH
    tokenB: USDC
    venueKeys: [v1, v2]
    providerKeys: [p1]
loadBalancing: least-loaded
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsPairWithFewerThanTwoVenues(t *testing.T) {
	path := writeTempConfig(t, `
chains:
  - chainId: 1
    name: ethereum
    rpcEndpoint: https://eth.example.com
pairs:
  - chainId: 1
    tokenA: WETH
    tokenB: USDC
    venueKeys: [v1]
    providerKeys: [p1]
loadBalancing: least-loaded
`)
	_, err := Load(path)
	assert.Error(t, err)
}
