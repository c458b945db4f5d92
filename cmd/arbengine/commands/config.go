package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowshift/arbengine/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or scaffold the engine configuration document",
}

func init() {
	configCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path arbengine would load",
		Run: func(cmd *cobra.Command, args []string) {
			if cfgFile != "" {
				fmt.Println(cfgFile)
				return
			}
			fmt.Println("./config.yaml (or ./configs/config.yaml, /etc/arbengine/config.yaml)")
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Load the config document and print its effective values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("chains: %d configured\n", len(cfg.Chains))
			for _, c := range cfg.Chains {
				fmt.Printf("  - %s (chainId=%d) %s\n", c.Name, c.ChainID, c.RPCEndpoint)
			}
			fmt.Printf("pairs: %d watched\n", len(cfg.Pairs))
			fmt.Printf("venues: %d configured\n", len(cfg.Venues))
			fmt.Printf("providers: %d configured\n", len(cfg.Providers))
			fmt.Printf("minMarginBps: %d\n", cfg.MinMarginBps)
			fmt.Printf("maxSlippage: %s\n", cfg.MaxSlippage)
			fmt.Printf("scanPeriodMs: %d\n", cfg.ScanPeriodMs)
			fmt.Printf("loadBalancing: %s\n", cfg.LoadBalancing)
			fmt.Printf("simulationMode: %t\n", cfg.SimulationMode)
			fmt.Printf("killSwitch: %t\n", cfg.KillSwitch)
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a minimal starter config.yaml to the current directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				path = "config.yaml"
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists, refusing to overwrite", path)
			}
			return os.WriteFile(path, []byte(starterConfig), 0o644)
		},
	})
}

const starterConfig = `# arbengine configuration, spec §6 EXTERNAL INTERFACES.
chains:
  - chainId: 1
    name: ethereum
    rpcEndpoint: "https://eth-mainnet.example.invalid"
    blockTimeMs: 12000

tokens:
  - chainId: 1
    symbol: WETH
    address: "0x0000000000000000000000000000000000dEaD"
    decimals: 18
  - chainId: 1
    symbol: USDC
    address: "0x0000000000000000000000000000000000bEEf"
    decimals: 6

venues:
  - chainId: 1
    key: uniswap-v2
    kind: uniswap_v2
    router: "0x0000000000000000000000000000000000c0De"
    factory: "0x0000000000000000000000000000000000cafe"
    feeBps: 30

providers:
  - chainId: 1
    key: aave-v3
    kind: aave_v3
    contract: "0x0000000000000000000000000000000000f00d"
    feeBps: 9
    supportedTokens: [WETH, USDC]
    gasLimitHint: 450000
    maxBorrowFraction: "0.9"

pairs:
  - chainId: 1
    tokenA: WETH
    tokenB: USDC
    venueKeys: [uniswap-v2]
    providerKeys: [aave-v3]
    minVolume24hUsd: 1000000
    minTradeSizeUsd: 1000

minMarginBps: 25
maxSlippage: "0.001"
scanPeriodMs: 5000
queueCapacity: 64
loadBalancing: least-loaded
circuitBreakerThreshold: 5
circuitBreakerCooldownMs: 60000
pendingDeadlineMs: 90000
simulationMode: true
killSwitch: false
`
