package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flowshift/arbengine/pkg/config"
	"github.com/flowshift/arbengine/pkg/logger"
)

var (
	cfgFile    string
	socketFlag string
	loadedCfg  *config.Config
	log        *logger.Logger

	version   = "0.1.0"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// rootCmd is arbengine's base command, spec §6's operator surface
// (start, stop, status, simulate) plus config conveniences.
var rootCmd = &cobra.Command{
	Use:   "arbengine",
	Short: "Flash-loan funded atomic arbitrage engine for EVM chains",
	Long: `arbengine scans configured DEX venues for cross-venue price
divergence, estimates net profitability after gas, flash-loan fees, and
slippage, and atomically borrows, swaps, and repays within a single
transaction when the opportunity clears every admission rule.

It never holds a cross-chain position and never opens a trade its own
estimator has not first cleared.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd == configCmd || cmd.Parent() == configCmd {
			return nil
		}
		return loadConfig()
	},
}

// Execute is cmd/arbengine/main.go's single entrypoint call.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func init() {
	cobra.OnInitialize(initLogger)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config.yaml (default: ./config.yaml, ./configs/config.yaml, /etc/arbengine/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&socketFlag, "admin-socket", "/tmp/arbengine.sock", "unix-domain-socket path the running instance listens on")
	viper.BindPFlag("admin.socket", rootCmd.PersistentFlags().Lookup("admin-socket"))

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func initLogger() {
	log = logger.New("arbengine")
}

func loadConfig() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		fmt.Fprintln(os.Stderr, "run 'arbengine config path' to see where arbengine looks for it")
		return err
	}
	loadedCfg = cfg
	return nil
}

func adminSocketPath() string {
	return viper.GetString("admin.socket")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("arbengine v%s\n", version)
		fmt.Printf("build time: %s\n", buildTime)
		fmt.Printf("git commit: %s\n", gitCommit)
	},
}

// SetVersionInfo lets main.go inject ldflags-supplied build metadata.
func SetVersionInfo(v, bt, gc string) {
	version = v
	buildTime = bt
	gitCommit = gc
}
