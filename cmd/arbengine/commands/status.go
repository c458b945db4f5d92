package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowshift/arbengine/internal/admin"
)

// statusCmd prints a running instance's budgets, breakers, and per-chain
// queue backlog. The inFlight column is the number of opportunities
// waiting in the chain's queue lane; the Execution the orchestrator is
// currently running is not counted.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a running instance's budgets, breakers, and queue backlog",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := admin.Call(adminSocketPath(), admin.Request{Cmd: "status"})
		if err != nil {
			return err
		}
		if !resp.OK || resp.Status == nil {
			return fmt.Errorf("status failed: %s", resp.Message)
		}
		st := resp.Status
		fmt.Printf("killSwitch: %t\n", st.KillSwitch)
		fmt.Printf("simulationMode: %t\n", st.SimulationMode)
		for _, c := range st.Chains {
			fmt.Printf("chain %d: breaker=%s gasSpent=%s trades=%d realizedMargin=%s inFlight=%d\n",
				c.ChainID, c.BreakerState, c.GasSpentNative, c.TradesSubmitted, c.RealizedMarginUSD, st.InFlight[c.ChainID])
		}
		return nil
	},
}
