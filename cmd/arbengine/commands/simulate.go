package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/flowshift/arbengine/internal/admin"
)

// simulateCmd forces simulation mode for the next N scanner ticks on a
// running instance, spec §6: "simulate (force simulationMode for next N
// ticks)".
var simulateCmd = &cobra.Command{
	Use:   "simulate <n>",
	Short: "Force simulation mode for the next N scanner ticks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("expected a positive tick count, got %q", args[0])
		}
		resp, err := admin.Call(adminSocketPath(), admin.Request{Cmd: "simulate", N: n})
		if err != nil {
			return err
		}
		if !resp.OK {
			return fmt.Errorf("simulate failed: %s", resp.Message)
		}
		fmt.Println(resp.Message)
		return nil
	},
}
