package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowshift/arbengine/internal/admin"
)

// stopCmd connects to a running instance and sets its kill-switch, spec
// §6: "stop (sets kill-switch)".
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Signal a running instance to stop admitting new trades",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := admin.Call(adminSocketPath(), admin.Request{Cmd: "stop"})
		if err != nil {
			return err
		}
		if !resp.OK {
			return fmt.Errorf("stop failed: %s", resp.Message)
		}
		fmt.Println(resp.Message)
		return nil
	},
}
