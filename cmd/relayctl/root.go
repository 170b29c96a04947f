package main

import (
	"github.com/danmuck/edgerelay/internal/observability"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "relayctl",
	Short: "Run dispatch chains and relay packets between them",
	Long: `relayctl hosts an in-process chain with the dispatcher, echo and
controller contracts, and relays packets between two such chains over gRPC.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		observability.InitLogger("relayctl")
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, relayCmd, demoCmd, configCmd)
}
