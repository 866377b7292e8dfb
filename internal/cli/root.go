package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/flightdrop/flightdrop/internal/ui"
	"github.com/flightdrop/flightdrop/internal/version"
)

var rootCmd = &cobra.Command{
	Use:     "flightdrop",
	Short:   "Peer-to-peer file transfer over WebRTC data channels",
	Long: `Flightdrop transfers files directly between devices over a WebRTC
data channel. A lightweight relay only brokers the handshake: the sender
opens a flight, shares its six character code, and every byte then flows
peer to peer with backpressure, pause/resume, and cancel.`,
	Version: version.Version,
}

// Execute runs the CLI. Called once from main.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
