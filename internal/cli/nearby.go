package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/flightdrop/flightdrop/internal/config"
	"github.com/flightdrop/flightdrop/internal/discovery"
	"github.com/flightdrop/flightdrop/internal/signaling"
	"github.com/flightdrop/flightdrop/internal/ui"
)

var (
	flagNearbyDomain string
	flagNearbyLocal  bool
	flagNearbyInsec  bool
)

var nearbyCmd = &cobra.Command{
	Use:     "nearby",
	Aliases: []string{"ls"},
	Short:   "List devices available to receive from",
	Long: `List flightdrop devices that are currently reachable: peers connected
to the relay that have not joined a flight yet, and devices announcing an
open flight on the local network.

Examples:
  flightdrop nearby
  flightdrop nearby --local`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listNearby()
	},
}

func listNearby() error {
	neighbors := scanLocal()

	var relayUsers []signaling.NearbyUser
	if !flagNearbyLocal {
		users, err := queryRelay()
		if err != nil {
			ui.PrintWarning(fmt.Sprintf("Relay unavailable: %v", err))
		} else {
			relayUsers = users
		}
	}

	if len(neighbors) == 0 && len(relayUsers) == 0 {
		ui.PrintInfo("No devices found")
		return nil
	}

	if len(neighbors) > 0 {
		fmt.Println()
		fmt.Println(ui.BoldStyle.Render("Local network"))
		for _, n := range neighbors {
			line := fmt.Sprintf("  %s %s", ui.IconFlight, n.Name)
			if n.Code != "" {
				line += ui.MutedStyle.Render(fmt.Sprintf("  (flight %s)", n.Code))
			}
			if len(n.Addresses) > 0 {
				line += ui.MutedStyle.Render("  " + strings.Join(n.Addresses, ", "))
			}
			fmt.Println(line)
		}
	}

	if len(relayUsers) > 0 {
		fmt.Println()
		fmt.Println(ui.BoldStyle.Render("Relay"))
		for _, user := range relayUsers {
			fmt.Printf("  %s %s %s\n", ui.IconFlight, user.Name, ui.MutedStyle.Render(user.ID))
		}
	}

	fmt.Println()
	return nil
}

func scanLocal() []discovery.Neighbor {
	spin := ui.NewSpinner("Scanning local network...")
	spin.Start()
	defer spin.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), discovery.ScanTimeout)
	defer cancel()

	neighbors, err := discovery.Scan(ctx, discovery.ScanTimeout)
	if err != nil {
		return nil
	}
	return neighbors
}

func queryRelay() ([]signaling.NearbyUser, error) {
	cfg, err := LoadConfig(config.Options{
		Domain:   flagNearbyDomain,
		Insecure: flagNearbyInsec,
	})
	if err != nil {
		return nil, err
	}

	ctx, err := NewConnectionContext(cfg)
	if err != nil {
		return nil, err
	}
	defer ctx.Close()

	ctx.Client.ListNearby()

	select {
	case users := <-ctx.Handler.NearbyUsers:
		return users, nil
	case msg := <-ctx.Handler.Error:
		return nil, fmt.Errorf("%s", msg)
	case <-ctx.Handler.Disconnected:
		return nil, fmt.Errorf("relay connection dropped")
	case <-time.After(relayTimeout):
		return nil, fmt.Errorf("timed out waiting for relay")
	}
}

func init() {
	rootCmd.AddCommand(nearbyCmd)

	nearbyCmd.Flags().StringVarP(&flagNearbyDomain, "domain", "d", "", "Custom relay domain")
	nearbyCmd.Flags().BoolVar(&flagNearbyLocal, "local", false, "Only scan the local network")
	nearbyCmd.Flags().BoolVar(&flagNearbyInsec, "insecure", false, "Use ws:// instead of wss://")
}
