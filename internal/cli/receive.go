package cli

import (
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/flightdrop/flightdrop/internal/config"
	"github.com/flightdrop/flightdrop/internal/peer"
	"github.com/flightdrop/flightdrop/internal/transfer"
	"github.com/flightdrop/flightdrop/internal/ui"
)

var (
	flagOut         string
	flagRecvDomain  string
	flagRecvName    string
	flagRecvSTUN    string
	flagRecvTURN    string
	flagRecvTURNUsr string
	flagRecvTURNPwd string
	flagRecvRelay   bool
	flagRecvInsec   bool
)

var receiveCmd = &cobra.Command{
	Use:     "receive <code-or-link>",
	Aliases: []string{"r", "recv"},
	Short:   "Receive files using a flight code or link",
	Long: `Join a flight and receive its files. Accepts the six-character code
shown on the sender's screen or the full share link.

Examples:
  flightdrop receive AB12CD
  flightdrop receive https://flightdrop.app/f/AB12CD
  flightdrop receive AB12CD --out ~/Downloads`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := parseFlightCode(args[0])
		if err != nil {
			return err
		}
		return receiveFiles(code)
	},
}

func receiveFiles(code string) error {
	cfg, err := LoadConfig(config.Options{
		Domain:      flagRecvDomain,
		DisplayName: flagRecvName,
		STUNServer:  flagRecvSTUN,
		TURNServer:  flagRecvTURN,
		TURNUser:    flagRecvTURNUsr,
		TURNPass:    flagRecvTURNPwd,
		ForceRelay:  flagRecvRelay,
		OutputDir:   flagOut,
		Insecure:    flagRecvInsec,
	})
	if err != nil {
		return err
	}

	spin := ui.NewConnectionSpinner("Connecting to relay...")
	spin.Start()
	ctx, err := NewConnectionContext(cfg)
	if err != nil {
		spin.Error("Connection failed")
		return err
	}
	defer ctx.Close()
	spin.Stop()

	if err := joinFlight(ctx, code); err != nil {
		return err
	}

	link, err := peer.NewLink(cfg, ctx.Client)
	if err != nil {
		return err
	}
	defer link.Close()
	go link.Run(ctx.Handler.Signals)

	spin = ui.NewWaitingSpinner("Waiting for sender...")
	spin.Start()
	dc, err := waitForChannel(link)
	if err != nil {
		spin.Error("Connection failed")
		return err
	}
	spin.Success("Peer connected")
	fmt.Println()

	manifests := make(chan []transfer.FileMeta, 1)
	devices := make(chan transfer.DeviceInfo, 1)
	engine := buildEngine(dc, cfg, func(env *transfer.Envelope) {
		switch env.Type {
		case transfer.AuxTypeManifest:
			var metas []transfer.FileMeta
			if err := env.Decode(&metas); err != nil {
				log.Warn().Err(err).Msg("bad manifest envelope")
				return
			}
			select {
			case manifests <- metas:
			default:
			}
		case transfer.AuxTypeDeviceInfo:
			var dev transfer.DeviceInfo
			if err := env.Decode(&dev); err != nil {
				return
			}
			select {
			case devices <- dev:
			default:
			}
		}
	})
	defer engine.Close()

	started := time.Now()
	metas, err := runReceiveLoop(ctx, engine, manifests, devices)
	if err != nil {
		return err
	}

	_, received := engine.Totals()
	printReceiveSummary(len(metas), received, cfg, time.Since(started))
	return nil
}

// runReceiveLoop drives the progress display until every file named in
// the manifest has settled. It returns the manifest for the summary.
func runReceiveLoop(ctx *ConnectionContext, engine *transfer.Engine, manifests <-chan []transfer.FileMeta, devices <-chan transfer.DeviceInfo) ([]transfer.FileMeta, error) {
	model := ui.NewProgressModel()
	runner := ui.RunProgress(model)
	defer runner.Stop()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	var metas []transfer.FileMeta
	expected := -1
	settled := make(map[string]bool)
	active := make(map[string]bool)
	disconnected := ctx.Handler.Disconnected

	for {
		select {
		case dev := <-devices:
			ui.PrintInfof("Receiving from %s (%s)", dev.Name, dev.Version)

		case metas = <-manifests:
			expected = len(metas)
			items := make([]ui.FileTableItem, len(metas))
			for i, meta := range metas {
				items[i] = ui.FileTableItem{Index: i + 1, Name: meta.Path, Size: meta.Size, Type: meta.Type}
			}
			ui.RenderFileTable(items)
			fmt.Println()
			if expected == 0 {
				return metas, nil
			}

		case event := <-engine.Events():
			applyEvent(model, event)
			if event.Status.Terminal() {
				settled[event.TransferID] = true
				delete(active, event.TransferID)
			} else {
				active[event.TransferID] = true
			}
			if expected >= 0 && len(settled) >= expected {
				return metas, nil
			}

		case users := <-ctx.Handler.FlightUsers:
			if !users.OwnerConnected {
				ui.PrintWarning("Sender disconnected from the relay")
			}

		case <-interrupt:
			for id := range active {
				engine.Cancel(id)
			}
			return nil, fmt.Errorf("transfer interrupted")

		case <-model.Interrupted():
			for id := range active {
				engine.Cancel(id)
			}
			return nil, fmt.Errorf("transfer interrupted")

		case <-disconnected:
			// The peer link is already established; relay loss only
			// matters before that point. Keep receiving.
			log.Debug().Msg("relay connection dropped mid-transfer")
			disconnected = nil

		case <-engine.Done():
			return nil, transfer.ErrSessionClosed
		}
	}
}

func joinFlight(ctx *ConnectionContext, code string) error {
	ctx.Client.JoinFlight(code)

	select {
	case result := <-ctx.Handler.JoinResult:
		if !result.Success {
			return fmt.Errorf("join flight: %s", result.Message)
		}
		return nil
	case msg := <-ctx.Handler.Error:
		return fmt.Errorf("join flight: %s", msg)
	case <-ctx.Handler.Disconnected:
		return transfer.ErrSessionClosed
	case <-time.After(relayTimeout):
		return fmt.Errorf("timed out joining flight")
	}
}

func printReceiveSummary(fileCount int, total int64, cfg *config.Config, elapsed time.Duration) {
	printSummary("Files Received", fileCount, total, elapsed)

	dest := cfg.OutputDir
	if dest == "" {
		dest = "."
	}
	ui.PrintSuccessf("Saved to %s", dest)
}

// parseFlightCode accepts a bare code or a share link of the form
// https://<domain>/f/<code>.
func parseFlightCode(arg string) (string, error) {
	raw := strings.TrimSpace(arg)
	if raw == "" {
		return "", fmt.Errorf("empty flight code")
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("invalid flight link: %w", err)
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) != 2 || parts[0] != "f" || parts[1] == "" {
			return "", fmt.Errorf("invalid flight link %q", raw)
		}
		raw = parts[1]
	}

	return strings.ToUpper(raw), nil
}

func init() {
	rootCmd.AddCommand(receiveCmd)

	receiveCmd.Flags().StringVarP(&flagOut, "out", "o", "", "Directory to save received files")
	receiveCmd.Flags().StringVarP(&flagRecvDomain, "domain", "d", "", "Custom relay domain")
	receiveCmd.Flags().StringVarP(&flagRecvName, "name", "n", "", "Display name shown to the sender")
	receiveCmd.Flags().StringVar(&flagRecvSTUN, "stun", "", "Custom STUN server")
	receiveCmd.Flags().StringVar(&flagRecvTURN, "turn", "", "Custom TURN server")
	receiveCmd.Flags().StringVar(&flagRecvTURNUsr, "turn-user", "", "TURN username")
	receiveCmd.Flags().StringVar(&flagRecvTURNPwd, "turn-pass", "", "TURN password")
	receiveCmd.Flags().BoolVarP(&flagRecvRelay, "relay", "r", false, "Force relayed (TURN) transport")
	receiveCmd.Flags().BoolVar(&flagRecvInsec, "insecure", false, "Use ws:// instead of wss://")
}
