package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/flightdrop/flightdrop/internal/config"
	"github.com/flightdrop/flightdrop/internal/discovery"
	"github.com/flightdrop/flightdrop/internal/files"
	"github.com/flightdrop/flightdrop/internal/peer"
	"github.com/flightdrop/flightdrop/internal/transfer"
	"github.com/flightdrop/flightdrop/internal/ui"
	"github.com/flightdrop/flightdrop/internal/version"
)

var (
	flagDomain   string
	flagName     string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
	flagInsecure bool
)

var sendCmd = &cobra.Command{
	Use:     "send [files...]",
	Aliases: []string{"s"},
	Short:   "Send files or directories to another device",
	Long: `Send files directly to another device over an encrypted peer-to-peer
connection. Directories are sent recursively with their structure preserved.

Examples:
  flightdrop send report.pdf photos/
  flightdrop send --domain drop.example.com file.txt
  flightdrop send --relay file.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return fmt.Errorf("no files specified")
		}
		return sendFiles(args)
	},
}

func sendFiles(paths []string) error {
	spin := ui.NewSpinner("Validating files...")
	spin.Start()
	entries, err := files.Collect(paths)
	if err != nil {
		spin.Stop()
		return err
	}
	spin.Stop()

	displayFileTable(entries)

	cfg, err := LoadConfig(config.Options{
		Domain:      flagDomain,
		DisplayName: flagName,
		STUNServer:  flagSTUN,
		TURNServer:  flagTURN,
		TURNUser:    flagTURNUser,
		TURNPass:    flagTURNPass,
		ForceRelay:  flagRelay,
		Insecure:    flagInsecure,
	})
	if err != nil {
		return err
	}

	fmt.Println()
	spin = ui.NewConnectionSpinner("Connecting to relay...")
	spin.Start()
	ctx, err := NewConnectionContext(cfg)
	if err != nil {
		spin.Error("Connection failed")
		return err
	}
	defer ctx.Close()
	spin.Stop()

	code, err := createFlight(ctx)
	if err != nil {
		return err
	}

	info := ui.FlightInfo{Code: code, Link: cfg.GetFlightLink(code)}
	fmt.Println(info.View())

	announcer, err := discovery.Advertise(cfg.DisplayName, code)
	if err != nil {
		log.Debug().Err(err).Msg("mDNS advertise unavailable")
	} else {
		defer announcer.Stop()
	}

	receiverID, err := waitForReceiver(ctx)
	if err != nil {
		return err
	}

	link, err := peer.NewLink(cfg, ctx.Client)
	if err != nil {
		return err
	}
	defer link.Close()
	go link.Run(ctx.Handler.Signals)

	spin = ui.NewConnectionSpinner("Establishing peer connection...")
	spin.Start()
	if err := link.Offer(receiverID); err != nil {
		spin.Error("Negotiation failed")
		return err
	}

	dc, err := waitForChannel(link)
	if err != nil {
		spin.Error("Connection failed")
		return err
	}
	spin.Success("Peer connected")
	fmt.Println()

	engine := buildEngine(dc, cfg, nil)
	defer engine.Close()

	if err := engine.SendDeviceInfo(cfg.DisplayName, version.Version); err != nil {
		return err
	}
	if err := engine.SendManifest(manifest(entries)); err != nil {
		return err
	}

	started := time.Now()
	if err := runSendLoop(engine, entries); err != nil {
		return err
	}

	sent, _ := engine.Totals()
	printSummary("Transfer Complete", len(entries), sent, time.Since(started))
	return nil
}

// runSendLoop enqueues every entry and drives the progress display until
// all transfers settle, the engine dies, or the user interrupts.
func runSendLoop(engine *transfer.Engine, entries []files.Entry) error {
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		src := transfer.Source{
			Path: entry.DisplayPath,
			Size: entry.Size,
			Mime: entry.Type,
			Open: entry.Open,
		}
		id, err := engine.EnqueueSend(src)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	model := ui.NewProgressModel()
	for i, entry := range entries {
		model.Add(ids[i], entry.DisplayPath, entry.Size)
	}

	runner := ui.RunProgress(model)
	defer runner.Stop()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	settled := make(map[string]bool, len(ids))
	for {
		select {
		case event := <-engine.Events():
			applyEvent(model, event)
			if event.Status.Terminal() {
				settled[event.TransferID] = true
			}
			if len(settled) == len(ids) {
				return nil
			}

		case <-interrupt:
			for _, id := range ids {
				if !settled[id] {
					engine.Cancel(id)
				}
			}
			return fmt.Errorf("transfer interrupted")

		case <-model.Interrupted():
			for _, id := range ids {
				if !settled[id] {
					engine.Cancel(id)
				}
			}
			return fmt.Errorf("transfer interrupted")

		case <-engine.Done():
			return transfer.ErrSessionClosed
		}
	}
}

func displayFileTable(entries []files.Entry) {
	items := make([]ui.FileTableItem, len(entries))
	for i, entry := range entries {
		items[i] = ui.FileTableItem{
			Index: i + 1,
			Name:  entry.DisplayPath,
			Size:  entry.Size,
			Type:  entry.Type,
		}
	}
	fmt.Println()
	ui.RenderFileTable(items)
}

func manifest(entries []files.Entry) []transfer.FileMeta {
	metas := make([]transfer.FileMeta, len(entries))
	for i, entry := range entries {
		metas[i] = transfer.FileMeta{Path: entry.DisplayPath, Size: entry.Size, Type: entry.Type}
	}
	return metas
}

func printSummary(title string, fileCount int, total int64, elapsed time.Duration) {
	speed := 0.0
	if elapsed > 0 {
		speed = float64(total) / elapsed.Seconds()
	}

	fmt.Println()
	ui.RenderTransferSummary(title, ui.TransferSummary{
		Status:    "Success",
		Files:     fileCount,
		TotalSize: ui.FormatSize(total),
		Duration:  ui.FormatDuration(elapsed),
		Speed:     ui.FormatSpeed(speed),
	})
}

func createFlight(ctx *ConnectionContext) (string, error) {
	ctx.Client.CreateFlight()

	select {
	case code := <-ctx.Handler.FlightCreated:
		return code, nil
	case msg := <-ctx.Handler.Error:
		return "", fmt.Errorf("create flight: %s", msg)
	case <-ctx.Handler.Disconnected:
		return "", transfer.ErrSessionClosed
	case <-time.After(relayTimeout):
		return "", fmt.Errorf("timed out creating flight")
	}
}

// waitForReceiver blocks until someone other than us shows up in the
// flight membership.
func waitForReceiver(ctx *ConnectionContext) (string, error) {
	fmt.Println()
	spin := ui.NewWaitingSpinner("Waiting for receiver to join...")
	spin.Start()
	defer spin.Stop()

	for {
		select {
		case users := <-ctx.Handler.FlightUsers:
			for _, member := range users.Members {
				if member != ctx.SelfID {
					spin.Success("Receiver joined")
					return member, nil
				}
			}
		case msg := <-ctx.Handler.Error:
			return "", fmt.Errorf("wait for receiver: %s", msg)
		case <-ctx.Handler.Disconnected:
			return "", transfer.ErrSessionClosed
		}
	}
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVarP(&flagDomain, "domain", "d", "", "Custom relay domain")
	sendCmd.Flags().StringVarP(&flagName, "name", "n", "", "Display name shown to the receiver")
	sendCmd.Flags().StringVar(&flagSTUN, "stun", "", "Custom STUN server")
	sendCmd.Flags().StringVar(&flagTURN, "turn", "", "Custom TURN server")
	sendCmd.Flags().StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	sendCmd.Flags().StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	sendCmd.Flags().BoolVarP(&flagRelay, "relay", "r", false, "Force relayed (TURN) transport")
	sendCmd.Flags().BoolVar(&flagInsecure, "insecure", false, "Use ws:// instead of wss://")
}
