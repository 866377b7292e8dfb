package discovery

import (
	"context"
	"errors"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// Service is the mDNS service name without domain suffix.
	Service = "_flightdrop._tcp"
	// Domain is the mDNS domain.
	Domain = "local."
	// ScanTimeout bounds a one-shot browse.
	ScanTimeout = 3 * time.Second

	advertisePort = 4000
)

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error)
type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

// Neighbor is a flightdrop instance announced on the local network.
type Neighbor struct {
	Name      string
	Code      string
	HostName  string
	Addresses []string
}

// Announcer keeps a LAN presence record alive while a flight is open.
type Announcer struct {
	server *zeroconf.Server
}

// registerFn is swapped out under test.
var registerFn registerFunc = zeroconf.Register

// Advertise announces this device, with the current flight code in the
// TXT record so nearby receivers can join without typing it.
func Advertise(name, code string) (*Announcer, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("device name is required")
	}

	txt := []string{"code=" + code}
	server, err := registerFn(name, Service, Domain, advertisePort, txt, nil)
	if err != nil {
		return nil, err
	}
	return &Announcer{server: server}, nil
}

// Stop withdraws the announcement. Safe on nil.
func (a *Announcer) Stop() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
}

// Scan browses the local network once and returns every announcement
// seen before the timeout, sorted by name.
func Scan(ctx context.Context, timeout time.Duration) ([]Neighbor, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}
	return scanWith(ctx, resolver.Browse, timeout)
}

func scanWith(ctx context.Context, browse browseFunc, timeout time.Duration) ([]Neighbor, error) {
	if timeout <= 0 {
		timeout = ScanTimeout
	}
	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 32)
	if err := browse(scanCtx, Service, Domain, entries); err != nil {
		return nil, err
	}

	var neighbors []Neighbor
	for entry := range entries {
		if entry == nil {
			continue
		}
		neighbors = append(neighbors, neighborFromEntry(entry))
	}

	sort.Slice(neighbors, func(i, j int) bool {
		return neighbors[i].Name < neighbors[j].Name
	})
	return neighbors, nil
}

func neighborFromEntry(entry *zeroconf.ServiceEntry) Neighbor {
	n := Neighbor{
		Name:     entry.Instance,
		HostName: entry.HostName,
	}
	for _, txt := range entry.Text {
		if code, ok := strings.CutPrefix(txt, "code="); ok {
			n.Code = code
		}
	}
	for _, ip := range entry.AddrIPv4 {
		n.Addresses = append(n.Addresses, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		n.Addresses = append(n.Addresses, ip.String())
	}
	return n
}
