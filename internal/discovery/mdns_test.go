package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func TestAdvertiseRequiresName(t *testing.T) {
	if _, err := Advertise("", "AB12CD"); err == nil {
		t.Fatal("expected error for empty name")
	}
	if _, err := Advertise("   ", "AB12CD"); err == nil {
		t.Fatal("expected error for blank name")
	}
}

func TestAdvertiseTXTCarriesCode(t *testing.T) {
	orig := registerFn
	defer func() { registerFn = orig }()

	var gotInstance string
	var gotText []string
	registerFn = func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error) {
		gotInstance = instance
		gotText = text
		return nil, nil
	}

	a, err := Advertise("my-laptop", "AB12CD")
	if err != nil {
		t.Fatal(err)
	}
	a.Stop() // nil server, must not panic

	if gotInstance != "my-laptop" {
		t.Errorf("instance = %q", gotInstance)
	}
	if len(gotText) != 1 || gotText[0] != "code=AB12CD" {
		t.Errorf("txt = %v", gotText)
	}
}

func TestScanCollectsEntries(t *testing.T) {
	browse := func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
		go func() {
			defer close(entries)
			entries <- &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "zeta"},
				HostName:      "zeta.local.",
				Text:          []string{"code=ZZ99ZZ"},
				AddrIPv4:      []net.IP{net.IPv4(192, 168, 1, 20)},
			}
			entries <- &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "alpha"},
				HostName:      "alpha.local.",
				Text:          []string{"other=x", "code=AA11AA"},
			}
		}()
		return nil
	}

	neighbors, err := scanWith(context.Background(), browse, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(neighbors) != 2 {
		t.Fatalf("got %d neighbors", len(neighbors))
	}
	if neighbors[0].Name != "alpha" || neighbors[1].Name != "zeta" {
		t.Errorf("not sorted by name: %q, %q", neighbors[0].Name, neighbors[1].Name)
	}
	if neighbors[0].Code != "AA11AA" {
		t.Errorf("code = %q", neighbors[0].Code)
	}
	if len(neighbors[1].Addresses) != 1 || neighbors[1].Addresses[0] != "192.168.1.20" {
		t.Errorf("addresses = %v", neighbors[1].Addresses)
	}
}
