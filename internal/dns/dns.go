// Package dns resolves hostnames with a fallback to public resolvers
// when the system resolver fails. Some captive networks and broken
// local configurations block or misroute system DNS while still
// passing UDP/53 to well-known providers.
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	localTimeout = 1 * time.Second
	raceTimeout  = 2 * time.Second
)

var publicResolvers = []string{
	"1.0.0.1",                // Cloudflare
	"1.1.1.1",                // Cloudflare
	"[2606:4700:4700::1111]", // Cloudflare
	"[2606:4700:4700::1001]", // Cloudflare
	"8.8.4.4",                // Google
	"8.8.8.8",                // Google
	"[2001:4860:4860::8844]", // Google
	"[2001:4860:4860::8888]", // Google
	"9.9.9.9",                // Quad9
	"149.112.112.112",        // Quad9
	"[2620:fe::fe]",          // Quad9
	"[2620:fe::fe:9]",        // Quad9
	"208.67.220.220",         // Cisco OpenDNS
	"208.67.222.222",         // Cisco OpenDNS
	"[2620:119:35::35]",      // Cisco OpenDNS
	"[2620:119:53::53]",      // Cisco OpenDNS
}

// Lookup resolves host to a single IP address. The system resolver is
// tried first; on failure the public resolvers are raced and the first
// answer wins.
func Lookup(host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	ip, err := systemLookup(host)
	if err == nil {
		return ip, nil
	}

	log.Debug().Str("host", host).Err(err).Msg("system DNS failed, racing public resolvers")
	return raceLookup(host)
}

func systemLookup(host string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), localTimeout)
	defer cancel()

	r := &net.Resolver{}
	ips, err := r.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	return pickAddress(ips)
}

func raceLookup(host string) (string, error) {
	type answer struct {
		ip  string
		err error
	}

	ctx, cancel := context.WithTimeout(context.Background(), raceTimeout)
	defer cancel()

	answers := make(chan answer, len(publicResolvers))
	for _, server := range publicResolvers {
		go func(server string) {
			ip, err := queryResolver(ctx, host, server)
			answers <- answer{ip: ip, err: err}
		}(server)
	}

	for range publicResolvers {
		select {
		case a := <-answers:
			if a.err == nil {
				return a.ip, nil
			}
		case <-ctx.Done():
			return "", fmt.Errorf("resolve %s: public DNS race timed out", host)
		}
	}
	return "", fmt.Errorf("resolve %s: every public resolver failed", host)
}

// queryResolver asks one specific DNS server for host.
func queryResolver(ctx context.Context, host, server string) (string, error) {
	r := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			d := new(net.Dialer)
			return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
		},
	}

	ips, err := r.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	return pickAddress(ips)
}

// pickAddress prefers IPv4 so the dial works on v4-only networks.
func pickAddress(ips []string) (string, error) {
	if len(ips) == 0 {
		return "", errors.New("no addresses returned")
	}
	for _, ip := range ips {
		if net.ParseIP(ip).To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}
