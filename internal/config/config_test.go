package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(Options{})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Domain != DefaultDomain {
		t.Errorf("Domain = %q", cfg.Domain)
	}
	if cfg.ChunkSize != DefaultChunkSize {
		t.Errorf("ChunkSize = %d", cfg.ChunkSize)
	}
	if cfg.BackpressureFactor != DefaultBackpressureFactor {
		t.Errorf("BackpressureFactor = %d", cfg.BackpressureFactor)
	}
	if cfg.MemorySinkLimit != DefaultMemorySinkLimit {
		t.Errorf("MemorySinkLimit = %d", cfg.MemorySinkLimit)
	}
	if cfg.IdleTimeout != DefaultIdleTimeout {
		t.Errorf("IdleTimeout = %v", cfg.IdleTimeout)
	}
	if cfg.OwnerDisconnect != OwnerDisconnectDestroy {
		t.Errorf("OwnerDisconnect = %q", cfg.OwnerDisconnect)
	}
	if cfg.WebSocketURL != "wss://"+DefaultDomain+"/ws" {
		t.Errorf("WebSocketURL = %q", cfg.WebSocketURL)
	}
	if cfg.DisplayName == "" {
		t.Error("DisplayName empty")
	}
}

func TestOptionsOverrideDefaults(t *testing.T) {
	cfg, err := Load(Options{
		Domain:          "drop.example.com",
		DisplayName:     "laptop",
		TURNServer:      "turn:turn.example.com",
		TURNUser:        "user",
		TURNPass:        "pass",
		OutputDir:       "/tmp/incoming",
		ChunkSize:       64 * 1024,
		MemorySinkLimit: 1024,
		OwnerDisconnect: OwnerDisconnectTransfer,
		Insecure:        true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Domain != "drop.example.com" {
		t.Errorf("Domain = %q", cfg.Domain)
	}
	if cfg.DisplayName != "laptop" {
		t.Errorf("DisplayName = %q", cfg.DisplayName)
	}
	if cfg.ChunkSize != 64*1024 {
		t.Errorf("ChunkSize = %d", cfg.ChunkSize)
	}
	if cfg.MemorySinkLimit != 1024 {
		t.Errorf("MemorySinkLimit = %d", cfg.MemorySinkLimit)
	}
	if cfg.OwnerDisconnect != OwnerDisconnectTransfer {
		t.Errorf("OwnerDisconnect = %q", cfg.OwnerDisconnect)
	}
	if cfg.WebSocketURL != "ws://drop.example.com/ws" {
		t.Errorf("WebSocketURL = %q", cfg.WebSocketURL)
	}
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("FLIGHTDROP_DOMAIN", "env.example.com")
	t.Setenv("FLIGHTDROP_CHUNK_SIZE", "131072")

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Domain != "env.example.com" {
		t.Errorf("Domain = %q", cfg.Domain)
	}
	if cfg.ChunkSize != 131072 {
		t.Errorf("ChunkSize = %d", cfg.ChunkSize)
	}
}

func TestFlagsBeatEnvironment(t *testing.T) {
	t.Setenv("FLIGHTDROP_DOMAIN", "env.example.com")

	cfg, err := Load(Options{Domain: "flag.example.com"})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Domain != "flag.example.com" {
		t.Errorf("Domain = %q", cfg.Domain)
	}
}

func TestInvalidOwnerDisconnectRejected(t *testing.T) {
	_, err := Load(Options{OwnerDisconnect: "explode"})
	if err == nil {
		t.Fatal("invalid policy accepted")
	}
	if !strings.Contains(err.Error(), "owner_disconnect") {
		t.Fatalf("error does not name the setting: %v", err)
	}
}

func TestInvalidBackpressureFactorRejected(t *testing.T) {
	t.Setenv("FLIGHTDROP_BACKPRESSURE_FACTOR", "0")

	_, err := Load(Options{})
	if err == nil {
		t.Fatal("zero backpressure factor accepted")
	}
}

func TestGetTURNServers(t *testing.T) {
	cfg := &Config{}
	if servers := cfg.GetTURNServers(); servers != nil {
		t.Fatalf("expected nil without TURN host, got %v", servers)
	}

	cfg.TURNServer = "turn:turn.example.com"
	servers := cfg.GetTURNServers()
	if len(servers) != 2 {
		t.Fatalf("got %d TURN URLs", len(servers))
	}
	if !strings.Contains(servers[0], "transport=udp") || !strings.Contains(servers[1], "transport=tcp") {
		t.Fatalf("unexpected TURN URLs %v", servers)
	}
}

func TestGetFlightLink(t *testing.T) {
	cfg := &Config{Domain: "flightdrop.app"}
	if link := cfg.GetFlightLink("AB12CD"); link != "https://flightdrop.app/f/AB12CD" {
		t.Fatalf("link = %q", link)
	}
}
