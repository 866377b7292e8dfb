package dns

import "testing"

func TestLookupPassesThroughLiterals(t *testing.T) {
	cases := []string{"127.0.0.1", "192.168.1.20", "::1"}
	for _, addr := range cases {
		got, err := Lookup(addr)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", addr, err)
		}
		if got != addr {
			t.Errorf("Lookup(%q) = %q", addr, got)
		}
	}
}

func TestPickAddressPrefersIPv4(t *testing.T) {
	ip, err := pickAddress([]string{"2606:4700::6810:84e5", "104.16.132.229"})
	if err != nil {
		t.Fatal(err)
	}
	if ip != "104.16.132.229" {
		t.Errorf("got %q", ip)
	}

	ip, err = pickAddress([]string{"2606:4700::6810:84e5"})
	if err != nil {
		t.Fatal(err)
	}
	if ip != "2606:4700::6810:84e5" {
		t.Errorf("v6-only: got %q", ip)
	}

	if _, err := pickAddress(nil); err == nil {
		t.Error("empty answer accepted")
	}
}
