package cli

import "testing"

func TestParseFlightCode(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"AB12CD", "AB12CD"},
		{"ab12cd", "AB12CD"},
		{"  AB12CD  ", "AB12CD"},
		{"https://flightdrop.app/f/AB12CD", "AB12CD"},
		{"https://drop.example.com/f/ab12cd", "AB12CD"},
		{"http://localhost:4000/f/AB12CD", "AB12CD"},
	}
	for _, tc := range cases {
		got, err := parseFlightCode(tc.in)
		if err != nil {
			t.Errorf("parseFlightCode(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseFlightCode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseFlightCodeRejectsBadInput(t *testing.T) {
	bad := []string{
		"",
		"   ",
		"https://flightdrop.app/",
		"https://flightdrop.app/files/AB12CD",
		"https://flightdrop.app/f/",
	}
	for _, in := range bad {
		if code, err := parseFlightCode(in); err == nil {
			t.Errorf("parseFlightCode(%q) = %q, want error", in, code)
		}
	}
}
