package relay

import (
	"strings"
	"testing"
)

func TestNewCodeShape(t *testing.T) {
	code := NewCode(func(string) bool { return false })

	if len(code) != codeLength {
		t.Fatalf("len = %d, want %d", len(code), codeLength)
	}
	for _, c := range code {
		if !strings.ContainsRune(codeAlphabet, c) {
			t.Fatalf("code %q contains %q outside the alphabet", code, c)
		}
	}
}

func TestNewCodeRetriesTakenCodes(t *testing.T) {
	var rejected []string
	code := NewCode(func(c string) bool {
		if len(rejected) < 3 {
			rejected = append(rejected, c)
			return true
		}
		return false
	})

	for _, r := range rejected {
		if code == r {
			t.Fatalf("returned a code reported as taken: %q", code)
		}
	}
}

func TestNormalizeCode(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"ab12cd", "AB12CD"},
		{"  AB12CD\n", "AB12CD"},
		{"Ab12Cd", "AB12CD"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeCode(tc.in); got != tc.want {
			t.Errorf("NormalizeCode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
