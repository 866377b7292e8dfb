package ui

import (
	"testing"
	"time"
)

func TestFormatSize(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
		{3 * 1024 * 1024 * 1024, "3.00 GB"},
	}
	for _, c := range cases {
		if got := FormatSize(c.in); got != c.want {
			t.Errorf("FormatSize(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{42 * time.Second, "42s"},
		{90 * time.Second, "1m 30s"},
		{3725 * time.Second, "1h 2m 5s"},
	}
	for _, c := range cases {
		if got := FormatDuration(c.in); got != c.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTruncateString(t *testing.T) {
	if got := TruncateString("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := TruncateString("a-very-long-file-name.txt", 10); got != "a-very-..." {
		t.Errorf("got %q", got)
	}
}

func TestProgressModelStates(t *testing.T) {
	m := NewProgressModel()
	m.Add("t1", "file.bin", 100)
	m.Add("t1", "dup.bin", 200) // duplicate id ignored

	if m.Count() != 1 {
		t.Fatalf("count = %d", m.Count())
	}
	if m.AllSettled() {
		t.Fatal("active row reported settled")
	}

	m.SetProgress("t1", 50, 1024)
	m.SetState("t1", StatePaused, "")
	if m.AllSettled() {
		t.Fatal("paused row reported settled")
	}

	m.SetState("t1", StateDone, "")
	if !m.AllSettled() {
		t.Fatal("done row not settled")
	}
}
