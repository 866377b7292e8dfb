package transfer

import (
	"testing"
	"time"
)

func backdateSample(m *progressMeter, d time.Duration) {
	m.mu.Lock()
	m.sampleTime = time.Now().Add(-d)
	m.mu.Unlock()
}

func TestMeterRateMeasuresCurrentWindow(t *testing.T) {
	m := newProgressMeter(1 << 20)

	m.add(1000)
	backdateSample(m, time.Second)
	if r := m.rate(); r < 900 || r > 1100 {
		t.Fatalf("first window rate = %.1f, want ~1000", r)
	}

	// The next window must cover only the bytes added since the last
	// sample, not the lifetime average.
	m.add(500)
	backdateSample(m, time.Second)
	if r := m.rate(); r < 450 || r > 550 {
		t.Fatalf("second window rate = %.1f, want ~500", r)
	}
}

func TestMeterRateHoldsOverShortWindows(t *testing.T) {
	m := newProgressMeter(1 << 20)

	m.add(1000)
	backdateSample(m, time.Second)
	first := m.rate()

	m.add(100000)
	if r := m.rate(); r != first {
		t.Fatalf("short window rate = %.1f, want held %.1f", r, first)
	}
}

func TestMeterResetClearsRate(t *testing.T) {
	m := newProgressMeter(1 << 20)

	m.add(1000)
	backdateSample(m, time.Second)
	if r := m.rate(); r == 0 {
		t.Fatal("expected a nonzero rate before reset")
	}

	m.reset()
	if r := m.rate(); r != 0 {
		t.Fatalf("rate after reset = %.1f, want 0", r)
	}
	if m.count() != 0 {
		t.Fatalf("count after reset = %d", m.count())
	}
}
