package transfer

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// Progress is reported when either of these trips, whichever
	// comes first. Keeps UI updates cheap on fast links.
	progressInterval = 500 * time.Millisecond
	progressFraction = 20 // 1/20th of the total, i.e. 5%

	// minRateWindow is the shortest span a speed sample may cover.
	minRateWindow = 50 * time.Millisecond
)

// Progress is one transfer status snapshot, published on the engine's
// event stream.
type Progress struct {
	TransferID string
	Path       string
	Dest       string
	Direction  Direction
	Status     Status
	Bytes      int64
	Total      int64
	Rate       float64
	Err        error
}

// progressMeter tracks byte counts and decides when a snapshot is worth
// emitting. add is safe from the data path; the emit bookkeeping is
// guarded separately.
type progressMeter struct {
	total int64
	bytes atomic.Int64

	mu        sync.Mutex
	start     time.Time
	lastEmit  time.Time
	lastBytes int64

	sampleTime  time.Time
	sampleBytes int64
	lastRate    float64
}

func newProgressMeter(total int64) *progressMeter {
	now := time.Now()
	return &progressMeter{total: total, start: now, sampleTime: now}
}

func (m *progressMeter) add(n int) int64 {
	return m.bytes.Add(int64(n))
}

func (m *progressMeter) count() int64 {
	return m.bytes.Load()
}

// reset rewinds the meter for a retry attempt.
func (m *progressMeter) reset() {
	m.bytes.Store(0)
	m.mu.Lock()
	m.start = time.Now()
	m.lastEmit = time.Time{}
	m.lastBytes = 0
	m.sampleTime = m.start
	m.sampleBytes = 0
	m.lastRate = 0
	m.mu.Unlock()
}

// shouldEmit applies the interval-or-fraction throttle. The final byte
// always reports.
func (m *progressMeter) shouldEmit() bool {
	b := m.bytes.Load()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.total > 0 && b >= m.total {
		m.lastEmit = time.Now()
		m.lastBytes = b
		return true
	}
	now := time.Now()
	if now.Sub(m.lastEmit) >= progressInterval ||
		(m.total >= progressFraction && b-m.lastBytes >= m.total/progressFraction) {
		m.lastEmit = now
		m.lastBytes = b
		return true
	}
	return false
}

// rate is the throughput in bytes per second measured over the window
// since the previous call. Windows shorter than minRateWindow reuse the
// last measurement instead of amplifying clock noise.
func (m *progressMeter) rate() float64 {
	b := m.bytes.Load()

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(m.sampleTime)
	if elapsed < minRateWindow {
		return m.lastRate
	}
	m.lastRate = float64(b-m.sampleBytes) / elapsed.Seconds()
	m.sampleTime = now
	m.sampleBytes = b
	return m.lastRate
}
