package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ItemState is the display state of one transfer row.
type ItemState int

const (
	StateActive ItemState = iota
	StatePaused
	StateDone
	StateError
	StateCanceled
)

// ProgressItem is one file's row in the transfer display.
type ProgressItem struct {
	Name      string
	Total     int64
	Current   int64
	Speed     float64
	State     ItemState
	Detail    string
	started   bool
	startTime time.Time
}

// ProgressModel renders one bar per transfer, keyed by transfer id.
type ProgressModel struct {
	mu    sync.RWMutex
	order []string
	items map[string]*ProgressItem
	bars  map[string]progress.Model
	width    int
	quitting bool

	interruptOnce sync.Once
	interrupted   chan struct{}
}

func NewProgressModel() *ProgressModel {
	return &ProgressModel{
		items:       make(map[string]*ProgressItem),
		bars:        make(map[string]progress.Model),
		width:       80,
		interrupted: make(chan struct{}),
	}
}

// Interrupted closes when the user cancels from inside the display
// (q or ctrl+c). The program owns the terminal while running, so key
// presses surface here instead of as signals.
func (m *ProgressModel) Interrupted() <-chan struct{} {
	return m.interrupted
}

// Add registers a row. Adding an existing id is a no-op so init events
// arriving twice stay harmless.
func (m *ProgressModel) Add(id, name string, total int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[id]; ok {
		return
	}
	m.order = append(m.order, id)
	m.items[id] = &ProgressItem{Name: name, Total: total}
	m.bars[id] = progress.New(
		progress.WithGradient(ProgressStart, ProgressEnd),
		progress.WithWidth(30),
		progress.WithoutPercentage(),
	)
}

// SetProgress moves a row's byte count and speed.
func (m *ProgressModel) SetProgress(id string, current int64, speed float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok {
		return
	}
	if !item.started && current > 0 {
		item.started = true
		item.startTime = time.Now()
	}
	item.Current = current
	item.Speed = speed
}

// SetState flips a row's display state; detail shows next to errors.
func (m *ProgressModel) SetState(id string, state ItemState, detail string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok {
		return
	}
	item.State = state
	item.Detail = detail
	if state == StateDone {
		item.Current = item.Total
	}
}

// AllSettled reports whether every row reached a final state.
func (m *ProgressModel) AllSettled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, item := range m.items {
		if item.State == StateActive || item.State == StatePaused {
			return false
		}
	}
	return len(m.items) > 0
}

// Count returns the number of rows.
func (m *ProgressModel) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *ProgressModel) Init() tea.Cmd {
	return tickCmd()
}

// TickMsg drives periodic redraws.
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m *ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.interruptOnce.Do(func() { close(m.interrupted) })
			m.mu.Lock()
			m.quitting = true
			m.mu.Unlock()
			return m, tea.Quit
		}
		return m, nil

	case TickMsg:
		if !m.AllSettled() {
			return m, tickCmd()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.mu.Lock()
		m.width = msg.Width
		for id, bar := range m.bars {
			bar.Width = min(30, msg.Width-50)
			m.bars[id] = bar
		}
		m.mu.Unlock()
		return m, nil

	case progress.FrameMsg:
		var cmds []tea.Cmd
		m.mu.Lock()
		for id, bar := range m.bars {
			newModel, cmd := bar.Update(msg)
			m.bars[id] = newModel.(progress.Model)
			cmds = append(cmds, cmd)
		}
		m.mu.Unlock()
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *ProgressModel) View() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.quitting {
		return ""
	}

	var b strings.Builder
	for _, id := range m.order {
		item := m.items[id]

		var icon string
		var nameStyle lipgloss.Style
		switch item.State {
		case StateError:
			icon = IconError
			nameStyle = ErrorStyle
		case StateCanceled:
			icon = IconCanceled
			nameStyle = MutedStyle
		case StateDone:
			icon = IconSuccess
			nameStyle = SuccessStyle
		case StatePaused:
			icon = IconPaused
			nameStyle = WarningStyle
		default:
			icon = IconFile
			nameStyle = lipgloss.NewStyle()
		}

		name := TruncateString(item.Name, 30)
		b.WriteString(fmt.Sprintf("%s %s ", icon, nameStyle.Render(name)))

		if item.Total > 0 {
			percent := float64(item.Current) / float64(item.Total)
			b.WriteString(m.bars[id].ViewAs(percent))
			b.WriteString(fmt.Sprintf(" %5.1f%%", percent*100))
		}

		switch item.State {
		case StateActive:
			if item.Speed > 0 {
				b.WriteString(MutedStyle.Render(" " + FormatSpeed(item.Speed)))
				if remaining := item.Total - item.Current; remaining > 0 {
					eta := time.Duration(float64(remaining)/item.Speed) * time.Second
					b.WriteString(MutedStyle.Render(" ETA: " + FormatDuration(eta)))
				}
			}
		case StatePaused:
			b.WriteString(WarningStyle.Render(" paused"))
		case StateCanceled:
			b.WriteString(MutedStyle.Render(" canceled"))
		case StateError:
			if item.Detail != "" {
				b.WriteString(ErrorStyle.Render(" " + TruncateString(item.Detail, 40)))
			}
		}

		b.WriteString(MutedStyle.Render(fmt.Sprintf(" (%s/%s)",
			FormatSize(item.Current),
			FormatSize(item.Total))))
		b.WriteString("\n")
	}

	return b.String()
}

// ProgressRunner hosts the model in a bubbletea program on a background
// goroutine. No alt screen, so earlier output stays visible.
type ProgressRunner struct {
	program *tea.Program
	wg      sync.WaitGroup
}

// RunProgress starts rendering the model and returns the running
// display.
func RunProgress(m *ProgressModel) *ProgressRunner {
	r := &ProgressRunner{program: tea.NewProgram(m)}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if _, err := r.program.Run(); err != nil {
			fmt.Printf("display error: %v\n", err)
		}
	}()
	return r
}

// Stop quits the program and waits for the terminal to be released. The
// program renders the model's final frame on its way out.
func (r *ProgressRunner) Stop() {
	r.program.Quit()
	r.wg.Wait()
}
