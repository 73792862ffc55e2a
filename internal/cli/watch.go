package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"game-fix-manager/internal/model"
	"game-fix-manager/internal/supervisor"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const pollInterval = 250 * time.Millisecond

// jobView flattens either job kind into what the watchers render.
type jobView struct {
	Kind         model.JobKind `json:"kind"`
	AppID        int64         `json:"appid"`
	Status       string        `json:"status"`
	BytesRead    int64         `json:"bytesRead,omitempty"`
	TotalBytes   int64         `json:"totalBytes,omitempty"`
	Progress     string        `json:"progress,omitempty"`
	Error        string        `json:"error,omitempty"`
	FilesRemoved *int          `json:"filesRemoved,omitempty"`
	Terminal     bool          `json:"-"`
	Succeeded    bool          `json:"success"`
}

func applyView(appID int64, st model.ApplyJob) jobView {
	return jobView{
		Kind:       model.KindApply,
		AppID:      appID,
		Status:     string(st.Status),
		BytesRead:  st.BytesRead,
		TotalBytes: st.TotalBytes,
		Error:      st.ErrorMessage(),
		Terminal:   st.Status.Terminal(),
		Succeeded:  st.Success != nil && *st.Success,
	}
}

func removeView(appID int64, st model.RemoveJob) jobView {
	v := jobView{
		Kind:         model.KindRemove,
		AppID:        appID,
		Status:       string(st.Status),
		Error:        st.ErrorMessage(),
		FilesRemoved: st.FilesRemoved,
		Terminal:     st.Status.Terminal(),
		Succeeded:    st.Success != nil && *st.Success,
	}
	if st.Progress != nil {
		v.Progress = *st.Progress
	}
	return v
}

// watcher polls one job and optionally cancels it.
type watcher struct {
	title  string
	poll   func() jobView
	cancel func() supervisor.Result
}

func (w watcher) describe(v jobView) string {
	switch {
	case v.Status == string(model.ApplyDownloading):
		return "downloading " + formatTransfer(v.BytesRead, v.TotalBytes)
	case v.Progress != "" && !v.Terminal:
		return v.Progress
	case v.Error != "":
		return v.Status + ": " + v.Error
	case v.FilesRemoved != nil:
		return fmt.Sprintf("%s (%d files removed)", v.Status, *v.FilesRemoved)
	default:
		return v.Status
	}
}

// watchLines prints a line whenever the job changes phase, and once a second
// while downloading. An interrupt requests cancellation instead of exiting.
func watchLines(w watcher, quiet bool) jobView {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lastStatus, lastLine string
	var lastPrint time.Time
	for {
		v := w.poll()
		if !quiet {
			line := w.describe(v)
			due := v.Status != lastStatus || v.Terminal || time.Since(lastPrint) >= time.Second
			if line != lastLine && due {
				fmt.Printf("%s: %s\n", w.title, line)
				lastStatus, lastLine = v.Status, line
				lastPrint = time.Now()
			}
		}
		if v.Terminal {
			return v
		}
		select {
		case <-sigCh:
			if w.cancel != nil {
				res := w.cancel()
				if !quiet {
					fmt.Printf("%s: %s\n", w.title, res.Message)
				}
			} else if !quiet {
				fmt.Printf("%s: this job cannot be cancelled, waiting for it to finish\n", w.title)
			}
		case <-ticker.C:
		}
	}
}

var (
	watchTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	watchMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	watchErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	watchOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	watchPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type watchTickMsg time.Time

type watchModel struct {
	w         watcher
	view      jobView
	spinner   spinner.Model
	bar       progress.Model
	notice    string
	cancelled bool
}

func newWatchModel(w watcher) watchModel {
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 48
	return watchModel{
		w:       w,
		view:    w.poll(),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		bar:     bar,
	}
}

func watchTick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return watchTickMsg(t) })
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, watchTick())
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-8, 10), 72)
		return m, nil
	case watchTickMsg:
		m.view = m.w.poll()
		if m.view.Terminal {
			return m, tea.Quit
		}
		return m, watchTick()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		switch msg.String() {
		case "c", "ctrl+c":
			if m.w.cancel == nil {
				m.notice = "this job cannot be cancelled"
				return m, nil
			}
			if !m.cancelled {
				m.cancelled = true
				m.notice = m.w.cancel().Message
			}
			return m, nil
		}
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(watchTitleStyle.Render(m.w.title))
	b.WriteString("\n")

	v := m.view
	switch {
	case v.Terminal && v.Succeeded:
		b.WriteString(watchOKStyle.Render("✓ " + m.w.describe(v)))
	case v.Terminal:
		b.WriteString(watchErrorStyle.Render("✗ " + m.w.describe(v)))
	default:
		b.WriteString(m.spinner.View() + " " + m.w.describe(v))
	}
	b.WriteString("\n")

	if v.Kind == model.KindApply && v.TotalBytes > 0 && !v.Terminal {
		b.WriteString(m.bar.ViewAs(float64(v.BytesRead) / float64(v.TotalBytes)))
		b.WriteString("\n")
	}
	if m.notice != "" {
		b.WriteString(watchMutedStyle.Render(m.notice))
		b.WriteString("\n")
	}
	if !v.Terminal && m.w.cancel != nil && !m.cancelled {
		b.WriteString(watchMutedStyle.Render("c / ctrl+c: cancel"))
		b.WriteString("\n")
	}
	return watchPanelStyle.Render(strings.TrimRight(b.String(), "\n")) + "\n"
}

// watchJob renders an interactive view on a terminal and falls back to line
// output otherwise. It returns once the job is terminal.
func watchJob(ctx context.Context, w watcher, interactive, quiet bool) (jobView, error) {
	if !interactive {
		return watchLines(w, quiet), nil
	}
	p := tea.NewProgram(newWatchModel(w), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return w.poll(), err
	}
	if fm, ok := final.(watchModel); ok {
		return fm.view, nil
	}
	return w.poll(), nil
}
