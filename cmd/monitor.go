// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/emcore/pkg/config"
	"github.com/Thermoquad/emcore/pkg/emtypes"
	"github.com/Thermoquad/emcore/pkg/platform"
	"github.com/Thermoquad/emcore/pkg/runtime"
)

var monitorTickMS int

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live dashboard of a hosted emCore runtime",
	Long: `monitor builds the same Runtime as run, spawns a heartbeat demonstration
task, and renders a full-screen dashboard of scheduler, broker, watchdog,
and error handler state that refreshes on every tick. Press 'q' to quit.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().IntVar(&monitorTickMS, "tick-ms", 100, "Milliseconds between scheduler ticks")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	rt, err := runtime.New(cfg, platform.Default(), runtime.NopLogger())
	if err != nil {
		return fmt.Errorf("emcored: %w", err)
	}

	id, code := rt.Scheduler.CreateTask(heartbeatTaskConfig(runtime.NopLogger()))
	if code != emtypes.Success {
		return fmt.Errorf("emcored: create heartbeat task: %v", code)
	}
	rt.Broker.RegisterTask(id)
	rt.Watchdog.RegisterTask(id, 5000, 0)

	m := initialMonitorModel(rt, id, monitorTickMS)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

type monitorTickMsg time.Time

type monitorEventEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// monitorModel is a bubbletea model driving rt.Tick() on a fixed cadence and
// rendering the runtime's live counters. It never touches a byte source; it
// only observes the in-process object graph built by pkg/runtime.
type monitorModel struct {
	rt          *runtime.Runtime
	watchedTask emtypes.TaskID
	tickEvery   time.Duration
	ticks       uint64
	events      []monitorEventEntry
	maxEvents   int
	width       int
	height      int
	quitting    bool
}

func initialMonitorModel(rt *runtime.Runtime, watched emtypes.TaskID, tickMS int) monitorModel {
	return monitorModel{
		rt:          rt,
		watchedTask: watched,
		tickEvery:   time.Duration(tickMS) * time.Millisecond,
		events:      make([]monitorEventEntry, 0),
		maxEvents:   50,
		width:       80,
		height:      24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return monitorTickCmd(m.tickEvery)
}

func monitorTickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case monitorTickMsg:
		before := m.rt.Errors.ErrorCount()
		m.rt.Tick()
		m.ticks++
		if after := m.rt.Errors.ErrorCount(); after != before {
			last := m.rt.Errors.LastError()
			m.addEvent(fmt.Sprintf("error event=%d severity=%d code=%v", last.Event, last.Severity, last.Code), true)
		}
		return m, monitorTickCmd(m.tickEvery)
	}

	return m, nil
}

func (m *monitorModel) addEvent(message string, isError bool) {
	m.events = append(m.events, monitorEventEntry{timestamp: time.Now(), message: message, isError: isError})
	if len(m.events) > m.maxEvents {
		m.events = m.events[len(m.events)-m.maxEvents:]
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Background(lipgloss.Color("235")).Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	boxStyle := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("EMCORE RUNTIME MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("ticks: %d | interval: %s | press 'q' to quit", m.ticks, m.tickEvery)))
	s.WriteString("\n\n")

	stats, code := m.rt.Scheduler.Stats(m.watchedTask)
	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %d%%\n",
		labelStyle.Render("Tasks:"), valueStyle.Render(fmt.Sprintf("%d", m.rt.Scheduler.TaskCount())),
		labelStyle.Render("Context switches:"), valueStyle.Render(fmt.Sprintf("%d", m.rt.Scheduler.ContextSwitches())),
		labelStyle.Render("CPU:"), m.rt.Scheduler.CPUUtilization(),
	))
	if code == emtypes.Success {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			labelStyle.Render("Missed deadlines:"), renderCount(uint64(stats.MissedDeadlines), errorStyle, valueStyle),
			labelStyle.Render("Avg exec:"), valueStyle.Render(fmt.Sprintf("%dus", stats.AvgExecutionUS)),
			labelStyle.Render("Max exec:"), valueStyle.Render(fmt.Sprintf("%dus", stats.MaxExecutionUS)),
		))
	}
	if m.rt.Broker != nil {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			labelStyle.Render("Topics active:"), valueStyle.Render(fmt.Sprintf("%d", m.rt.Broker.TopicCount())),
			labelStyle.Render("Dropped (heartbeat):"), renderCount(m.rt.Broker.DroppedOverflow(m.watchedTask), errorStyle, valueStyle),
		))
	}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		labelStyle.Render("Watchdog timeouts:"), renderCount(uint64(m.rt.Watchdog.TimeoutCount(m.watchedTask)), errorStyle, valueStyle),
		labelStyle.Render("Error handler count:"), renderCount(uint64(m.rt.Errors.ErrorCount()), errorStyle, valueStyle),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 14
	if logHeight < 5 {
		logHeight = 5
	}
	logContent := strings.Builder{}
	startIdx := len(m.events) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}
	if len(m.events) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.events); i++ {
			e := m.events[i]
			ts := e.timestamp.Format("15:04:05.000")
			if e.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(ts), errorStyle.Render("x "+e.message)))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(ts), valueStyle.Render("i "+e.message)))
			}
		}
	}
	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}

func renderCount(n uint64, hot, cold lipgloss.Style) string {
	if n > 0 {
		return hot.Render(fmt.Sprintf("%d", n))
	}
	return cold.Render("0")
}
