package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/cobot/pkg/control"
	"github.com/gwillem/cobot/pkg/robot"
)

type MonitorCommand struct {
	Feedback bool `long:"feedback" description:"Chart the angle read back from the pots instead of the commanded one"`
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Joint colors, cycled in channel order
var jointColors = []string{
	"196", // red
	"208", // orange
	"226", // yellow
	"46",  // green
	"51",  // cyan
	"201", // magenta
	"33",  // blue
	"250", // grey
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type monitorModel struct {
	ctrl       *control.Controller
	chart      *streamlinechart.Model
	joints     []robot.JointName // charted joints, mirrors excluded
	feedback   bool
	width      int      // terminal width
	height     int      // terminal height
	logs       []string // last N log messages
	status     string
	quitting   bool
	lastAngles map[robot.JointName]int // track previous angles to detect movement
}

func (m *monitorModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

func (m *monitorModel) angles(s control.State) map[robot.JointName]int {
	out := make(map[robot.JointName]int, len(s.Joints))
	for _, j := range s.Joints {
		if j.Mirror {
			continue
		}
		if m.feedback {
			if !j.HasFeedback {
				continue
			}
			out[j.Name] = j.FeedbackAngle
		} else {
			out[j.Name] = j.Angle
		}
	}
	return out
}

// hasMovement checks if any joint angle has changed from the last state
func (m *monitorModel) hasMovement(angles map[robot.JointName]int) bool {
	if m.lastAngles == nil {
		return true // first reading, consider it movement
	}
	for name, a := range angles {
		if last, ok := m.lastAngles[name]; !ok || a != last {
			return true
		}
	}
	return false
}

// Messages from the controller
type stateMsg control.State
type logMsg string

func waitForState(ctrl *control.Controller) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-ctrl.States())
	}
}

func waitForLog(ctrl *control.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *monitorModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - footerHeight - borderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m *monitorModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func jointColor(i int) lipgloss.Color {
	return lipgloss.Color(jointColors[i%len(jointColors)])
}

func initialMonitorModel(ctrl *control.Controller, cfg *robot.Config, feedback bool) monitorModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(0, 180),
	)

	var joints []robot.JointName
	for _, jc := range cfg.Joints {
		if jc.MirrorOf != "" {
			continue
		}
		style := lipgloss.NewStyle().Foreground(jointColor(len(joints)))
		chart.SetDataSetStyles(string(jc.Name), runes.ThinLineStyle, style)
		joints = append(joints, jc.Name)
	}

	return monitorModel{
		ctrl:     ctrl,
		chart:    &chart,
		joints:   joints,
		feedback: feedback,
	}
}

func (m monitorModel) Init() tea.Cmd {
	// Start listening for state and log updates
	return tea.Batch(
		waitForState(m.ctrl),
		waitForLog(m.ctrl),
	)
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case stateMsg:
		state := control.State(msg)
		angles := m.angles(state)
		// Only update chart if there's movement (freeze when idle)
		if m.hasMovement(angles) {
			for name, a := range angles {
				m.chart.PushDataSet(string(name), float64(a))
			}
			m.chart.DrawAll()
			m.lastAngles = angles
		}
		m.status = ""
		if state.Calibrating != "" {
			p := state.Progress
			m.status = fmt.Sprintf("calibrating %s: point %d/%d, %s", state.Calibrating, p.Point+1, p.Total, p.Phase)
		}
		return m, waitForState(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)
	}

	return m, nil
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Monitor stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("cobot monitor"))
	sb.WriteString(fmt.Sprintf(" - %d Hz", m.ctrl.Hz()))
	if m.feedback {
		sb.WriteString(" - feedback")
	}
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	if m.status != "" {
		sb.WriteString("  " + m.status)
	}
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(m.renderLegend())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4).
		Foreground(lipgloss.Color("9")) // bright red

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func (m monitorModel) renderLegend() string {
	var items []string
	for i, name := range m.joints {
		colorStyle := lipgloss.NewStyle().Foreground(jointColor(i)).Bold(true)
		item := colorStyle.Render("━━") + " " + string(name)
		items = append(items, item)
	}
	return strings.Join(items, "  ")
}

func (c *MonitorCommand) Execute(args []string) error {
	s, err := openSession("cobot.log")
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Printf("Loaded configuration from %s\n", opts.Config)

	// Run TUI
	p := tea.NewProgram(initialMonitorModel(s.ctrl, s.cfg, c.Feedback), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run monitor: %w", err)
	}

	return nil
}
