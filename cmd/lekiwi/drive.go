package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/lekiwi/pkg/kinematics"
	"github.com/gwillem/lekiwi/pkg/robot"
)

type DriveCommand struct {
	Hz        int  `long:"hz" default:"30" description:"Control loop frequency"`
	NoCameras bool `long:"no-cameras" description:"Skip camera capture"`
}

const (
	driveHeaderHeight = 2 // title + blank line
	driveLegendHeight = 2 // legend row + blank
	driveFooterHeight = 7 // status + help + log box
	driveMaxLogs      = 3 // number of log messages to show
	driveBorderSize   = 2 // chart border
)

// speedLevel pairs a translation cap with a rotation cap.
type speedLevel struct {
	name  string
	xy    float64 // m/s
	theta float64 // deg/s
}

var speedLevels = []speedLevel{
	{"slow", 0.1, 45},
	{"medium", 0.25, 60},
	{"fast", 0.4, 90},
}

// Chart dataset colors for the three body velocity components.
var velocityColors = map[string]string{
	"x":     "46",  // green
	"y":     "51",  // cyan
	"theta": "201", // magenta
}

var (
	driveTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	driveChartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	driveStatusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// driveState is one control loop report.
type driveState struct {
	Command   kinematics.BodyVelocity
	Measured  kinematics.BodyVelocity
	Timestamp time.Time
	Error     error
}

// driveController runs the base control loop: it sends the current
// velocity command every tick and reports the measured body velocity
// back over a channel.
type driveController struct {
	bot *robot.Robot
	hz  int

	mu      sync.Mutex
	cmd     kinematics.BodyVelocity
	running bool

	stateCh chan driveState
	logCh   chan string
	done    chan struct{}
}

func newDriveController(bot *robot.Robot, hz int) *driveController {
	if hz <= 0 {
		hz = 30
	}
	return &driveController{
		bot:     bot,
		hz:      hz,
		stateCh: make(chan driveState, 1),
		logCh:   make(chan string, 10),
		done:    make(chan struct{}),
	}
}

func (c *driveController) States() <-chan driveState { return c.stateCh }
func (c *driveController) Logs() <-chan string       { return c.logCh }
func (c *driveController) Hz() int                   { return c.hz }
func (c *driveController) Done() <-chan struct{}     { return c.done }

// SetCommand replaces the velocity command sent on the next tick.
func (c *driveController) SetCommand(v kinematics.BodyVelocity) {
	c.mu.Lock()
	c.cmd = v
	c.mu.Unlock()
}

// Command returns the current velocity command.
func (c *driveController) Command() kinematics.BodyVelocity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cmd
}

func (c *driveController) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Start begins the control loop and blocks until the context ends. The
// base is always stopped on the way out.
func (c *driveController) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("already running")
	}
	c.running = true
	c.mu.Unlock()
	defer close(c.done)

	c.log("Driving at %d Hz", c.hz)

	ticker := time.NewTicker(time.Second / time.Duration(c.hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-ticker.C:
			c.step(ctx)
		}
	}
}

func (c *driveController) step(ctx context.Context) {
	cmd := c.Command()

	if _, err := c.bot.SendAction(ctx, robot.Action{Base: cmd}); err != nil {
		c.log("Send error: %v", err)
		c.sendState(driveState{Command: cmd, Error: err, Timestamp: time.Now()})
		return
	}

	obs, err := c.bot.Observation(ctx)
	if err != nil {
		c.log("Read error: %v", err)
		c.sendState(driveState{Command: cmd, Error: err, Timestamp: time.Now()})
		return
	}

	c.sendState(driveState{
		Command:   cmd,
		Measured:  obs.Base,
		Timestamp: time.Now(),
	})
}

func (c *driveController) sendState(s driveState) {
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		c.stateCh <- s
	}
}

func (c *driveController) shutdown() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.bot.StopBase(ctx); err != nil {
		c.log("Warning: failed to stop base: %v", err)
	} else {
		c.log("Base stopped")
	}
}

// Messages from the controller
type driveStateMsg driveState
type driveLogMsg string

func waitForDriveState(ctrl *driveController) tea.Cmd {
	return func() tea.Msg {
		return driveStateMsg(<-ctrl.States())
	}
}

func waitForDriveLog(ctrl *driveController) tea.Cmd {
	return func() tea.Msg {
		return driveLogMsg(<-ctrl.Logs())
	}
}

type driveModel struct {
	ctrl     *driveController
	chart    *streamlinechart.Model
	width    int
	height   int
	logs     []string
	speed    int // index into speedLevels
	quitting bool
}

func initialDriveModel(ctrl *driveController) driveModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-0.5, 0.5),
	)
	for name, color := range velocityColors {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(color))
		chart.SetDataSetStyles(name, runes.ThinLineStyle, style)
	}

	return driveModel{
		ctrl:  ctrl,
		chart: &chart,
		speed: 1, // medium
	}
}

func (m *driveModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > driveMaxLogs {
		m.logs = m.logs[len(m.logs)-driveMaxLogs:]
	}
}

func (m *driveModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20
	}
	width = m.width - driveBorderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - driveHeaderHeight - driveLegendHeight - driveFooterHeight - driveBorderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m driveModel) Init() tea.Cmd {
	return tea.Batch(
		waitForDriveState(m.ctrl),
		waitForDriveLog(m.ctrl),
	)
}

func (m driveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		w, h := m.chartSize()
		m.chart.Resize(w, h)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case driveStateMsg:
		state := driveState(msg)
		if state.Error == nil {
			m.chart.PushDataSet("x", state.Measured.X)
			m.chart.PushDataSet("y", state.Measured.Y)
			// Rotation charted in rev/s to share the axis with x and y.
			m.chart.PushDataSet("theta", state.Measured.Theta/360)
			m.chart.DrawAll()
		}
		return m, waitForDriveState(m.ctrl)

	case driveLogMsg:
		m.addLog(string(msg))
		return m, waitForDriveLog(m.ctrl)
	}

	return m, nil
}

func (m driveModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	level := speedLevels[m.speed]
	cmd := m.ctrl.Command()

	switch msg.String() {
	case "q", "esc", "ctrl+c":
		m.ctrl.SetCommand(kinematics.BodyVelocity{})
		m.quitting = true
		return m, tea.Quit

	case "w", "up":
		cmd.X = level.xy
	case "s", "down":
		cmd.X = -level.xy
	case "a", "left":
		cmd.Y = level.xy
	case "d", "right":
		cmd.Y = -level.xy
	case "j":
		cmd.Theta = level.theta
	case "l":
		cmd.Theta = -level.theta
	case " ":
		cmd = kinematics.BodyVelocity{}

	case "1", "2", "3":
		m.speed = int(msg.String()[0] - '1')
		cmd = rescale(cmd, speedLevels[m.speed])

	default:
		return m, nil
	}

	m.ctrl.SetCommand(cmd)
	return m, nil
}

// rescale keeps the motion direction but applies the new speed caps.
func rescale(cmd kinematics.BodyVelocity, level speedLevel) kinematics.BodyVelocity {
	sign := func(v float64) float64 {
		switch {
		case v > 0:
			return 1
		case v < 0:
			return -1
		}
		return 0
	}
	return kinematics.BodyVelocity{
		X:     sign(cmd.X) * level.xy,
		Y:     sign(cmd.Y) * level.xy,
		Theta: sign(cmd.Theta) * level.theta,
	}
}

func (m driveModel) View() string {
	if m.quitting {
		return "Drive stopped.\n"
	}

	var sb strings.Builder

	sb.WriteString(driveTitleStyle.Render("LeKiwi Drive"))
	sb.WriteString(fmt.Sprintf(" - %d Hz", m.ctrl.Hz()))
	if m.width > 0 {
		sb.WriteString(driveStatusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	sb.WriteString(driveChartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	sb.WriteString(renderDriveLegend())
	sb.WriteString("\n")

	cmd := m.ctrl.Command()
	sb.WriteString(fmt.Sprintf("command: x=%+.2f m/s  y=%+.2f m/s  theta=%+.0f deg/s  speed=%s\n",
		cmd.X, cmd.Y, cmd.Theta, speedLevels[m.speed].name))
	sb.WriteString(driveStatusStyle.Render("w/s forward  a/d strafe  j/l rotate  space stop  1/2/3 speed  q quit"))
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4).
		Foreground(lipgloss.Color("9"))

	var logLines string
	if len(m.logs) == 0 {
		logLines = driveStatusStyle.Render("...")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderDriveLegend() string {
	var items []string
	for _, name := range []string{"x", "y", "theta"} {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(velocityColors[name])).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+name)
	}
	return strings.Join(items, "  ")
}

func (c *DriveCommand) Execute(args []string) error {
	cfg, found := loadConfig()
	if !found {
		fmt.Fprintln(os.Stderr, "No configuration found. Run 'lekiwi calibrate' first.")
		os.Exit(1)
	}

	bot, err := buildRobot(cfg, !c.NoCameras)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bot.Connect(ctx, false); err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to robot: %v\n", err)
		os.Exit(1)
	}
	defer bot.Disconnect(context.Background())

	ctrl := newDriveController(bot, c.Hz)
	go func() {
		if err := ctrl.Start(ctx); err != nil && err != context.Canceled {
			fmt.Fprintf(os.Stderr, "Controller error: %v\n", err)
		}
	}()

	p := tea.NewProgram(initialDriveModel(ctrl), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}

	// Stop the loop and wait for its final base stop before disconnect.
	cancel()
	<-ctrl.Done()

	return nil
}
