package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"

	"github.com/gwillem/lekiwi/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type CalibrateCommand struct{}

func (c *CalibrateCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("LeKiwi Calibration"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━"))
	fmt.Println()

	cfg, found := loadConfig()
	if !found {
		port, err := findRobotPort()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg.Port = port
		if err := cfg.SaveTo(opts.Config); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration saved to %s\n", opts.Config)
		fmt.Println()
	}

	ctx := context.Background()
	bus := buildBus(cfg)
	if err := bus.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to robot: %v\n", err)
		os.Exit(1)
	}
	defer bus.Disconnect(ctx, true)

	operator := &formOperator{snapshots: make(chan robot.RangeSnapshot, 1)}
	store := robot.NewFileStore(cfg.CalibrationFile)
	calibrator := robot.NewCalibrator(bus, store, operator, robot.Motors(cfg.UseDegrees))
	calibrator.Progress = operator.push

	cal, err := calibrator.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Calibration failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println(renderCalibrationTable(cal))
	fmt.Println()
	fmt.Println(successStyle.Render("Calibration complete!"))
	fmt.Println("Start driving with: " + headerStyle.Render("lekiwi drive"))
	return nil
}

// findRobotPort scans serial ports for a chain answering on all nine
// LeKiwi servo IDs.
func findRobotPort() (string, error) {
	fmt.Println("Scanning for the LeKiwi servo bus...")

	ports, err := serial.GetPortsList()
	if err != nil {
		return "", fmt.Errorf("list serial ports: %w", err)
	}

	ids := make([]int, 0, len(robot.AllMotors()))
	for _, motor := range robot.Motors(false) {
		ids = append(ids, motor.ID)
	}

	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		bus, err := feetech.NewBus(feetech.BusConfig{
			Port:     port,
			BaudRate: 1_000_000,
			Protocol: feetech.ProtocolSTS,
			Timeout:  100 * time.Millisecond,
		})
		if err != nil {
			cancel()
			continue
		}

		servos, err := bus.Scan(ctx, 1, 9)
		cancel()
		bus.Close()
		if err != nil {
			continue
		}

		if hasAllServos(servos, ids) {
			fmt.Printf("  Found LeKiwi on %s\n", port)
			return port, nil
		}
	}

	return "", fmt.Errorf("no LeKiwi found; check power and cabling on all %d servos", len(ids))
}

func hasAllServos(servos []feetech.FoundServo, ids []int) bool {
	found := make(map[int]bool, len(servos))
	for _, s := range servos {
		found[s.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return false
		}
	}
	return true
}

// formOperator supplies the calibration confirm signals through huh
// forms and shows live range recording in a bubbletea table.
type formOperator struct {
	snapshots chan robot.RangeSnapshot
}

func (o *formOperator) push(s robot.RangeSnapshot) {
	select {
	case o.snapshots <- s:
	default:
	}
}

func (o *formOperator) ConfirmHomingPose(ctx context.Context) error {
	fmt.Println(subHeaderStyle.Render("━━━ Homing pose ━━━"))
	fmt.Println("Arm torque is off. Move every arm joint to the middle of its")
	fmt.Println("range of motion.")
	fmt.Println()

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Robot in homing pose?").
				Affirmative("Continue").
				Negative("").
				Value(new(bool)),
		),
	)
	return form.RunWithContext(ctx)
}

func (o *formOperator) ConfirmRangeRecorded(ctx context.Context) error {
	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Record range of motion ━━━"))
	fmt.Println("Move each bounded joint to its minimum AND maximum positions.")
	fmt.Println()

	p := tea.NewProgram(newRangeModel(o.snapshots), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

// rangeModel renders the live min/max table while the calibrator samples
// positions.
type rangeModel struct {
	snapshots chan robot.RangeSnapshot
	snap      robot.RangeSnapshot
	quitting  bool
}

func newRangeModel(snapshots chan robot.RangeSnapshot) rangeModel {
	return rangeModel{snapshots: snapshots}
}

type snapshotMsg robot.RangeSnapshot

func waitForSnapshot(snapshots chan robot.RangeSnapshot) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(<-snapshots)
	}
}

func (m rangeModel) Init() tea.Cmd {
	return waitForSnapshot(m.snapshots)
}

func (m rangeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case snapshotMsg:
		m.snap = robot.RangeSnapshot(msg)
		return m, waitForSnapshot(m.snapshots)
	}

	return m, nil
}

func (m rangeModel) View() string {
	if m.quitting {
		return ""
	}
	if m.snap.Current == nil {
		return dimStyle.Render("Waiting for position samples...")
	}

	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableMotorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableCurrentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	tableRangeGoodStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableRangeLowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	var rows [][]string
	var ranges []int
	for _, name := range robot.AllMotors() {
		cur, ok := m.snap.Current[name]
		if !ok {
			continue
		}
		rangeSize := m.snap.Max[name] - m.snap.Min[name]
		ranges = append(ranges, rangeSize)
		rows = append(rows, []string{
			string(name),
			fmt.Sprintf("%d", cur),
			fmt.Sprintf("%d", m.snap.Min[name]),
			fmt.Sprintf("%d", m.snap.Max[name]),
			fmt.Sprintf("%d", rangeSize),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Motor", "Current", "Min", "Max", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableMotorStyle
			case 1:
				return tableCurrentStyle
			case 4:
				if row >= 0 && row < len(ranges) && ranges[row] > 500 {
					return tableRangeGoodStyle
				}
				return tableRangeLowStyle
			default:
				return tableCellStyle
			}
		})

	var sb strings.Builder
	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	sb.WriteString(dimStyle.Render("Press Enter when done"))
	return sb.String()
}

func renderCalibrationTable(cal robot.Calibration) string {
	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)

	var rows [][]string
	for _, name := range robot.AllMotors() {
		mc, ok := cal[name]
		if !ok {
			continue
		}
		rows = append(rows, []string{
			string(name),
			fmt.Sprintf("%d", mc.ID),
			fmt.Sprintf("%d", mc.HomingOffset),
			fmt.Sprintf("%d", mc.RangeMin),
			fmt.Sprintf("%d", mc.RangeMax),
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Motor", "ID", "Offset", "Min", "Max").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		}).
		Render()
}
