package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/lekiwi/pkg/robot"
)

type ObserveCommand struct {
	NoCameras bool `long:"no-cameras" description:"Skip camera capture"`
}

func (c *ObserveCommand) Execute(args []string) error {
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

	ctx := context.Background()
	if err := bot.Connect(ctx, false); err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to robot: %v\n", err)
		os.Exit(1)
	}
	defer bot.Disconnect(ctx)

	if !bot.IsCalibrated(ctx) {
		fmt.Println(dimStyle.Render("Robot not calibrated: positions shown as raw ticks."))
	}

	obs, err := bot.Observation(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading observation: %v\n", err)
		os.Exit(1)
	}

	unit := "%"
	if cfg.UseDegrees {
		unit = "deg"
	}

	var rows [][]string
	for _, name := range robot.ArmMotors() {
		pos, ok := obs.ArmPositions[name]
		if !ok {
			continue
		}
		rows = append(rows, []string{string(name), fmt.Sprintf("%.1f %s", pos, unit)})
	}
	rows = append(rows,
		[]string{"base x", fmt.Sprintf("%.3f m/s", obs.Base.X)},
		[]string{"base y", fmt.Sprintf("%.3f m/s", obs.Base.Y)},
		[]string{"base theta", fmt.Sprintf("%.1f deg/s", obs.Base.Theta)},
	)

	fmt.Println(table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Signal", "Value").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Render())

	for key, frame := range obs.Frames {
		b := frame.Bounds()
		fmt.Printf("camera %s: %dx%d frame\n", key, b.Dx(), b.Dy())
	}
	for key := range cfg.Cameras {
		if _, ok := obs.Frames[key]; !ok && !c.NoCameras {
			fmt.Println(dimStyle.Render(fmt.Sprintf("camera %s: no frame yet", key)))
		}
	}

	return nil
}
