package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gwillem/lekiwi/pkg/robot"
)

type StopCommand struct{}

// Execute writes zero velocity to every wheel without touching arm
// torque or operating modes.
func (c *StopCommand) Execute(args []string) error {
	cfg, found := loadConfig()
	if !found {
		fmt.Fprintln(os.Stderr, "No configuration found. Run 'lekiwi calibrate' first.")
		os.Exit(1)
	}

	ctx := context.Background()
	bus := buildBus(cfg)
	if err := bus.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to robot: %v\n", err)
		os.Exit(1)
	}
	defer bus.Disconnect(ctx, false)

	zeros := make(map[robot.MotorName]int, 3)
	for _, name := range robot.BaseMotors() {
		zeros[name] = 0
	}
	if err := bus.SyncWrite(ctx, robot.GoalVelocity, zeros, 5); err != nil {
		fmt.Fprintf(os.Stderr, "Error stopping base: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(successStyle.Render("Base stopped."))
	return nil
}
