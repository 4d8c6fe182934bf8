// Package lekiwi provides a driver for the LeKiwi mobile manipulator:
// a 3-wheel omnidirectional base plus a 6-joint arm, all actuated by
// Feetech STS3215 servos on a shared serial bus.
//
// # Installation
//
//	go install github.com/gwillem/lekiwi/cmd/lekiwi@latest
//
// # Usage
//
// First, calibrate the robot (one-time, operator attended):
//
//	lekiwi calibrate
//
// Then drive the base interactively, or inspect state:
//
//	lekiwi drive
//	lekiwi observe
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/lekiwi: CLI with calibrate, observe, drive and stop commands
//   - pkg/robot: Robot lifecycle, action/observation pipeline, calibration
//   - pkg/kinematics: Body-frame to wheel-speed transform for the omni base
//   - pkg/encoding: Sign-magnitude codec for signed servo registers
//   - pkg/feetechbus: Feetech servo bus backing the robot's Bus contract
//   - pkg/camera: Camera contract and OpenCV capture
package lekiwi
