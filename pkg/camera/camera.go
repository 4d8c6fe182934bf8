// Package camera defines the camera contract used by the robot and an
// OpenCV-backed implementation.
package camera

import (
	"errors"
	"fmt"
	"image"
)

// ErrNoFrame is returned by ReadLatestFrame before the first capture
// completes.
var ErrNoFrame = errors.New("no frame captured yet")

// Camera is a frame source with most-recent-frame semantics: reading
// never blocks on new hardware capture.
type Camera interface {
	Connect() error
	Disconnect() error
	IsConnected() bool
	ReadLatestFrame() (image.Image, error)
}

// Rotation is applied to captured frames before they are published.
type Rotation int

const (
	RotationNone Rotation = iota
	Rotation90            // clockwise
	Rotation180
	Rotation270 // clockwise, i.e. 90 counter-clockwise
)

var rotationNames = map[Rotation]string{
	RotationNone: "none",
	Rotation90:   "90",
	Rotation180:  "180",
	Rotation270:  "270",
}

func (r Rotation) String() string {
	if name, ok := rotationNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Rotation(%d)", int(r))
}

// MarshalJSON encodes the rotation as its degree string.
func (r Rotation) MarshalJSON() ([]byte, error) {
	name, ok := rotationNames[r]
	if !ok {
		return nil, fmt.Errorf("unknown rotation: %d", int(r))
	}
	return []byte(`"` + name + `"`), nil
}

// UnmarshalJSON accepts "none", "90", "180" or "270".
func (r *Rotation) UnmarshalJSON(data []byte) error {
	s := string(data)
	for rot, name := range rotationNames {
		if s == `"`+name+`"` {
			*r = rot
			return nil
		}
	}
	return fmt.Errorf("unknown rotation: %s", s)
}

// Config describes a single camera device.
type Config struct {
	// Path is the capture device, e.g. /dev/video0.
	Path string `json:"path"`

	FPS      int      `json:"fps,omitempty"`
	Width    int      `json:"width,omitempty"`
	Height   int      `json:"height,omitempty"`
	Rotation Rotation `json:"rotation,omitempty"`
}
