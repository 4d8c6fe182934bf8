package camera

import (
	"fmt"
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/gwillem/lekiwi/internal/log"
)

// OpenCV captures frames from a V4L/OpenCV device. A background
// goroutine keeps the latest completed frame available so observation
// reads never stall on the camera.
type OpenCV struct {
	cfg Config

	mu        sync.RWMutex
	frame     image.Image
	connected bool

	cap  *gocv.VideoCapture
	stop chan struct{}
	done chan struct{}
}

// NewOpenCV creates a camera for the given device config. The device is
// not opened until Connect.
func NewOpenCV(cfg Config) *OpenCV {
	return &OpenCV{cfg: cfg}
}

// Connect opens the device and starts the capture loop.
func (c *OpenCV) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return fmt.Errorf("camera %s already connected", c.cfg.Path)
	}

	cap, err := gocv.OpenVideoCapture(c.cfg.Path)
	if err != nil {
		return fmt.Errorf("open camera %s: %w", c.cfg.Path, err)
	}

	if c.cfg.FPS > 0 {
		cap.Set(gocv.VideoCaptureFPS, float64(c.cfg.FPS))
	}
	if c.cfg.Width > 0 {
		cap.Set(gocv.VideoCaptureFrameWidth, float64(c.cfg.Width))
	}
	if c.cfg.Height > 0 {
		cap.Set(gocv.VideoCaptureFrameHeight, float64(c.cfg.Height))
	}

	c.cap = cap
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.connected = true

	go c.captureLoop(cap, c.stop, c.done)

	log.Debug("camera connected", "path", c.cfg.Path)
	return nil
}

// Disconnect stops the capture loop and releases the device.
func (c *OpenCV) Disconnect() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return fmt.Errorf("camera %s not connected", c.cfg.Path)
	}
	c.connected = false
	stop, done, cap := c.stop, c.done, c.cap
	c.cap = nil
	c.frame = nil
	c.mu.Unlock()

	close(stop)
	<-done

	return cap.Close()
}

// IsConnected reports whether the device is open.
func (c *OpenCV) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// ReadLatestFrame returns the most recent completed frame without
// waiting for a new capture. Returns ErrNoFrame until the first frame
// lands.
func (c *OpenCV) ReadLatestFrame() (image.Image, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected {
		return nil, fmt.Errorf("camera %s not connected", c.cfg.Path)
	}
	if c.frame == nil {
		return nil, fmt.Errorf("camera %s: %w", c.cfg.Path, ErrNoFrame)
	}
	return c.frame, nil
}

func (c *OpenCV) captureLoop(cap *gocv.VideoCapture, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	mat := gocv.NewMat()
	defer mat.Close()
	rotated := gocv.NewMat()
	defer rotated.Close()

	for {
		select {
		case <-stop:
			return
		default:
		}

		// Read blocks at the device frame rate, which paces the loop.
		// A failing device returns immediately, so back off briefly
		// instead of spinning until the next good frame.
		if ok := cap.Read(&mat); !ok || mat.Empty() {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		out := mat
		if flag, rotate := rotateFlag(c.cfg.Rotation); rotate {
			gocv.Rotate(mat, &rotated, flag)
			out = rotated
		}

		img, err := out.ToImage()
		if err != nil {
			log.Warn("camera frame conversion failed", "path", c.cfg.Path, "err", err)
			continue
		}

		c.mu.Lock()
		c.frame = img
		c.mu.Unlock()
	}
}

func rotateFlag(r Rotation) (gocv.RotateFlag, bool) {
	switch r {
	case Rotation90:
		return gocv.Rotate90Clockwise, true
	case Rotation180:
		return gocv.Rotate180Clockwise, true
	case Rotation270:
		return gocv.Rotate90CounterClockwise, true
	default:
		return 0, false
	}
}
