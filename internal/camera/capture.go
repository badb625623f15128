// Package camera grabs webcam frames and encodes them for the landmark
// service.
package camera

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

var ErrNoFrame = errors.New("camera returned no frame")

// Capture manages webcam capture
type Capture struct {
	webcam    *gocv.VideoCapture
	deviceID  int
	targetFPS int
	width     int
	height    int
	mirror    bool

	frame   gocv.Mat
	flipped gocv.Mat
	mu      sync.Mutex
}

// NewCapture opens a device at 640x480, enough for face landmarks.
func NewCapture(deviceID, targetFPS int, mirror bool) (*Capture, error) {
	return NewCaptureWithResolution(deviceID, targetFPS, 640, 480, mirror)
}

// NewCaptureWithResolution opens a device with a requested resolution.
func NewCaptureWithResolution(deviceID, targetFPS, width, height int, mirror bool) (*Capture, error) {
	webcam, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", deviceID, err)
	}

	webcam.Set(gocv.VideoCaptureFrameWidth, float64(width))
	webcam.Set(gocv.VideoCaptureFrameHeight, float64(height))
	webcam.Set(gocv.VideoCaptureFPS, float64(targetFPS))

	// camera may not support the requested resolution
	actualWidth := int(webcam.Get(gocv.VideoCaptureFrameWidth))
	actualHeight := int(webcam.Get(gocv.VideoCaptureFrameHeight))

	return &Capture{
		webcam:    webcam,
		deviceID:  deviceID,
		targetFPS: targetFPS,
		width:     actualWidth,
		height:    actualHeight,
		mirror:    mirror,
		frame:     gocv.NewMat(),
		flipped:   gocv.NewMat(),
	}, nil
}

// ReadJPEG grabs one frame, mirrors it when configured, and returns it as
// JPEG with its size.
func (c *Capture) ReadJPEG() ([]byte, int, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam == nil {
		return nil, 0, 0, errors.New("camera closed")
	}
	if ok := c.webcam.Read(&c.frame); !ok || c.frame.Empty() {
		return nil, 0, 0, ErrNoFrame
	}

	img := c.frame
	if c.mirror {
		gocv.Flip(c.frame, &c.flipped, 1)
		img = c.flipped
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()

	// the native buffer is freed on Close
	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return data, img.Cols(), img.Rows(), nil
}

func (c *Capture) Width() int {
	return c.width
}

func (c *Capture) Height() int {
	return c.height
}

// TargetFPS returns the requested frame rate.
func (c *Capture) TargetFPS() int {
	return c.targetFPS
}

// Close releases the camera
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam != nil {
		err := c.webcam.Close()
		c.webcam = nil
		c.frame.Close()
		c.flipped.Close()
		return err
	}
	return nil
}
