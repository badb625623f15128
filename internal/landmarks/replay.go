package landmarks

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"onnoon-care/eye-monitor/internal/fatigue"
)

// Frame is one recorded detector output.
type Frame struct {
	// Offset from the start of the recording.
	Offset time.Duration
	Width  float64
	Height float64
	// Landmarks is nil when no face was found.
	Landmarks []fatigue.Point
}

type frameJSON struct {
	T         float64      `json:"t"`
	Width     float64      `json:"width,omitempty"`
	Height    float64      `json:"height,omitempty"`
	Landmarks [][2]float64 `json:"landmarks"`
}

// MarshalJSON writes one recording line.
func (f Frame) MarshalJSON() ([]byte, error) {
	raw := frameJSON{
		T:      f.Offset.Seconds(),
		Width:  f.Width,
		Height: f.Height,
	}
	if f.Landmarks != nil {
		raw.Landmarks = make([][2]float64, len(f.Landmarks))
		for i, p := range f.Landmarks {
			raw.Landmarks[i] = [2]float64{p.X, p.Y}
		}
	}
	return json.Marshal(raw)
}

// UnmarshalJSON reads one recording line.
func (f *Frame) UnmarshalJSON(data []byte) error {
	var raw frameJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.T < 0 {
		return fmt.Errorf("negative frame offset %v", raw.T)
	}

	*f = Frame{
		Offset: time.Duration(math.Round(raw.T * float64(time.Second))),
		Width:  raw.Width,
		Height: raw.Height,
	}
	// An empty list means no face, as from the landmark service.
	if len(raw.Landmarks) > 0 {
		f.Landmarks = make([]fatigue.Point, len(raw.Landmarks))
		for i, p := range raw.Landmarks {
			f.Landmarks[i] = fatigue.Point{X: p[0], Y: p[1]}
		}
	}
	return nil
}

// Replay reads a JSON-lines recording, one Frame per line. Blank lines and
// lines starting with '#' are skipped. Offsets must not decrease.
type Replay struct {
	scanner *bufio.Scanner
	line    int
	last    time.Duration
}

// NewReplay creates a reader over r.
func NewReplay(r io.Reader) *Replay {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &Replay{scanner: sc}
}

// Next returns the next frame, or io.EOF at the end of the recording.
func (r *Replay) Next() (Frame, error) {
	for r.scanner.Scan() {
		r.line++
		text := strings.TrimSpace(r.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var f Frame
		if err := json.Unmarshal([]byte(text), &f); err != nil {
			return Frame{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		if f.Offset < r.last {
			return Frame{}, fmt.Errorf("line %d: offset %v goes back in time (previous %v)", r.line, f.Offset, r.last)
		}
		r.last = f.Offset
		return f, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Frame{}, err
	}
	return Frame{}, io.EOF
}
