package fatigue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Config holds the tunable parameters of the engine.
type Config struct {
	EARThreshold       float64
	ConsecutiveFrames  int
	GazeThresholdLeft  float64
	GazeThresholdRight float64
	AnalysisPeriod     time.Duration
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		EARThreshold:       0.25,
		ConsecutiveFrames:  3,
		GazeThresholdLeft:  0.65,
		GazeThresholdRight: 0.35,
		AnalysisPeriod:     60 * time.Second,
	}
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.EARThreshold <= 0 {
		errs = append(errs, fmt.Errorf("ear threshold must be positive, got %v", c.EARThreshold))
	}
	if c.ConsecutiveFrames < 1 {
		errs = append(errs, fmt.Errorf("consecutive frames must be >= 1, got %d", c.ConsecutiveFrames))
	}
	if c.GazeThresholdRight >= c.GazeThresholdLeft {
		errs = append(errs, fmt.Errorf("gaze threshold right (%v) must be below gaze threshold left (%v)",
			c.GazeThresholdRight, c.GazeThresholdLeft))
	}
	if c.AnalysisPeriod <= 0 {
		errs = append(errs, fmt.Errorf("analysis period must be positive, got %v", c.AnalysisPeriod))
	}
	return errors.Join(errs...)
}

// FrameObservation is the eye geometry extracted from one frame. All points
// share one coordinate space.
type FrameObservation struct {
	LeftEye  [6]Point
	RightEye [6]Point

	// Horizontal corners and iris center of the eye used for gaze.
	LeftCorner  Point
	RightCorner Point
	Iris        Point
}

// Sink receives one record per closed analysis window.
type Sink interface {
	Deliver(ctx context.Context, rec Record) error
}

// Recorder receives counters from the engine. It may be nil.
type Recorder interface {
	FrameProcessed(faceFound bool)
	DegenerateEye()
	Blink()
	WindowClosed()
	Delivery(err error)
}

// FrameStats is a snapshot of the engine after the last frame.
type FrameStats struct {
	EAR          float64
	EARValid     bool
	RelativeGaze float64
	Gaze         GazeState
	Blinks       int
	Consecutive  int
}

// Monitor runs blink detection, gaze classification and periodic scoring
// for a single face.
//
// It is driven entirely by ProcessFrame: there is no timer goroutine. The
// window closes on the first frame at or after AnalysisPeriod, so closing
// latency is bounded by the frame interval. A Monitor is not safe for
// concurrent use.
type Monitor struct {
	cfg        Config
	clock      clock.Clock
	sink       Sink
	recorder   Recorder
	logger     *zap.SugaredLogger
	blink      *BlinkDetector
	classifier GazeClassifier
	tracker    *StabilityTracker

	windowStart time.Time
	stats       FrameStats
}

// NewMonitor creates a monitor. A nil clock uses the wall clock; a nil
// logger discards output.
func NewMonitor(cfg Config, sink Sink, clk clock.Clock, logger *zap.SugaredLogger) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid monitor config: %w", err)
	}
	if sink == nil {
		return nil, errors.New("sink is required")
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	now := clk.Now()
	return &Monitor{
		cfg:    cfg,
		clock:  clk,
		sink:   sink,
		logger: logger,
		blink:  NewBlinkDetector(cfg.EARThreshold, cfg.ConsecutiveFrames),
		classifier: GazeClassifier{
			ThresholdLeft:  cfg.GazeThresholdLeft,
			ThresholdRight: cfg.GazeThresholdRight,
		},
		tracker:     NewStabilityTracker(now),
		windowStart: now,
		stats: FrameStats{
			RelativeGaze: UnclassifiedPosition,
			Gaze:         GazeCenter,
		},
	}, nil
}

// SetRecorder attaches a counter sink.
func (m *Monitor) SetRecorder(r Recorder) {
	m.recorder = r
}

// ProcessFrame updates the engine with one frame. obs is nil when no face was
// found. It returns the record emitted if this frame closed a window.
// Delivery failures are logged, never returned.
func (m *Monitor) ProcessFrame(ctx context.Context, obs *FrameObservation) *Record {
	if obs != nil {
		m.observe(obs)
	}
	if m.recorder != nil {
		m.recorder.FrameProcessed(obs != nil)
	}
	return m.maybeAnalyze(ctx)
}

func (m *Monitor) observe(obs *FrameObservation) {
	now := m.clock.Now()

	if ear, ok := m.frameEAR(obs); ok {
		m.stats.EAR = ear
		m.stats.EARValid = true
		if m.blink.Observe(ear) && m.recorder != nil {
			m.recorder.Blink()
		}
	} else {
		m.stats.EARValid = false
		m.logger.Debugw("skipping EAR for degenerate eye span")
		if m.recorder != nil {
			m.recorder.DegenerateEye()
		}
	}

	rel, state, ok := m.classifier.Classify(obs.LeftCorner.X, obs.RightCorner.X, obs.Iris.X)
	m.stats.RelativeGaze = rel
	if ok {
		m.tracker.Observe(state, now)
	} else {
		m.logger.Debugw("gaze unclassified, eye width is zero")
	}

	m.stats.Gaze = m.tracker.Current()
	m.stats.Blinks = m.blink.Count()
	m.stats.Consecutive = m.blink.Consecutive()
}

// frameEAR averages both eyes. A degenerate eye drops the whole reading.
func (m *Monitor) frameEAR(obs *FrameObservation) (float64, bool) {
	if HorizontalSpanDegenerate(obs.LeftEye) || HorizontalSpanDegenerate(obs.RightEye) {
		return 0, false
	}
	return (EyeAspectRatio(obs.LeftEye) + EyeAspectRatio(obs.RightEye)) / 2.0, true
}

func (m *Monitor) maybeAnalyze(ctx context.Context) *Record {
	now := m.clock.Now()
	if now.Sub(m.windowStart) < m.cfg.AnalysisPeriod {
		return nil
	}

	dwell := m.tracker.Flush(now)
	rec := Evaluate(m.blink.Count(), dwell, now)

	m.logger.Infof("window closed: bpm=%d max_stable_gaze=%.2fs blink_score=%.1f gaze_score=%.1f health=%.1f status=%s",
		rec.BlinkCount, rec.MaxStableGaze, rec.BlinkScore, rec.GazeScore, rec.HealthScore, rec.Status)

	// The next window starts at now whatever the delivery outcome.
	m.reset(now)

	err := m.sink.Deliver(ctx, rec)
	if err != nil {
		m.logger.Warnf("dropping fatigue record from %s: %v", rec.Timestamp.Format(TimestampLayout), err)
	}
	if m.recorder != nil {
		m.recorder.WindowClosed()
		m.recorder.Delivery(err)
	}
	return &rec
}

func (m *Monitor) reset(now time.Time) {
	m.blink.ResetCount()
	m.tracker.Reset(now)
	m.windowStart = now
	m.stats.Blinks = 0
}

// Stats returns a snapshot taken after the last frame.
func (m *Monitor) Stats() FrameStats {
	return m.stats
}

// WindowStart returns when the current analysis window began.
func (m *Monitor) WindowStart() time.Time {
	return m.windowStart
}

// Pending returns the blink count and closed dwell intervals of the open window.
func (m *Monitor) Pending() (blinks int, dwell []float64) {
	return m.blink.Count(), m.tracker.Intervals()
}
