package services

import (
	"sync"
	"sync/atomic"
	"time"
)

type Metrics struct {
	totalFrames     atomic.Int64
	facelessFrames  atomic.Int64
	degenerateEyes  atomic.Int64
	totalBlinks     atomic.Int64
	windowsClosed   atomic.Int64
	deliveriesOK    atomic.Int64
	deliveriesError atomic.Int64
	totalErrors     atomic.Int64
	totalLatency    atomic.Int64
	lastFrameTime   atomic.Int64

	recordsStored atomic.Int64
	wsConnections atomic.Int64
	wsMessages    atomic.Int64
	wsErrors      atomic.Int64

	startTime time.Time
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = NewMetrics()
	})
	return metricsInstance
}

// FrameProcessed counts one frame handed to the fatigue monitor.
func (m *Metrics) FrameProcessed(faceFound bool) {
	m.totalFrames.Add(1)
	if !faceFound {
		m.facelessFrames.Add(1)
	}
	m.lastFrameTime.Store(time.Now().Unix())
}

func (m *Metrics) DegenerateEye() {
	m.degenerateEyes.Add(1)
}

func (m *Metrics) Blink() {
	m.totalBlinks.Add(1)
}

func (m *Metrics) WindowClosed() {
	m.windowsClosed.Add(1)
}

// Delivery counts the outcome of one sink delivery.
func (m *Metrics) Delivery(err error) {
	if err != nil {
		m.deliveriesError.Add(1)
		return
	}
	m.deliveriesOK.Add(1)
}

func (m *Metrics) IncrementErrors() {
	m.totalErrors.Add(1)
}

// RecordLatency adds the landmark detection time of one frame.
func (m *Metrics) RecordLatency(duration time.Duration) {
	m.totalLatency.Add(duration.Milliseconds())
}

func (m *Metrics) GetTotalFrames() int64 {
	return m.totalFrames.Load()
}

func (m *Metrics) GetFacelessFrames() int64 {
	return m.facelessFrames.Load()
}

func (m *Metrics) GetTotalBlinks() int64 {
	return m.totalBlinks.Load()
}

func (m *Metrics) GetWindowsClosed() int64 {
	return m.windowsClosed.Load()
}

func (m *Metrics) GetDeliveries() (ok, failed int64) {
	return m.deliveriesOK.Load(), m.deliveriesError.Load()
}

func (m *Metrics) GetTotalErrors() int64 {
	return m.totalErrors.Load()
}

func (m *Metrics) GetAvgLatency() float64 {
	frames := m.totalFrames.Load()
	if frames == 0 {
		return 0
	}
	return float64(m.totalLatency.Load()) / float64(frames)
}

func (m *Metrics) GetLastFrameTime() int64 {
	return m.lastFrameTime.Load()
}

func (m *Metrics) IncrementRecordsStored() {
	m.recordsStored.Add(1)
}

func (m *Metrics) GetRecordsStored() int64 {
	return m.recordsStored.Load()
}

func (m *Metrics) IncrementWebSocketConnections() {
	m.wsConnections.Add(1)
}

// DecrementWebSocketConnections decrements WebSocket connection count
func (m *Metrics) DecrementWebSocketConnections() {
	m.wsConnections.Add(-1)
}

// GetWebSocketConnections returns current WebSocket connections
func (m *Metrics) GetWebSocketConnections() int64 {
	return m.wsConnections.Load()
}

// IncrementWebSocketMessages increments WebSocket message count
func (m *Metrics) IncrementWebSocketMessages() {
	m.wsMessages.Add(1)
}

// IncrementWebSocketErrors increments WebSocket error count
func (m *Metrics) IncrementWebSocketErrors() {
	m.wsErrors.Add(1)
}

// Uptime returns the time since the metrics were created.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}

// Snapshot returns all counters for the metrics endpoint and logs.
func (m *Metrics) Snapshot() map[string]interface{} {
	ok, failed := m.GetDeliveries()
	return map[string]interface{}{
		"total_frames":      m.totalFrames.Load(),
		"faceless_frames":   m.facelessFrames.Load(),
		"degenerate_eyes":   m.degenerateEyes.Load(),
		"total_blinks":      m.totalBlinks.Load(),
		"windows_closed":    m.windowsClosed.Load(),
		"deliveries_ok":     ok,
		"deliveries_failed": failed,
		"total_errors":      m.totalErrors.Load(),
		"avg_latency_ms":    m.GetAvgLatency(),
		"records_stored":    m.recordsStored.Load(),
		"websocket": map[string]interface{}{
			"connections": m.wsConnections.Load(),
			"messages":    m.wsMessages.Load(),
			"errors":      m.wsErrors.Load(),
		},
		"system_uptime_sec": int(m.Uptime().Seconds()),
	}
}
