package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"onnoon-care/eye-monitor/internal/camera"
	"onnoon-care/eye-monitor/internal/config"
	"onnoon-care/eye-monitor/internal/fatigue"
	"onnoon-care/eye-monitor/internal/landmarks"
	"onnoon-care/eye-monitor/internal/services"
)

func runLive(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) error {
	metrics := services.GetMetrics()

	out, err := buildSink(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer shutdown(out, logger)

	client, err := services.NewLandmarkClient(cfg.LandmarkServiceURL)
	if err != nil {
		return err
	}
	defer client.Close()
	if !client.HealthCheck() {
		logger.Warnf("Landmark service at %s is not reporting SERVING yet", client.URL())
	}

	cam, err := camera.NewCapture(cfg.CameraIndex, cfg.TargetFPS, cfg.MirrorFrames)
	if err != nil {
		return err
	}
	defer cam.Close()
	logger.Infof("Camera %d opened at %dx%d", cfg.CameraIndex, cam.Width(), cam.Height())

	mon, err := newMonitor(cfg, out, nil, metrics, logger)
	if err != nil {
		return err
	}

	logger.Infof("Monitoring started, window %v, press Ctrl+C to stop", cfg.AnalysisPeriod)
	idx := landmarks.MediaPipeIndices()
	ticker := time.NewTicker(time.Second / time.Duration(cfg.TargetFPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Infof("Stopping, %d frames processed", metrics.GetTotalFrames())
			return nil
		case <-ticker.C:
		}

		jpeg, width, height, err := cam.ReadJPEG()
		if errors.Is(err, camera.ErrNoFrame) {
			logger.Debug("Camera returned no frame")
			continue
		}
		if err != nil {
			return err
		}

		obs, err := detect(ctx, client, jpeg, width, height, idx, metrics)
		if err != nil {
			metrics.IncrementErrors()
			logger.Warnf("Frame skipped: %v", err)
		}
		if rec := mon.ProcessFrame(ctx, obs); rec != nil {
			printRecord(os.Stdout, rec)
		}
	}
}

// detect runs the landmark service on one frame. A nil observation with a
// nil error means no face.
func detect(ctx context.Context, client *services.LandmarkClient, jpeg []byte, width, height int,
	idx landmarks.Indices, metrics *services.Metrics) (*fatigue.FrameObservation, error) {
	start := time.Now()
	points, err := client.Detect(ctx, jpeg)
	metrics.RecordLatency(time.Since(start))
	if err != nil {
		return nil, err
	}
	if points == nil {
		return nil, nil
	}

	obs, err := landmarks.Extract(points, float64(width), float64(height), idx)
	if err != nil {
		return nil, fmt.Errorf("landmark set rejected: %w", err)
	}
	return obs, nil
}
