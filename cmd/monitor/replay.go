package main

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"onnoon-care/eye-monitor/internal/config"
	"onnoon-care/eye-monitor/internal/fatigue"
	"onnoon-care/eye-monitor/internal/landmarks"
	"onnoon-care/eye-monitor/internal/services"
)

func runReplay(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger, r io.Reader, start time.Time, w io.Writer) error {
	metrics := services.GetMetrics()

	out, err := buildSink(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer shutdown(out, logger)

	mock := clock.NewMock()
	mock.Set(start)
	mon, err := newMonitor(cfg, out, mock, metrics, logger)
	if err != nil {
		return err
	}

	n, err := replayFrames(ctx, landmarks.NewReplay(r), mon, mock, start, landmarks.MediaPipeIndices(), func(rec *fatigue.Record) {
		printRecord(w, rec)
	})
	logger.Infof("Replayed %d frames", n)
	return err
}

// replayFrames drives mon with recorded frames, moving mock to each frame's
// offset from start. It returns the number of frames processed.
func replayFrames(ctx context.Context, rp *landmarks.Replay, mon *fatigue.Monitor, mock *clock.Mock, start time.Time,
	idx landmarks.Indices, emit func(*fatigue.Record)) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}

		frame, err := rp.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}

		mock.Set(start.Add(frame.Offset))

		var obs *fatigue.FrameObservation
		if frame.Landmarks != nil {
			obs, err = landmarks.Extract(frame.Landmarks, frame.Width, frame.Height, idx)
			if err != nil {
				return n, err
			}
		}

		if rec := mon.ProcessFrame(ctx, obs); rec != nil {
			emit(rec)
		}
		n++
	}
}
