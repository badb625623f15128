// Package main is the eye fatigue monitor: it reads frames from a camera or
// a recording, tracks blinks and gaze, and delivers one record per window.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"onnoon-care/eye-monitor/internal/config"
	"onnoon-care/eye-monitor/internal/fatigue"
	"onnoon-care/eye-monitor/internal/logging"
	"onnoon-care/eye-monitor/internal/services"
	"onnoon-care/eye-monitor/internal/sink"
)

const (
	flagLandmarkURL = "landmark-url"
	flagSink        = "sink"
	flagLogFile     = "log-file"
	flagRemoteURL   = "remote-url"
	flagDebug       = "debug"
	flagCamera      = "camera"
	flagFile        = "file"
	flagStart       = "start"
)

func main() {
	var (
		cfg    *config.Config
		logger *zap.SugaredLogger
	)

	app := &cli.App{
		Name:  "monitor",
		Usage: "track blinks and gaze and report eye fatigue",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: flagSink, Usage: "where records go: file, remote or both"},
			&cli.StringFlag{Name: flagLogFile, Usage: "local fatigue log `FILE`"},
			&cli.StringFlag{Name: flagRemoteURL, Usage: "result store base URL"},
			&cli.BoolFlag{Name: flagDebug, Aliases: []string{"vvv"}, Usage: "enable debug logging"},
		},
		Before: func(c *cli.Context) error {
			cfg = config.LoadConfig()
			if c.IsSet(flagSink) {
				cfg.Sink = c.String(flagSink)
			}
			if c.IsSet(flagLogFile) {
				cfg.FatigueLogFile = c.String(flagLogFile)
			}
			if c.IsSet(flagRemoteURL) {
				cfg.RemoteURL = c.String(flagRemoteURL)
			}
			if c.Bool(flagDebug) {
				cfg.LogLevel = "debug"
			}

			var err error
			logger, err = logging.New("monitor", cfg.LogLevel, cfg.IsDev())
			if err != nil {
				return err
			}
			return cfg.Validate()
		},
		After: func(c *cli.Context) error {
			if logger != nil {
				_ = logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "analyze the live camera feed",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagLandmarkURL, Usage: "landmark service address"},
					&cli.IntFlag{Name: flagCamera, Usage: "camera device index"},
				},
				Action: func(c *cli.Context) error {
					if c.IsSet(flagLandmarkURL) {
						cfg.LandmarkServiceURL = c.String(flagLandmarkURL)
					}
					if c.IsSet(flagCamera) {
						cfg.CameraIndex = c.Int(flagCamera)
					}
					return runLive(c.Context, cfg, logger)
				},
			},
			{
				Name:  "replay",
				Usage: "feed a recorded landmark file through the analyzer",
				Flags: []cli.Flag{
					&cli.PathFlag{Name: flagFile, Required: true, Usage: "JSON-lines recording `FILE`"},
					&cli.TimestampFlag{
						Name:   flagStart,
						Layout: fatigue.TimestampLayout,
						Usage:  "wall time of the first frame (default now)",
					},
				},
				Action: func(c *cli.Context) error {
					start := time.Now()
					if ts := c.Timestamp(flagStart); ts != nil {
						start = *ts
					}
					f, err := os.Open(c.Path(flagFile))
					if err != nil {
						return err
					}
					defer f.Close()
					return runReplay(c.Context, cfg, logger, f, start, os.Stdout)
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// deliveryChain is the sink the monitor writes to plus its shutdown hook.
type deliveryChain struct {
	sink  fatigue.Sink
	close func(context.Context) error
}

// buildSink assembles the configured sinks. The remote sink logs in here so
// bad credentials stop the monitor before any frame is read.
func buildSink(ctx context.Context, cfg *config.Config, metrics *services.Metrics, logger *zap.SugaredLogger) (*deliveryChain, error) {
	var sinks sink.MultiSink
	if cfg.UsesFile() {
		fs, err := sink.NewFileSink(cfg.FatigueLogFile)
		if err != nil {
			return nil, err
		}
		logger.Infof("Writing records to %s", fs.Path())
		sinks = append(sinks, fs)
	}
	if cfg.UsesRemote() {
		rs, err := sink.NewRemoteSink(ctx, cfg.RemoteURL, cfg.RemoteEmail, cfg.RemotePassword, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("could not log in to %s: %w", cfg.RemoteURL, err)
		}
		logger.Infof("Logged in to result store at %s", cfg.RemoteURL)
		sinks = append(sinks, rs)
	}

	var out fatigue.Sink = sinks
	if len(sinks) == 1 {
		out = sinks[0]
	}
	if !cfg.AsyncDelivery {
		return &deliveryChain{sink: out, close: func(context.Context) error { return nil }}, nil
	}

	async := sink.NewAsyncSink(out, cfg.DeliveryQueueSize, logger, metrics.Delivery)
	return &deliveryChain{sink: async, close: async.Close}, nil
}

// newMonitor builds the analyzer with metrics attached. With async
// delivery the monitor only sees enqueue results, so the worker reports
// the real outcome.
func newMonitor(cfg *config.Config, out *deliveryChain, clk clock.Clock, metrics *services.Metrics, logger *zap.SugaredLogger) (*fatigue.Monitor, error) {
	mon, err := fatigue.NewMonitor(cfg.Monitor(), out.sink, clk, logger)
	if err != nil {
		return nil, err
	}
	if cfg.AsyncDelivery {
		mon.SetRecorder(asyncRecorder{metrics})
	} else {
		mon.SetRecorder(metrics)
	}
	return mon, nil
}

// asyncRecorder counts only enqueue failures; the async worker reports
// delivery outcomes itself.
type asyncRecorder struct {
	*services.Metrics
}

func (r asyncRecorder) Delivery(err error) {
	if err != nil {
		r.Metrics.Delivery(err)
	}
}

func printRecord(w io.Writer, rec *fatigue.Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "%s  [%s] %s\n", data, rec.Status, rec.Status.Label())
}

func shutdown(out *deliveryChain, logger *zap.SugaredLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := out.close(ctx); err != nil {
		logger.Warnf("Pending deliveries not finished: %v", err)
	}
}
