package sink

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"onnoon-care/eye-monitor/internal/fatigue"
)

var (
	ErrQueueFull = errors.New("delivery queue full")
	ErrClosed    = errors.New("sink closed")
)

// AsyncSink hands records to a background worker so the frame loop never
// waits on the network. Failures of the wrapped sink are logged and passed
// to onResult; they are never retried.
type AsyncSink struct {
	next     fatigue.Sink
	queue    chan fatigue.Record
	logger   *zap.SugaredLogger
	onResult func(error)

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewAsyncSink(next fatigue.Sink, size int, logger *zap.SugaredLogger, onResult func(error)) *AsyncSink {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &AsyncSink{
		next:     next,
		queue:    make(chan fatigue.Record, size),
		logger:   logger,
		onResult: onResult,
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

// Deliver enqueues rec. It fails only when the queue is full or closed.
func (s *AsyncSink) Deliver(_ context.Context, rec fatigue.Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	select {
	case s.queue <- rec:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for rec := range s.queue {
		err := s.next.Deliver(context.Background(), rec)
		if err != nil {
			s.logger.Warnf("Async delivery of record %s failed: %v", rec.Timestamp.Format(fatigue.TimestampLayout), err)
		}
		if s.onResult != nil {
			s.onResult(err)
		}
	}
}

// Close stops accepting records and waits for the queue to drain or ctx
// to end.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
