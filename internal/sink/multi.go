package sink

import (
	"context"
	"errors"

	"onnoon-care/eye-monitor/internal/fatigue"
)

// MultiSink delivers every record to each sink in order. One failing sink
// does not stop the others.
type MultiSink []fatigue.Sink

func (m MultiSink) Deliver(ctx context.Context, rec fatigue.Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
