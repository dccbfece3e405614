package capture

import (
	"context"
	"errors"
	"sync/atomic"

	"fishcam/internal/logger"
)

// ErrSourceClosed is returned by Deliver once the adapter has been closed.
var ErrSourceClosed = errors.New("frame source closed")

// Sink receives frames. Submit must not block the producer.
type Sink interface {
	Submit(frame *Frame)
}

// Source produces frames until ctx is cancelled or the adapter is closed.
type Source interface {
	Name() string
	Run(ctx context.Context, adapter *Adapter) error
}

// Stats is a snapshot of the adapter counters.
type Stats struct {
	Delivered   uint64 `json:"delivered"`
	Released    uint64 `json:"released"`
	Outstanding uint64 `json:"outstanding"`
}

// Adapter sits between a camera source and the analyzer: it numbers frames, applies
// the sensor rotation and keeps track of every buffer until it is released.
type Adapter struct {
	sink     Sink
	rotation int
	logger   *logger.Logger

	seq       atomic.Uint64
	delivered atomic.Uint64
	released  atomic.Uint64
	closed    atomic.Bool
}

func NewAdapter(sink Sink, rotation int, logger *logger.Logger) *Adapter {
	return &Adapter{
		sink:     sink,
		rotation: rotation,
		logger:   logger,
	}
}

// Deliver wraps a buffer into a Frame and hands it to the sink. release (may be nil)
// is invoked exactly once when the frame is released. After Close the buffer is
// released immediately and ErrSourceClosed is returned.
func (a *Adapter) Deliver(camera string, data []byte, width, height int, release func()) error {
	if a.closed.Load() {
		if release != nil {
			release()
		}
		return ErrSourceClosed
	}

	frame := NewFrame(data, width, height, a.rotation, func() {
		a.released.Add(1)
		if release != nil {
			release()
		}
	})
	frame.Camera = camera
	frame.Seq = a.seq.Add(1)

	a.delivered.Add(1)
	a.sink.Submit(frame)
	return nil
}

// Close stops frame delivery. Frames already handed out are still released by their holder.
func (a *Adapter) Close() {
	if a.closed.CompareAndSwap(false, true) {
		a.logger.Info("Frame delivery stopped after %d frames", a.delivered.Load())
	}
}

// Closed reports whether Close has been called.
func (a *Adapter) Closed() bool {
	return a.closed.Load()
}

// Stats returns the delivery counters.
func (a *Adapter) Stats() Stats {
	released := a.released.Load()
	delivered := a.delivered.Load()
	return Stats{
		Delivered:   delivered,
		Released:    released,
		Outstanding: delivered - released,
	}
}
