// Package analysis runs the detector over the live frame stream.
//
// Frames arrive from the capture context through Submit and are analyzed one at a
// time on the goroutine running Run. Backpressure is keep-only-latest: while a frame
// is being analyzed, at most one more frame waits; a newer arrival replaces it and the
// replaced frame is released without analysis. Every submitted frame is released
// exactly once, whatever happens to it.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"fishcam/internal/config"
	"fishcam/internal/logger"
	"fishcam/internal/models"
	"fishcam/internal/services/capture"
	"fishcam/internal/services/latest"
)

// DefaultMinConfidence is the reporting threshold used when none is configured.
const DefaultMinConfidence = 0.9

// Detector is the opaque model: frame in, ordered detections out.
type Detector interface {
	Detect(ctx context.Context, frame *capture.Frame) ([]models.Detection, error)
}

// ResultSink is notified after each successful publish. Accept must not block.
type ResultSink interface {
	Accept(result *models.DetectionResult)
}

// Options configures the filtering and publication policy.
type Options struct {
	MinConfidence float64
	// KeepPrevious leaves the last result current when nothing passes the filter,
	// instead of publishing an empty result.
	KeepPrevious bool
	Sink         ResultSink
}

// OptionsFromConfig maps the service configuration onto analyzer options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MinConfidence: cfg.MinConfidence,
		KeepPrevious:  cfg.EmptyResultPolicy == config.PolicyKeepPrevious,
	}
}

// Stats is a snapshot of analyzer counters.
type Stats struct {
	Received   uint64 `json:"received"`
	Superseded uint64 `json:"superseded"` // released without analysis
	Analyzed   uint64 `json:"analyzed"`
	Failed     uint64 `json:"failed"`
	Filtered   uint64 `json:"filtered"` // analyzed, nothing above threshold
	Published  uint64 `json:"published"`
}

type Analyzer struct {
	detector Detector
	slot     *latest.Slot[*models.DetectionResult]
	opts     Options
	logger   *logger.Logger

	// Depth-1 queue between the capture context and the analysis loop.
	mu      sync.Mutex
	pending *capture.Frame
	stopped bool
	cancel  context.CancelFunc
	ready   chan struct{}

	running atomic.Bool
	done    chan struct{}

	received   atomic.Uint64
	superseded atomic.Uint64
	analyzed   atomic.Uint64
	failed     atomic.Uint64
	filtered   atomic.Uint64
	published  atomic.Uint64
}

func New(detector Detector, slot *latest.Slot[*models.DetectionResult], opts Options, logger *logger.Logger) *Analyzer {
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = DefaultMinConfidence
	}
	return &Analyzer{
		detector: detector,
		slot:     slot,
		opts:     opts,
		logger:   logger,
		ready:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Submit hands a frame to the analyzer without blocking. If another frame is already
// waiting it is released unanalyzed. After Stop the frame is released immediately.
func (a *Analyzer) Submit(frame *capture.Frame) {
	a.received.Add(1)

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		frame.Release()
		return
	}
	previous := a.pending
	a.pending = frame
	a.mu.Unlock()

	if previous != nil {
		a.superseded.Add(1)
		previous.Release()
	}

	select {
	case a.ready <- struct{}{}:
	default:
	}
}

// Run analyzes frames until ctx is cancelled or Stop is called.
func (a *Analyzer) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return errors.New("analyzer already running")
	}
	defer close(a.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.cancel = cancel
	a.mu.Unlock()

	defer a.shutdown()

	a.logger.Info("🔧 Analyzer started (min confidence %.2f, keep previous: %v)", a.opts.MinConfidence, a.opts.KeepPrevious)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.ready:
		}

		frame := a.take()
		if frame == nil {
			continue
		}
		if ctx.Err() != nil {
			a.superseded.Add(1)
			frame.Release()
			return nil
		}
		a.analyze(ctx, frame)
	}
}

// Stop tears the analyzer down without waiting for an in-flight detection: the
// pending frame is released, later submissions are released on arrival, and a
// result finishing after Stop is discarded. Use Done to wait for Run to return.
func (a *Analyzer) Stop() {
	a.shutdown()
}

// Done is closed when Run has returned.
func (a *Analyzer) Done() <-chan struct{} {
	return a.done
}

// Stats returns the analyzer counters.
func (a *Analyzer) Stats() Stats {
	return Stats{
		Received:   a.received.Load(),
		Superseded: a.superseded.Load(),
		Analyzed:   a.analyzed.Load(),
		Failed:     a.failed.Load(),
		Filtered:   a.filtered.Load(),
		Published:  a.published.Load(),
	}
}

// PendingSeq returns the sequence number of the waiting frame, if any.
func (a *Analyzer) PendingSeq() (uint64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending == nil {
		return 0, false
	}
	return a.pending.Seq, true
}

func (a *Analyzer) take() *capture.Frame {
	a.mu.Lock()
	defer a.mu.Unlock()
	frame := a.pending
	a.pending = nil
	return frame
}

func (a *Analyzer) shutdown() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	frame := a.pending
	a.pending = nil
	cancel := a.cancel
	a.mu.Unlock()

	if frame != nil {
		a.superseded.Add(1)
		frame.Release()
	}
	if cancel != nil {
		cancel()
	}
	a.logger.Info("🛑 Analyzer stopped")
}

func (a *Analyzer) analyze(ctx context.Context, frame *capture.Frame) {
	// Covers the early returns; the success path releases before publishing and
	// Release is a no-op the second time.
	defer frame.Release()

	detections, err := a.detect(ctx, frame)
	if err != nil {
		a.failed.Add(1)
		if ctx.Err() == nil {
			a.logger.Warning("Frame %d dropped: %v", frame.Seq, err)
		}
		return
	}
	a.analyzed.Add(1)

	accepted := FilterByConfidence(detections, a.opts.MinConfidence)
	if len(accepted) == 0 {
		a.filtered.Add(1)
		if a.opts.KeepPrevious {
			return
		}
	}

	result := &models.DetectionResult{
		Detections:  accepted,
		ModelWidth:  frame.Width,
		ModelHeight: frame.Height,
		Rotation:    frame.Rotation,
		Seq:         frame.Seq,
		Timestamp:   frame.Timestamp,
	}
	// The result holds no pixel data, so the buffer goes back before publishing.
	frame.Release()

	// Torn down while the detector was running.
	if ctx.Err() != nil {
		return
	}

	if !a.slot.Publish(result.Seq, result) {
		return
	}
	a.published.Add(1)

	if primary, ok := result.Primary(); ok {
		a.logger.Debug("Frame %d: %s (%.2f)", result.Seq, primary.Label, primary.Confidence)
	}
	if a.opts.Sink != nil {
		a.opts.Sink.Accept(result)
	}
}

// detect turns a detector panic into a frame-level error.
func (a *Analyzer) detect(ctx context.Context, frame *capture.Frame) (detections []models.Detection, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("detector panic: %v", r)
		}
	}()
	return a.detector.Detect(ctx, frame)
}

// FilterByConfidence keeps detections with confidence >= min, preserving detector order.
// The returned slice never aliases the input.
func FilterByConfidence(detections []models.Detection, min float64) []models.Detection {
	out := make([]models.Detection, 0, len(detections))
	for _, d := range detections {
		if d.Confidence >= min {
			out = append(out, d)
		}
	}
	return out
}
