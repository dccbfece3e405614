package localdata

import (
	"context"
	"sync/atomic"

	"fishcam/internal/logger"
	"fishcam/internal/models"
	"fishcam/internal/services/latest"
)

// Persister writes published detection results to the store in the background.
// Only the newest pending result is written; older ones are skipped.
type Persister struct {
	store   *Store
	pending latest.Slot[*models.DetectionResult]
	logger  *logger.Logger

	written atomic.Uint64
	failed  atomic.Uint64
}

func NewPersister(store *Store, logger *logger.Logger) *Persister {
	return &Persister{store: store, logger: logger}
}

// Accept queues result for writing without blocking.
func (p *Persister) Accept(result *models.DetectionResult) {
	p.pending.Publish(result.Seq, result)
}

// Run writes queued results until ctx is cancelled.
func (p *Persister) Run(ctx context.Context) error {
	changed, unsubscribe := p.pending.Subscribe()
	defer unsubscribe()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changed:
			if !ok {
				return nil
			}
		}

		result, seq, ok := p.pending.Load()
		if !ok || seq == last {
			continue
		}
		last = seq

		if err := p.write(ctx, result); err != nil {
			p.failed.Add(1)
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error("Failed to persist result %d: %v", seq, err)
			continue
		}
		p.written.Add(1)
	}
}

// Written returns the number of results persisted so far.
func (p *Persister) Written() uint64 {
	return p.written.Load()
}

// Failed returns the number of results that could not be persisted.
func (p *Persister) Failed() uint64 {
	return p.failed.Load()
}

func (p *Persister) write(ctx context.Context, result *models.DetectionResult) error {
	if err := p.store.SetRecognitions(ctx, result.Boxes()); err != nil {
		return err
	}
	return p.store.SetBitmapSize(ctx, result.ModelWidth, result.ModelHeight)
}
