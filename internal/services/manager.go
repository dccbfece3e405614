package services

import (
	"context"
	"time"

	"fishcam/internal/config"
	"fishcam/internal/logger"
	"fishcam/internal/models"
	"fishcam/internal/services/analysis"
	"fishcam/internal/services/capture"
	"fishcam/internal/services/latest"
	"fishcam/internal/services/localdata"
	"fishcam/internal/services/overlay"

	"golang.org/x/sync/errgroup"
)

// Stats is a snapshot of the whole pipeline.
type Stats struct {
	Source    string         `json:"source"`
	Capture   capture.Stats  `json:"capture"`
	Analysis  analysis.Stats `json:"analysis"`
	LatestSeq uint64         `json:"latest_seq"`
	Persisted uint64         `json:"persisted"`
	Viewers   int            `json:"viewers"`
}

// Manager wires the live pipeline: frame source -> analyzer -> latest result, which
// feeds the viewer hub and the persister.
type Manager struct {
	source    capture.Source
	adapter   *capture.Adapter
	analyzer  *analysis.Analyzer
	results   *latest.Slot[*models.DetectionResult]
	hub       *overlay.Hub
	persister *localdata.Persister
	logger    *logger.Logger
}

// NewManager builds the pipeline. source may be nil when frames are not captured locally.
func NewManager(detector analysis.Detector, source capture.Source, store *localdata.Store, cfg *config.Config, logger *logger.Logger) *Manager {
	results := &latest.Slot[*models.DetectionResult]{}
	persister := localdata.NewPersister(store, logger.Named("persister"))

	opts := analysis.OptionsFromConfig(cfg)
	opts.Sink = persister
	analyzer := analysis.New(detector, results, opts, logger.Named("analyzer"))

	return &Manager{
		source:    source,
		adapter:   capture.NewAdapter(analyzer, cfg.CameraRotation, logger.Named("capture")),
		analyzer:  analyzer,
		results:   results,
		hub:       overlay.NewHub(results, time.Duration(cfg.RenderIntervalMs)*time.Millisecond, logger.Named("overlay")),
		persister: persister,
		logger:    logger,
	}
}

// Run starts every pipeline stage and returns once all of them stopped. Cancelling
// ctx tears the pipeline down.
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return m.analyzer.Run(ctx) })
	g.Go(func() error { return m.hub.Run(ctx) })
	g.Go(func() error { return m.persister.Run(ctx) })

	if m.source != nil {
		g.Go(func() error {
			m.logger.Info("🎬 Capturing frames from %s", m.source.Name())
			// Awaria kamery nie zatrzymuje serwera
			if err := m.source.Run(ctx, m.adapter); err != nil {
				m.logger.Error("Frame source %s stopped: %v", m.source.Name(), err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		m.Stop()
		return nil
	})

	return g.Wait()
}

// Stop stops frame delivery and the analyzer without waiting for an in-flight
// detection. Results finishing afterwards are discarded.
func (m *Manager) Stop() {
	m.adapter.Close()
	m.analyzer.Stop()
	m.results.Close()
}

// Submit injects a frame from outside the configured source.
func (m *Manager) Submit(camera string, data []byte, width, height int, release func()) error {
	return m.adapter.Deliver(camera, data, width, height, release)
}

// Latest returns the current result, if any.
func (m *Manager) Latest() (*models.DetectionResult, bool) {
	result, _, ok := m.results.Load()
	return result, ok
}

func (m *Manager) Hub() *overlay.Hub {
	return m.hub
}

func (m *Manager) Stats() Stats {
	stats := Stats{
		Capture:   m.adapter.Stats(),
		Analysis:  m.analyzer.Stats(),
		LatestSeq: m.results.Seq(),
		Persisted: m.persister.Written(),
		Viewers:   m.hub.ViewerCount(),
	}
	if m.source != nil {
		stats.Source = m.source.Name()
	}
	return stats
}
