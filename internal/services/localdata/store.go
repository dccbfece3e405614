// Package localdata keeps the device's persisted state: identity, last recognitions
// and the size of the last analyzed frame.
//
// Writes are serialized through a single writer goroutine and are durable once the
// Set call returns. Readers see the in-memory copy and may watch it change.
package localdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"fishcam/internal/logger"
	"fishcam/internal/models"
	"fishcam/internal/repository"
)

// ErrStoreClosed is returned by writes issued after the writer stopped.
var ErrStoreClosed = errors.New("local data store closed")

type request struct {
	apply func(*models.LocalData) error
	reply chan error
}

type Store struct {
	repo   repository.LocalDataRepository
	logger *logger.Logger

	requests chan request
	done     chan struct{}
	running  atomic.Bool

	mu       sync.RWMutex
	current  models.LocalData
	watchers map[int]chan models.LocalData
	nextID   int
	closed   bool
}

// NewStore loads the persisted state. Run must be started before any write.
func NewStore(repo repository.LocalDataRepository, logger *logger.Logger) (*Store, error) {
	data, err := repo.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load local data: %w", err)
	}

	return &Store{
		repo:     repo,
		logger:   logger,
		requests: make(chan request),
		done:     make(chan struct{}),
		current:  data,
		watchers: make(map[int]chan models.LocalData),
	}, nil
}

// Run applies writes one at a time until ctx is cancelled.
func (s *Store) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("local data store already running")
	}
	defer s.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-s.requests:
			req.reply <- s.apply(req.apply)
		}
	}
}

func (s *Store) apply(fn func(*models.LocalData) error) error {
	s.mu.RLock()
	next := s.current.Clone()
	s.mu.RUnlock()

	if err := fn(&next); err != nil {
		s.logger.Warning("Local data write failed: %v", err)
		return err
	}
	next.UpdatedAt = time.Now()

	s.mu.Lock()
	s.current = next
	for _, ch := range s.watchers {
		offer(ch, next.Clone())
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	close(s.done)
	for id, ch := range s.watchers {
		close(ch)
		delete(s.watchers, id)
	}
}

// Load returns a copy of the current state.
func (s *Store) Load() models.LocalData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Watch emits the current state and then every update. A slow reader only sees the
// newest state. The channel is closed when ctx ends or the store stops.
func (s *Store) Watch(ctx context.Context) <-chan models.LocalData {
	ch := make(chan models.LocalData, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch
	}
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	ch <- s.current.Clone()
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(ch)
		}
	}()
	return ch
}

// SetRecognitions replaces the stored boxes.
func (s *Store) SetRecognitions(ctx context.Context, boxes []models.Box) error {
	boxes = append([]models.Box(nil), boxes...)
	return s.submit(ctx, func(data *models.LocalData) error {
		if err := s.repo.SaveRecognitions(boxes); err != nil {
			return err
		}
		data.Recognitions = boxes
		return nil
	})
}

// SetBitmapSize stores the size of the last analyzed frame.
func (s *Store) SetBitmapSize(ctx context.Context, width, height int) error {
	info := models.BitmapInfo{Width: width, Height: height}
	return s.submit(ctx, func(data *models.LocalData) error {
		if err := s.repo.SaveBitmapInfo(info); err != nil {
			return err
		}
		data.Bitmap = info
		return nil
	})
}

// SetIdentity stores identity unless one already exists and returns the identity in
// effect afterwards.
func (s *Store) SetIdentity(ctx context.Context, identity models.DeviceIdentity) (models.DeviceIdentity, error) {
	var stored models.DeviceIdentity
	err := s.submit(ctx, func(data *models.LocalData) error {
		var err error
		stored, err = s.repo.InsertIdentity(identity)
		if err != nil {
			return err
		}
		data.Identity = stored
		return nil
	})
	return stored, err
}

// RenewToken replaces the bearer token of the stored identity, keeping its device id
// and creation time.
func (s *Store) RenewToken(ctx context.Context, deviceID, bearerToken string) (models.DeviceIdentity, error) {
	var renewed models.DeviceIdentity
	err := s.submit(ctx, func(data *models.LocalData) error {
		if err := s.repo.UpdateToken(deviceID, bearerToken); err != nil {
			return err
		}
		data.Identity.BearerToken = bearerToken
		renewed = data.Identity
		return nil
	})
	return renewed, err
}

func (s *Store) submit(ctx context.Context, fn func(*models.LocalData) error) error {
	req := request{apply: fn, reply: make(chan error, 1)}

	select {
	case s.requests <- req:
	case <-s.done:
		return ErrStoreClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	// Once accepted the write completes even if ctx ends meanwhile.
	return <-req.reply
}

// offer replaces whatever is buffered in ch with v.
func offer(ch chan models.LocalData, v models.LocalData) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
