package localdata

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"fishcam/internal/logger"
	"fishcam/internal/models"
	"fishcam/internal/repository/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	mu       sync.Mutex
	data     models.LocalData
	writes   int
	failNext error
}

func (m *memoryRepo) Load() (models.LocalData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.Clone(), nil
}

func (m *memoryRepo) Identity() (models.DeviceIdentity, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.Identity, m.data.Identity.Valid(), nil
}

func (m *memoryRepo) InsertIdentity(identity models.DeviceIdentity) (models.DeviceIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return models.DeviceIdentity{}, err
	}
	if !m.data.Identity.Valid() {
		m.data.Identity = identity
		m.writes++
	}
	return m.data.Identity, nil
}

func (m *memoryRepo) UpdateToken(deviceID, bearerToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	if m.data.Identity.DeviceID != deviceID {
		return errors.New("no stored identity for device")
	}
	m.data.Identity.BearerToken = bearerToken
	m.writes++
	return nil
}

func (m *memoryRepo) SaveRecognitions(boxes []models.Box) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	m.data.Recognitions = append([]models.Box(nil), boxes...)
	m.writes++
	return nil
}

func (m *memoryRepo) SaveBitmapInfo(info models.BitmapInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	m.data.Bitmap = info
	m.writes++
	return nil
}

func (m *memoryRepo) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func runStore(t *testing.T, repo *memoryRepo) (*Store, context.CancelFunc) {
	t.Helper()
	store, err := NewStore(repo, logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, store.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return store, cancel
}

func TestStore_WritesThroughAndUpdatesMemory(t *testing.T) {
	repo := &memoryRepo{}
	store, _ := runStore(t, repo)
	ctx := context.Background()

	boxes := []models.Box{{Left: 1, Top: 2, Right: 3, Bottom: 4}}
	require.NoError(t, store.SetRecognitions(ctx, boxes))
	require.NoError(t, store.SetBitmapSize(ctx, 640, 480))

	boxes[0].Left = 99 // caller's slice is not retained

	data := store.Load()
	assert.Equal(t, []models.Box{{Left: 1, Top: 2, Right: 3, Bottom: 4}}, data.Recognitions)
	assert.Equal(t, models.BitmapInfo{Width: 640, Height: 480}, data.Bitmap)

	persisted, _ := repo.Load()
	assert.Equal(t, data.Recognitions, persisted.Recognitions)
	assert.Equal(t, data.Bitmap, persisted.Bitmap)
}

func TestStore_FailedWriteLeavesStateUnchanged(t *testing.T) {
	repo := &memoryRepo{}
	store, _ := runStore(t, repo)
	ctx := context.Background()

	require.NoError(t, store.SetBitmapSize(ctx, 1, 1))

	repo.mu.Lock()
	repo.failNext = errors.New("disk full")
	repo.mu.Unlock()

	err := store.SetBitmapSize(ctx, 2, 2)
	assert.EqualError(t, err, "disk full")
	assert.Equal(t, models.BitmapInfo{Width: 1, Height: 1}, store.Load().Bitmap)
}

func TestStore_SetIdentityKeepsFirst(t *testing.T) {
	store, _ := runStore(t, &memoryRepo{})
	ctx := context.Background()

	first, err := store.SetIdentity(ctx, models.DeviceIdentity{DeviceID: "a", BearerToken: "Bearer a"})
	require.NoError(t, err)
	second, err := store.SetIdentity(ctx, models.DeviceIdentity{DeviceID: "b", BearerToken: "Bearer b"})
	require.NoError(t, err)

	assert.Equal(t, "a", first.DeviceID)
	assert.Equal(t, "a", second.DeviceID)
	assert.Equal(t, "a", store.Load().Identity.DeviceID)
}

func TestStore_RenewTokenKeepsDeviceID(t *testing.T) {
	store, _ := runStore(t, &memoryRepo{})
	ctx := context.Background()

	_, err := store.RenewToken(ctx, "a", "Bearer new")
	assert.Error(t, err, "nothing to renew yet")

	_, err = store.SetIdentity(ctx, models.DeviceIdentity{DeviceID: "a", BearerToken: "Bearer old"})
	require.NoError(t, err)

	renewed, err := store.RenewToken(ctx, "a", "Bearer new")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceIdentity{DeviceID: "a", BearerToken: "Bearer new"}, renewed)
	assert.Equal(t, renewed, store.Load().Identity)
}

func TestStore_WatchEmitsCurrentThenUpdates(t *testing.T) {
	repo := &memoryRepo{data: models.LocalData{Bitmap: models.BitmapInfo{Width: 5, Height: 5}}}
	store, _ := runStore(t, repo)

	ctx, cancel := context.WithCancel(context.Background())
	updates := store.Watch(ctx)

	first := <-updates
	assert.Equal(t, 5, first.Bitmap.Width, "watch starts with the persisted value")

	require.NoError(t, store.SetBitmapSize(context.Background(), 6, 6))
	require.NoError(t, store.SetBitmapSize(context.Background(), 7, 7))

	// Unread updates coalesce into the newest one.
	select {
	case data := <-updates:
		assert.Equal(t, 7, data.Bitmap.Width)
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-updates:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond, "channel closed after ctx ends")
}

func TestStore_ClosedAfterRunReturns(t *testing.T) {
	store, cancel := runStore(t, &memoryRepo{})
	updates := store.Watch(context.Background())
	<-updates

	cancel()

	_, ok := <-updates
	assert.False(t, ok, "watchers are closed on shutdown")

	require.Eventually(t, func() bool {
		return errors.Is(store.SetBitmapSize(context.Background(), 1, 1), ErrStoreClosed)
	}, time.Second, 5*time.Millisecond)

	_, ok = <-store.Watch(context.Background())
	assert.False(t, ok)
}

func TestStore_WriteHonoursContextWhenNotRunning(t *testing.T) {
	store, err := NewStore(&memoryRepo{}, logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, store.SetBitmapSize(ctx, 1, 1), context.DeadlineExceeded)
}

func TestStore_SQLiteRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "local.db")
	db, err := sqlite.New(dbPath)
	require.NoError(t, err)

	store, err := NewStore(sqlite.NewLocalDataRepository(db), logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		store.Run(ctx)
	}()

	boxes := []models.Box{{Left: 100, Top: 50, Right: 300, Bottom: 200}, {Left: 1, Top: 1, Right: 2, Bottom: 2}}
	require.NoError(t, store.SetRecognitions(ctx, boxes))
	require.NoError(t, store.SetBitmapSize(ctx, 640, 480))
	_, err = store.SetIdentity(ctx, models.DeviceIdentity{DeviceID: "pond-1", BearerToken: "Bearer x", CreatedAt: time.Now()})
	require.NoError(t, err)

	cancel()
	<-done
	require.NoError(t, db.Close())

	// Reopen: the state survives a restart.
	db, err = sqlite.New(dbPath)
	require.NoError(t, err)
	defer db.Close()

	reloaded, err := NewStore(sqlite.NewLocalDataRepository(db), logger.NewNop())
	require.NoError(t, err)

	data := reloaded.Load()
	assert.Equal(t, boxes, data.Recognitions)
	assert.Equal(t, models.BitmapInfo{Width: 640, Height: 480}, data.Bitmap)
	assert.Equal(t, "pond-1", data.Identity.DeviceID)
	assert.False(t, data.UpdatedAt.IsZero())
}
