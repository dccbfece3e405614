package overlay

import (
	"context"
	"sync"
	"time"

	"fishcam/internal/logger"
	"fishcam/internal/models"
	"fishcam/internal/services/latest"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// DefaultPongWait is how long a viewer may stay silent before it is dropped.
	DefaultPongWait = 60 * time.Second

	writeWait = 10 * time.Second
)

// Conn is the write side of a viewer connection (*websocket.Conn satisfies it).
type Conn interface {
	WriteJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Message is sent to a viewer whenever its overlay changes.
type Message struct {
	Seq     uint64  `json:"seq"`
	Display Display `json:"display"`
	Empty   bool    `json:"empty"`
	Scene   Scene   `json:"scene"`
}

// Viewer is one connected drawing surface.
type Viewer struct {
	ID   string
	conn Conn

	mu      sync.Mutex
	display Display
	sentSeq uint64
	dirty   bool
}

// SetDisplay records a new surface size; the overlay is recomputed on the next tick.
func (v *Viewer) SetDisplay(d Display) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.display != d {
		v.display = d
		v.dirty = true
	}
}

// due reports whether the viewer needs a redraw for seq and marks it as served.
func (v *Viewer) due(seq uint64) (Display, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.display.Valid() {
		return v.display, false
	}
	if seq == v.sentSeq && !v.dirty {
		return v.display, false
	}
	v.sentSeq = seq
	v.dirty = false
	return v.display, true
}

// Hub pushes the latest result, transformed per viewer, on every render tick.
// All writes to viewer connections happen on the goroutine running Run.
type Hub struct {
	slot     *latest.Slot[*models.DetectionResult]
	interval time.Duration
	logger   *logger.Logger

	pongWait   time.Duration
	pingPeriod time.Duration

	mutex   sync.RWMutex
	viewers map[string]*Viewer
}

func NewHub(slot *latest.Slot[*models.DetectionResult], interval time.Duration, logger *logger.Logger) *Hub {
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	return &Hub{
		slot:     slot,
		interval:   interval,
		logger:     logger,
		pongWait:   DefaultPongWait,
		pingPeriod: pingPeriodFor(DefaultPongWait),
		viewers:    make(map[string]*Viewer),
	}
}

// SetPongWait changes the viewer silence limit. Pings go out at 9/10 of it.
// Call before Run.
func (h *Hub) SetPongWait(d time.Duration) {
	h.pongWait = d
	h.pingPeriod = pingPeriodFor(d)
}

// PongWait is the read deadline viewer connections should extend on every message or pong.
func (h *Hub) PongWait() time.Duration {
	return h.pongWait
}

func pingPeriodFor(pongWait time.Duration) time.Duration {
	return pongWait * 9 / 10
}

// Run renders and pings viewers until ctx is cancelled, then closes every viewer
// connection. Viewers that only reported their size once are kept alive by the pings.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	ping := time.NewTicker(h.pingPeriod)
	defer ping.Stop()
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.Render()
		case <-ping.C:
			h.Ping()
		}
	}
}

// Register adds a viewer for conn.
func (h *Hub) Register(conn Conn) *Viewer {
	v := &Viewer{ID: uuid.NewString(), conn: conn}

	h.mutex.Lock()
	h.viewers[v.ID] = v
	count := len(h.viewers)
	h.mutex.Unlock()

	h.logger.Info("Viewer %s connected. Total: %d", v.ID, count)
	return v
}

// Unregister removes the viewer and closes its connection.
func (h *Hub) Unregister(v *Viewer) {
	h.mutex.Lock()
	_, ok := h.viewers[v.ID]
	delete(h.viewers, v.ID)
	count := len(h.viewers)
	h.mutex.Unlock()

	if ok {
		v.conn.Close()
		h.logger.Info("Viewer %s disconnected. Total: %d", v.ID, count)
	}
}

// ViewerCount returns the number of connected viewers.
func (h *Hub) ViewerCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.viewers)
}

// Render sends the current overlay to every viewer that has not seen it yet at its
// current size.
func (h *Hub) Render() {
	result, seq, ok := h.slot.Load()
	if !ok {
		return
	}

	for _, v := range h.snapshot() {
		display, due := v.due(seq)
		if !due {
			continue
		}

		scene := Compose(result, display)
		msg := Message{Seq: seq, Display: display, Empty: scene.Empty(), Scene: scene}
		if err := v.conn.WriteJSON(msg); err != nil {
			h.logger.Error("Error sending overlay to %s: %v", v.ID, err)
			h.Unregister(v)
		}
	}
}

// Ping sends a websocket ping to every viewer and drops those that cannot be reached.
func (h *Hub) Ping() {
	deadline := time.Now().Add(writeWait)
	for _, v := range h.snapshot() {
		if err := v.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			h.logger.Warning("Ping to %s failed: %v", v.ID, err)
			h.Unregister(v)
		}
	}
}

func (h *Hub) snapshot() []*Viewer {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	viewers := make([]*Viewer, 0, len(h.viewers))
	for _, v := range h.viewers {
		viewers = append(viewers, v)
	}
	return viewers
}

func (h *Hub) closeAll() {
	for _, v := range h.snapshot() {
		h.Unregister(v)
	}
}
