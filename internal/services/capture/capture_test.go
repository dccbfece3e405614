package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net"
	"sync"
	"testing"
	"time"

	"fishcam/internal/config"
	"fishcam/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectSink struct {
	mu     sync.Mutex
	frames []*Frame
	got    chan struct{}
}

func newCollectSink() *collectSink {
	return &collectSink{got: make(chan struct{}, 16)}
}

func (c *collectSink) Submit(f *Frame) {
	c.mu.Lock()
	c.frames = append(c.frames, f)
	c.mu.Unlock()
	select {
	case c.got <- struct{}{}:
	default:
	}
}

func (c *collectSink) snapshot() []*Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Frame(nil), c.frames...)
}

func TestFrame_ReleaseExactlyOnce(t *testing.T) {
	calls := 0
	f := NewFrame([]byte{1, 2, 3}, 4, 3, 90, func() { calls++ })

	assert.False(t, f.Released())
	assert.True(t, f.Release())
	assert.False(t, f.Release(), "second release must be a no-op")
	assert.True(t, f.Released())
	assert.Equal(t, 1, calls)

	var nilFrame *Frame
	assert.False(t, nilFrame.Release())
}

func TestAdapter_NumbersAndCountsFrames(t *testing.T) {
	sink := newCollectSink()
	a := NewAdapter(sink, 90, logger.NewNop())

	for i := 0; i < 3; i++ {
		require.NoError(t, a.Deliver("cam1", []byte{byte(i)}, 640, 480, nil))
	}

	frames := sink.snapshot()
	require.Len(t, frames, 3)
	for i, f := range frames {
		assert.Equal(t, uint64(i+1), f.Seq)
		assert.Equal(t, 90, f.Rotation)
		assert.Equal(t, "cam1", f.Camera)
	}

	assert.Equal(t, Stats{Delivered: 3, Released: 0, Outstanding: 3}, a.Stats())

	frames[0].Release()
	frames[1].Release()
	frames[1].Release()
	assert.Equal(t, Stats{Delivered: 3, Released: 2, Outstanding: 1}, a.Stats())
}

func TestAdapter_ClosedReleasesImmediately(t *testing.T) {
	sink := newCollectSink()
	a := NewAdapter(sink, 0, logger.NewNop())
	a.Close()
	a.Close()

	released := false
	err := a.Deliver("cam1", []byte{1}, 1, 1, func() { released = true })

	assert.ErrorIs(t, err, ErrSourceClosed)
	assert.True(t, released)
	assert.Empty(t, sink.snapshot())
	assert.True(t, a.Closed())
}

func TestReassembler(t *testing.T) {
	r := newReassembler(MaxFrameSize, MaxPendingFrames)

	_, done, err := r.add("cam", []byte{0xFF, 0xD8, 1, 2})
	require.NoError(t, err)
	assert.False(t, done)
	frame, done, err := r.add("cam", []byte{3, 0xFF, 0xD9})
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, []byte{0xFF, 0xD8, 1, 2, 3, 0xFF, 0xD9}, frame)
	assert.Equal(t, 0, r.partial(), "a finished frame holds no memory")

	// A new start marker discards a partial frame.
	r.add("cam", []byte{0xFF, 0xD8, 9})
	frame, done, err = r.add("cam", []byte{0xFF, 0xD8, 7, 0xFF, 0xD9})
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, []byte{0xFF, 0xD8, 7, 0xFF, 0xD9}, frame)
}

func TestReassembler_IgnoresDataOutsideFrame(t *testing.T) {
	r := newReassembler(MaxFrameSize, MaxPendingFrames)
	junk := bytes.Repeat([]byte{0x42}, 60000)

	for i := 0; i < 1000; i++ {
		_, done, err := r.add("cam", junk)
		require.NoError(t, err)
		require.False(t, done)
	}
	assert.Equal(t, 0, r.partial())
}

func TestReassembler_CapsFrameSize(t *testing.T) {
	r := newReassembler(1000, MaxPendingFrames)
	chunk := bytes.Repeat([]byte{0x42}, 400)

	_, _, err := r.add("cam", append([]byte{0xFF, 0xD8}, chunk...))
	require.NoError(t, err)
	_, _, err = r.add("cam", chunk)
	require.NoError(t, err)
	_, done, err := r.add("cam", chunk)
	assert.ErrorIs(t, err, errFrameTooLarge)
	assert.False(t, done)
	assert.Equal(t, 0, r.partial(), "an oversized frame is discarded")

	// The tail of the discarded frame is ignored; the next frame assembles normally.
	_, done, err = r.add("cam", []byte{1, 0xFF, 0xD9})
	require.NoError(t, err)
	assert.False(t, done)
	frame, done, err := r.add("cam", []byte{0xFF, 0xD8, 0xFF, 0xD9})
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xD9}, frame)
}

func TestReassembler_BoundsSenders(t *testing.T) {
	r := newReassembler(MaxFrameSize, 4)

	for i := 0; i < 100; i++ {
		_, _, err := r.add(fmt.Sprintf("unknown_10.0.0.%d", i), []byte{0xFF, 0xD8, 1})
		require.NoError(t, err)
		require.LessOrEqual(t, r.partial(), 4)
	}

	// A sender that keeps streaming still completes its frame.
	r.add("pond", []byte{0xFF, 0xD8, 5})
	frame, done, err := r.add("pond", []byte{0xFF, 0xD9})
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, []byte{0xFF, 0xD8, 5, 0xFF, 0xD9}, frame)
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestUDPSource_ReassemblesFrames(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	sink := newCollectSink()
	adapter := NewAdapter(sink, 90, logger.NewNop())
	src := NewUDPSource(0, map[string]string{"127.0.0.1": "pond"}, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.serve(ctx, conn, adapter) }()

	client, err := net.Dial("udp", conn.LocalAddr().String())
	require.NoError(t, err)
	defer client.Close()

	payload := encodeJPEG(t, 32, 24)
	half := len(payload) / 2
	_, err = client.Write(payload[:half])
	require.NoError(t, err)
	_, err = client.Write(payload[half:])
	require.NoError(t, err)

	select {
	case <-sink.got:
	case <-time.After(2 * time.Second):
		t.Fatal("frame was not delivered")
	}

	frames := sink.snapshot()
	require.Len(t, frames, 1)
	assert.Equal(t, "pond", frames[0].Camera)
	assert.Equal(t, 32, frames[0].Width)
	assert.Equal(t, 24, frames[0].Height)
	assert.Equal(t, payload, frames[0].Data)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("source did not stop on cancellation")
	}
}

func TestNewSource(t *testing.T) {
	tests := []struct {
		source string
		name   string
	}{
		{config.SourceDevice, "device-2"},
		{config.SourceUDP, "udp:9000"},
	}
	for _, tt := range tests {
		src := NewSource(&config.Config{CameraSource: tt.source, CameraDevice: 2, CamerasPort: 9000, CaptureFPS: 10}, logger.NewNop())
		require.NotNil(t, src, tt.source)
		assert.Equal(t, tt.name, src.Name())
	}

	assert.Nil(t, NewSource(&config.Config{CameraSource: config.SourceNone}, logger.NewNop()))
}
