package capture

import (
	"sync/atomic"
	"time"
)

// Frame is one camera image handed to the analyzer.
//
// The pixel buffer belongs to the source that produced it. Whoever receives a Frame
// must call Release exactly once, after which Data must not be touched: the source
// may reuse or free the buffer.
type Frame struct {
	// Data holds the encoded image (JPEG).
	Data []byte

	Width    int
	Height   int
	Rotation int // degrees, one of 0/90/180/270

	// Seq is assigned by the Adapter and increases monotonically.
	Seq       uint64
	Timestamp time.Time
	Camera    string

	release  func()
	released atomic.Bool
}

// NewFrame wraps a buffer; release is run once when the frame is released.
func NewFrame(data []byte, width, height, rotation int, release func()) *Frame {
	return &Frame{
		Data:      data,
		Width:     width,
		Height:    height,
		Rotation:  rotation,
		Timestamp: time.Now(),
		release:   release,
	}
}

// Release returns the buffer to its owner. Only the first call has an effect;
// later calls return false.
func (f *Frame) Release() bool {
	if f == nil || !f.released.CompareAndSwap(false, true) {
		return false
	}
	if f.release != nil {
		f.release()
	}
	return true
}

// Released reports whether Release has already been called.
func (f *Frame) Released() bool {
	return f.released.Load()
}
