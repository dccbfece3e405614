package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"net"
	"strings"

	"fishcam/internal/logger"
)

var (
	jpegHeader = []byte{0xFF, 0xD8}
	jpegFooter = []byte{0xFF, 0xD9}
)

const (
	maxDatagram = 65507

	// MaxFrameSize caps a reassembled JPEG; larger frames are discarded.
	MaxFrameSize = 8 << 20
	// MaxPendingFrames caps the senders with a partial frame in memory.
	MaxPendingFrames = 16
)

// UDPSource listens for UDP packets from network cameras and reconstructs JPEG frames
// delimited by the SOI/EOI markers.
type UDPSource struct {
	addr   string
	names  map[string]string // ip -> camera name
	logger *logger.Logger
}

func NewUDPSource(port int, names map[string]string, logger *logger.Logger) *UDPSource {
	return &UDPSource{
		addr:   fmt.Sprintf(":%d", port),
		names:  names,
		logger: logger,
	}
}

func (s *UDPSource) Name() string {
	return "udp" + s.addr
}

func (s *UDPSource) Run(ctx context.Context, adapter *Adapter) error {
	addr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP %s: %w", s.addr, err)
	}
	return s.serve(ctx, conn, adapter)
}

func (s *UDPSource) serve(ctx context.Context, conn net.PacketConn, adapter *Adapter) error {
	// Zamknięcie gniazda odblokowuje ReadFrom
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	s.logger.Info("UDP camera source listening on %s", conn.LocalAddr())

	buffer := make([]byte, maxDatagram)
	frames := newReassembler(MaxFrameSize, MaxPendingFrames)

	for {
		n, remoteAddr, err := conn.ReadFrom(buffer)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("Error reading UDP packet: %v", err)
			continue
		}

		camera := s.cameraName(remoteAddr)
		frame, complete, err := frames.add(camera, buffer[:n])
		if err != nil {
			s.logger.Warning("Dropping frame from %s: %v", camera, err)
			continue
		}
		if !complete {
			continue
		}

		cfg, _, err := image.DecodeConfig(bytes.NewReader(frame))
		if err != nil {
			s.logger.Warning("Dropping malformed frame from %s: %v", camera, err)
			continue
		}

		if err := adapter.Deliver(camera, frame, cfg.Width, cfg.Height, nil); errors.Is(err, ErrSourceClosed) {
			return nil
		}
	}
}

func (s *UDPSource) cameraName(addr net.Addr) string {
	ip := addr.String()
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	if name, ok := s.names[ip]; ok {
		return name
	}
	return "unknown_" + strings.ReplaceAll(ip, ":", "_")
}

var errFrameTooLarge = errors.New("frame exceeds maximum size")

// reassembler joins datagrams into JPEG frames per sender. Only senders in the middle
// of a frame hold memory, at most maxPending of them with maxFrame bytes each.
type reassembler struct {
	maxFrame   int
	maxPending int
	pending    map[string]*bytes.Buffer
}

func newReassembler(maxFrame, maxPending int) *reassembler {
	return &reassembler{
		maxFrame:   maxFrame,
		maxPending: maxPending,
		pending:    make(map[string]*bytes.Buffer),
	}
}

// add appends a datagram to the camera's partial frame and returns the frame once the
// JPEG end marker arrives. Datagrams outside a started frame are ignored.
func (r *reassembler) add(camera string, data []byte) ([]byte, bool, error) {
	buf, ok := r.pending[camera]
	if bytes.HasPrefix(data, jpegHeader) {
		if !ok {
			if len(r.pending) >= r.maxPending {
				r.evictOne()
			}
			buf = new(bytes.Buffer)
			r.pending[camera] = buf
		}
		// Nowy znacznik SOI porzuca niedokończoną klatkę
		buf.Reset()
	} else if !ok {
		return nil, false, nil
	}

	if buf.Len()+len(data) > r.maxFrame {
		delete(r.pending, camera)
		return nil, false, errFrameTooLarge
	}
	buf.Write(data)

	if !bytes.HasSuffix(data, jpegFooter) {
		return nil, false, nil
	}
	delete(r.pending, camera)
	return buf.Bytes(), true, nil
}

// partial returns the number of senders with a partial frame.
func (r *reassembler) partial() int {
	return len(r.pending)
}

func (r *reassembler) evictOne() {
	for camera := range r.pending {
		delete(r.pending, camera)
		return
	}
}
