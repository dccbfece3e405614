package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fishcam/internal/logger"

	"gocv.io/x/gocv"
)

// DeviceSource reads frames from a local camera through OpenCV.
type DeviceSource struct {
	device int
	fps    int
	logger *logger.Logger
}

func NewDeviceSource(device, fps int, logger *logger.Logger) *DeviceSource {
	if fps <= 0 {
		fps = 15
	}
	return &DeviceSource{device: device, fps: fps, logger: logger}
}

func (s *DeviceSource) Name() string {
	return fmt.Sprintf("device-%d", s.device)
}

// Run grabs frames at the configured rate. Each frame is JPEG-encoded into a native
// buffer that is freed when the analyzer releases the frame.
func (s *DeviceSource) Run(ctx context.Context, adapter *Adapter) error {
	webcam, err := gocv.OpenVideoCapture(s.device)
	if err != nil {
		return fmt.Errorf("failed to open camera %d: %w", s.device, err)
	}
	defer webcam.Close()

	mat := gocv.NewMat()
	defer mat.Close()

	ticker := time.NewTicker(time.Second / time.Duration(s.fps))
	defer ticker.Stop()

	s.logger.Info("📷 Camera %d opened, capturing at %d fps", s.device, s.fps)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if ok := webcam.Read(&mat); !ok {
			return fmt.Errorf("camera %d stopped delivering frames", s.device)
		}
		if mat.Empty() {
			continue
		}

		buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
		if err != nil {
			s.logger.Warning("Failed to encode frame from camera %d: %v", s.device, err)
			continue
		}

		err = adapter.Deliver(s.Name(), buf.GetBytes(), mat.Cols(), mat.Rows(), buf.Close)
		if errors.Is(err, ErrSourceClosed) {
			return nil
		}
	}
}
