package capture

import (
	"fishcam/internal/config"
	"fishcam/internal/logger"
)

// NewSource builds the configured frame source. CAMERA_SOURCE=none gives nil.
func NewSource(cfg *config.Config, logger *logger.Logger) Source {
	switch cfg.CameraSource {
	case config.SourceDevice:
		return NewDeviceSource(cfg.CameraDevice, cfg.CaptureFPS, logger)
	case config.SourceUDP:
		return NewUDPSource(cfg.CamerasPort, cfg.CameraNames, logger)
	}
	return nil
}
