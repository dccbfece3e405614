package identity

import (
	"fmt"
	"os"
	"strings"

	"fishcam/internal/config"
)

// PlatformID provides a stable identifier of the machine. Implementations must never
// invent a random one.
type PlatformID interface {
	PlatformID() (string, error)
}

// StaticID is an identifier fixed by configuration.
type StaticID string

func (s StaticID) PlatformID() (string, error) {
	id := strings.TrimSpace(string(s))
	if id == "" {
		return "", fmt.Errorf("%w: no device id configured", ErrIdentityUnavailable)
	}
	return id, nil
}

// MachineID reads the first non-empty identifier among Paths
// (e.g. /etc/machine-id or the DMI product uuid).
type MachineID struct {
	Paths []string
}

func (m MachineID) PlatformID() (string, error) {
	for _, path := range m.Paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if id := strings.ToLower(strings.TrimSpace(string(data))); id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: no machine id in %v", ErrIdentityUnavailable, m.Paths)
}

// PlatformFromConfig prefers the configured DEVICE_ID over the machine id files.
func PlatformFromConfig(cfg *config.Config) PlatformID {
	if cfg.DeviceID != "" {
		return StaticID(cfg.DeviceID)
	}
	return MachineID{Paths: cfg.MachineIDPaths}
}
