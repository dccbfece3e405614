package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Empty result policies applied when no detection passes the confidence filter.
const (
	PolicyPublishEmpty = "publish-empty"
	PolicyKeepPrevious = "keep-previous"
)

// Camera source kinds.
const (
	SourceDevice = "device"
	SourceUDP    = "udp"
	SourceNone   = "none"
)

type Config struct {
	Port         int
	LogDirectory string
	LogLevel     string
	DatabasePath string

	ModelPath      string
	ConfigPath     string
	LabelsPath     string
	ModelInputSize int // Bok kwadratowego wejścia sieci (px)

	MinConfidence     float64
	EmptyResultPolicy string

	CameraSource   string
	CameraDevice   int
	CameraRotation int // Obrót klatki z sensora względem ekranu (0/90/180/270)
	CamerasPort    int
	CameraNames    map[string]string // IP kamery UDP -> nazwa
	CaptureFPS     int

	RenderIntervalMs int // Co ile ms viewer dostaje odświeżony overlay

	SigningKey     string
	DeviceID       string   // Nadpisuje identyfikator platformy
	MachineIDPaths []string // Pliki z trwałym identyfikatorem maszyny
}

// Load reads the optional .env file and then the process environment.
func Load() *Config {
	// Brak pliku .env nie jest błędem, zmienne środowiskowe mają pierwszeństwo
	_ = godotenv.Load(getEnv("ENV_FILE", ".env"))

	return &Config{
		Port:              getEnvAsInt("PORT", 8080),
		LogDirectory:      getEnv("LOG_DIR", filepath.Join(".", "logs")),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DatabasePath:      getEnv("DATABASE_PATH", filepath.Join(".", "data", "local_data.db")),
		ModelPath:         getEnv("MODEL_PATH", filepath.Join(".", "models", "fish_detector.pb")),
		ConfigPath:        getEnv("CONFIG_PATH", filepath.Join(".", "models", "fish_detector.pbtxt")),
		LabelsPath:        getEnv("LABELS_PATH", filepath.Join(".", "models", "labels.txt")),
		ModelInputSize:    getEnvAsInt("MODEL_INPUT_SIZE", 300),
		MinConfidence:     getEnvAsFloat("MIN_CONFIDENCE", 0.9),
		EmptyResultPolicy: getEnv("EMPTY_RESULT_POLICY", PolicyPublishEmpty),
		CameraSource:      getEnv("CAMERA_SOURCE", SourceDevice),
		CameraDevice:      getEnvAsInt("CAMERA_DEVICE", 0),
		CameraRotation:    getEnvAsInt("CAMERA_ROTATION", 90),
		CamerasPort:       getEnvAsInt("CAMERAS_PORT", 8081),
		CameraNames:       getEnvAsMap("CAMERA_NAMES"),
		CaptureFPS:        getEnvAsInt("CAPTURE_FPS", 15),
		RenderIntervalMs:  getEnvAsInt("RENDER_INTERVAL_MS", 33),
		SigningKey:        getEnv("JWT_SIGNING_KEY", ""),
		DeviceID:          getEnv("DEVICE_ID", ""),
		MachineIDPaths:    getEnvAsList("MACHINE_ID_PATHS", []string{"/etc/machine-id", "/var/lib/dbus/machine-id", "/sys/class/dmi/id/product_uuid"}),
	}
}

// Validate reports the first configuration problem that would prevent the pipeline from starting.
func (c *Config) Validate() error {
	if c.SigningKey == "" {
		return errors.New("JWT_SIGNING_KEY must be set")
	}
	if c.MinConfidence <= 0 || c.MinConfidence > 1 {
		return fmt.Errorf("MIN_CONFIDENCE must be within (0,1], got %v", c.MinConfidence)
	}
	switch c.EmptyResultPolicy {
	case PolicyPublishEmpty, PolicyKeepPrevious:
	default:
		return fmt.Errorf("unknown EMPTY_RESULT_POLICY %q", c.EmptyResultPolicy)
	}
	switch c.CameraRotation {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("CAMERA_ROTATION must be 0, 90, 180 or 270, got %d", c.CameraRotation)
	}
	switch c.CameraSource {
	case SourceDevice, SourceUDP, SourceNone:
	default:
		return fmt.Errorf("unknown CAMERA_SOURCE %q", c.CameraSource)
	}
	if c.RenderIntervalMs <= 0 {
		return fmt.Errorf("RENDER_INTERVAL_MS must be positive, got %d", c.RenderIntervalMs)
	}
	if c.CaptureFPS <= 0 {
		return fmt.Errorf("CAPTURE_FPS must be positive, got %d", c.CaptureFPS)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvAsMap parses "key=value,key=value"; malformed pairs are skipped.
func getEnvAsMap(key string) map[string]string {
	out := make(map[string]string)
	for _, pair := range getEnvAsList(key, nil) {
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}
