package ai

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"strings"
	"sync"

	"fishcam/internal/config"
	"fishcam/internal/logger"
	"fishcam/internal/models"
	"fishcam/internal/services/capture"

	"gocv.io/x/gocv"
)

// candidateThreshold discards the background noise of the SSD head. The real
// reporting threshold is applied by the analyzer.
const candidateThreshold = 0.1

// ErrNetworkNotLoaded is returned when the model files could not be loaded.
var ErrNetworkNotLoaded = errors.New("detection network not initialized")

// NetDetector runs an SSD-style OpenCV DNN model on encoded frames.
type NetDetector struct {
	mu         sync.Mutex // gocv.Net nie jest bezpieczny wątkowo
	net        gocv.Net
	loaded     bool
	inputSize  int
	labels     map[int]string
	modelPath  string
	configPath string
	logger     *logger.Logger
}

// NewNetDetector loads the network. A missing model is logged and every Detect call
// then fails with ErrNetworkNotLoaded, so the pipeline keeps running.
func NewNetDetector(cfg *config.Config, logger *logger.Logger) *NetDetector {
	d := &NetDetector{
		inputSize:  cfg.ModelInputSize,
		modelPath:  cfg.ModelPath,
		configPath: cfg.ConfigPath,
		logger:     logger,
	}
	if d.inputSize <= 0 {
		d.inputSize = 300
	}

	labels, err := LoadLabels(cfg.LabelsPath)
	if err != nil {
		logger.Warning("Could not load labels, using class ids: %v", err)
	}
	d.labels = labels

	if err := d.initializeNet(); err != nil {
		logger.Warning("Could not initialize detection network: %v", err)
	}
	return d
}

// initializeNet loads the network from the model and config files.
func (d *NetDetector) initializeNet() error {
	if _, err := os.Stat(d.modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", d.modelPath)
	}

	if _, err := os.Stat(d.configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", d.configPath)
	}

	net := gocv.ReadNet(d.modelPath, d.configPath)
	if net.Empty() {
		return fmt.Errorf("failed to load network")
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target")
	}

	d.net = net
	d.loaded = true
	d.logger.Info("Detection network initialized successfully")
	return nil
}

// Detect decodes the frame and returns the detections in frame pixel coordinates,
// in the order produced by the network.
func (d *NetDetector) Detect(ctx context.Context, frame *capture.Frame) ([]models.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.loaded {
		return nil, ErrNetworkNotLoaded
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame %d: %w", frame.Seq, err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("decoded frame %d is empty", frame.Seq)
	}

	blob := gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(d.inputSize, d.inputSize), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	rows := output.Total() / 7
	reshaped := output.Reshape(1, rows)
	defer reshaped.Close()

	cols, imgRows := float64(mat.Cols()), float64(mat.Rows())
	var results []models.Detection
	for i := 0; i < reshaped.Rows(); i++ {
		confidence := float64(reshaped.GetFloatAt(i, 2))
		if confidence < candidateThreshold {
			continue
		}
		classID := int(reshaped.GetFloatAt(i, 1))

		results = append(results, models.Detection{
			Label:      d.label(classID),
			Confidence: confidence,
			Box: models.Box{
				Left:   clamp01(reshaped.GetFloatAt(i, 3)) * cols,
				Top:    clamp01(reshaped.GetFloatAt(i, 4)) * imgRows,
				Right:  clamp01(reshaped.GetFloatAt(i, 5)) * cols,
				Bottom: clamp01(reshaped.GetFloatAt(i, 6)) * imgRows,
			},
		})
	}

	return results, nil
}

// Close frees the network.
func (d *NetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		d.loaded = false
		return d.net.Close()
	}
	return nil
}

func (d *NetDetector) label(classID int) string {
	if label, ok := d.labels[classID]; ok {
		return label
	}
	return fmt.Sprintf("class_%d", classID)
}

func clamp01(v float32) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return float64(v)
}

// LoadLabels reads one label per line; line N (1-based) is class id N, which is how
// SSD heads number classes (0 is background).
func LoadLabels(path string) (map[int]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return map[int]string{}, err
	}
	defer file.Close()

	labels := make(map[int]string)
	scanner := bufio.NewScanner(file)
	id := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id++
		labels[id] = line
	}
	if err := scanner.Err(); err != nil {
		return labels, fmt.Errorf("failed to read labels %s: %w", path, err)
	}
	return labels, nil
}
