package ai

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"fishcam/internal/config"
	"fishcam/internal/logger"
	"fishcam/internal/services/capture"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.txt")
	content := "# fish classes\nrohu\n\ncatla\n  mrigal  \n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	labels, err := LoadLabels(path)
	require.NoError(t, err)

	assert.Equal(t, map[int]string{1: "rohu", 2: "catla", 3: "mrigal"}, labels)
}

func TestLoadLabels_MissingFile(t *testing.T) {
	labels, err := LoadLabels(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
	assert.NotNil(t, labels)
}

func TestNetDetector_MissingModel(t *testing.T) {
	dir := t.TempDir()
	d := NewNetDetector(&config.Config{
		ModelPath:  filepath.Join(dir, "missing.pb"),
		ConfigPath: filepath.Join(dir, "missing.pbtxt"),
		LabelsPath: filepath.Join(dir, "labels.txt"),
	}, logger.NewNop())
	defer d.Close()

	frame := capture.NewFrame([]byte{0xFF, 0xD8}, 1, 1, 0, nil)
	_, err := d.Detect(context.Background(), frame)

	assert.ErrorIs(t, err, ErrNetworkNotLoaded)
	assert.Equal(t, "class_7", d.label(7))
}

func TestClamp01(t *testing.T) {
	tests := []struct {
		in   float32
		want float64
	}{
		{-0.2, 0},
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{1.3, 1},
	}
	for _, tt := range tests {
		if got := clamp01(tt.in); got != tt.want {
			t.Errorf("clamp01(%v) = %v, expected %v", tt.in, got, tt.want)
		}
	}
}
