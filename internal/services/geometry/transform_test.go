package geometry

import (
	"testing"

	"fishcam/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestToDisplaySpace_PortraitPhone(t *testing.T) {
	box := models.Box{Left: 100, Top: 50, Right: 300, Bottom: 200}

	got := ToDisplaySpace(box, 640, 480, 1080, 2400)

	// scaleX = 1080/480 = 2.25, scaleY = 2400/640 = 3.75
	want := models.DisplayBox{Left: 225, Top: 187.5, Right: 675, Bottom: 750}
	assert.Equal(t, want, got)
}

func TestToDisplaySpace_Deterministic(t *testing.T) {
	box := models.Box{Left: 12.5, Top: 7, Right: 99.25, Bottom: 64}

	first := ToDisplaySpace(box, 320, 240, 720, 1280)
	second := ToDisplaySpace(box, 320, 240, 720, 1280)

	assert.Equal(t, first, second)
}

func TestToDisplaySpace_LinearInDisplaySize(t *testing.T) {
	box := models.Box{Left: 10, Top: 20, Right: 110, Bottom: 220}
	base := ToDisplaySpace(box, 640, 480, 540, 1200)

	for _, k := range []float64{0.5, 1, 2, 3} {
		scaled := ToDisplaySpace(box, 640, 480, 540*k, 1200*k)
		assert.InDelta(t, base.Left*k, scaled.Left, 1e-9, "k=%v", k)
		assert.InDelta(t, base.Top*k, scaled.Top, 1e-9, "k=%v", k)
		assert.InDelta(t, base.Right*k, scaled.Right, 1e-9, "k=%v", k)
		assert.InDelta(t, base.Bottom*k, scaled.Bottom, 1e-9, "k=%v", k)
	}
}

func TestToDisplaySpace_Degenerate(t *testing.T) {
	box := models.Box{Left: 1, Top: 2, Right: 3, Bottom: 4}

	tests := []struct {
		name     string
		modelW   int
		modelH   int
		displayW float64
		displayH float64
	}{
		{"no frame analyzed yet", 0, 0, 1080, 2400},
		{"zero model width", 0, 480, 1080, 2400},
		{"zero model height", 640, 0, 1080, 2400},
		{"zero display", 640, 480, 0, 0},
		{"negative display", 640, 480, -1, 2400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToDisplaySpace(box, tt.modelW, tt.modelH, tt.displayW, tt.displayH)
			assert.Equal(t, models.DisplayBox{}, got)
			assert.True(t, got.IsEmpty())
		})
	}
}

func TestForRotation(t *testing.T) {
	box := models.Box{Left: 100, Top: 50, Right: 300, Bottom: 200}

	for _, rotation := range []int{90, 270, -90} {
		assert.Equal(t, ToDisplaySpace(box, 640, 480, 1080, 2400),
			ForRotation(box, 640, 480, rotation, 1080, 2400), "rotation %d", rotation)
	}

	upright := ForRotation(box, 640, 480, 0, 1280, 960)
	assert.Equal(t, models.DisplayBox{Left: 200, Top: 100, Right: 600, Bottom: 400}, upright)

	assert.Equal(t, models.DisplayBox{}, ForRotation(box, 0, 480, 180, 1280, 960))
}
