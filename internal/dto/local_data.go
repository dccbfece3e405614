package dto

import (
	"time"

	"fishcam/internal/models"
)

// DisplaySize is sent by a viewer whenever its drawing surface changes.
type DisplaySize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Identity is the public part of the device identity. The token itself is not exposed.
type Identity struct {
	DeviceID  string    `json:"device_id"`
	CreatedAt time.Time `json:"created_at"`
}

// StoredDetections is the persisted view of the last analysis.
type StoredDetections struct {
	Recognitions []models.Box      `json:"recognitions"`
	Bitmap       models.BitmapInfo `json:"bitmap"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// NewStoredDetections strips the identity from the persisted state.
func NewStoredDetections(data models.LocalData) StoredDetections {
	recognitions := data.Recognitions
	if recognitions == nil {
		recognitions = []models.Box{}
	}
	return StoredDetections{
		Recognitions: recognitions,
		Bitmap:       data.Bitmap,
		UpdatedAt:    data.UpdatedAt,
	}
}
