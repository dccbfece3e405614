package models

import "time"

// DeviceIdentity is the persistent per-install identity.
type DeviceIdentity struct {
	DeviceID    string    `json:"device_id"`
	BearerToken string    `json:"bearer_token"`
	CreatedAt   time.Time `json:"created_at"`
}

// Valid reports whether both the identifier and the token are present.
func (d DeviceIdentity) Valid() bool {
	return d.DeviceID != "" && d.BearerToken != ""
}

// BitmapInfo holds the size of the last analyzed frame.
type BitmapInfo struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// LocalData is the whole persisted state of the device.
type LocalData struct {
	Identity     DeviceIdentity `json:"identity"`
	Recognitions []Box          `json:"recognitions"`
	Bitmap       BitmapInfo     `json:"bitmap"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (d LocalData) Clone() LocalData {
	out := d
	if d.Recognitions != nil {
		out.Recognitions = append([]Box(nil), d.Recognitions...)
	}
	return out
}
