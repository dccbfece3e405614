package repository

import "fishcam/internal/models"

// LocalDataRepository defines the interface for the device's persisted state.
type LocalDataRepository interface {
	// Read operations
	Load() (models.LocalData, error)
	Identity() (models.DeviceIdentity, bool, error)

	// Write operations
	InsertIdentity(identity models.DeviceIdentity) (models.DeviceIdentity, error)
	UpdateToken(deviceID, bearerToken string) error
	SaveRecognitions(boxes []models.Box) error
	SaveBitmapInfo(info models.BitmapInfo) error
}
