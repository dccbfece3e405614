package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"fishcam/internal/dto"
	"fishcam/internal/logger"
	"fishcam/internal/models"
	"fishcam/internal/services"
	"fishcam/internal/services/identity"
	"fishcam/internal/services/overlay"
)

// ResultReader exposes the latest published result.
type ResultReader interface {
	Latest() (*models.DetectionResult, bool)
}

// LocalDataReader exposes the persisted state.
type LocalDataReader interface {
	Load() models.LocalData
}

// IdentityProvider returns the device identity, creating it on first use.
type IdentityProvider interface {
	DeviceIdentity(ctx context.Context) (models.DeviceIdentity, error)
}

// LatestDetectionHandler returns the reporting detection of the latest result.
func LatestDetectionHandler(results ResultReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, ok := results.Latest()
		if !ok {
			http.Error(w, "No detection result yet", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, dto.NewDetectionResult(result))
	}
}

// OverlayImageHandler renders the latest overlay as a transparent PNG for
// ?width=&height=. Before the first result the image is empty.
func OverlayImageHandler(results ResultReader, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		width, errW := strconv.ParseFloat(r.URL.Query().Get("width"), 64)
		height, errH := strconv.ParseFloat(r.URL.Query().Get("height"), 64)
		if errW != nil || errH != nil {
			http.Error(w, "width and height are required", http.StatusBadRequest)
			return
		}

		result, _ := results.Latest()
		data, err := overlay.RenderPNG(result, overlay.Display{Width: width, Height: height})
		if errors.Is(err, overlay.ErrInvalidDisplay) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			logger.Error("Failed to render overlay: %v", err)
			http.Error(w, "Failed to render overlay", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.Write(data)
	}
}

// StoredDetectionsHandler returns the last persisted boxes and frame size.
func StoredDetectionsHandler(store LocalDataReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, dto.NewStoredDetections(store.Load()))
	}
}

// IdentityHandler returns the public part of the device identity.
func IdentityHandler(provider IdentityProvider, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := provider.DeviceIdentity(r.Context())
		if err != nil {
			logger.Error("Failed to get device identity: %v", err)
			status := http.StatusInternalServerError
			if errors.Is(err, identity.ErrIdentityUnavailable) {
				status = http.StatusServiceUnavailable
			}
			http.Error(w, "Device identity unavailable", status)
			return
		}
		writeJSON(w, http.StatusOK, dto.Identity{DeviceID: id.DeviceID, CreatedAt: id.CreatedAt})
	}
}

// StatsHandler returns the pipeline counters.
func StatsHandler(stats func() services.Stats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, stats())
	}
}

// HealthHandler reports that the server is up.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
