package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fishcam/internal/models"
)

// LocalDataRepository implements repository.LocalDataRepository for SQLite.
type LocalDataRepository struct {
	db  *DB
	now func() time.Time
}

// NewLocalDataRepository creates a new SQLite local data repository.
func NewLocalDataRepository(db *DB) *LocalDataRepository {
	return &LocalDataRepository{db: db, now: time.Now}
}

// Load reads the whole persisted state. A fresh database gives the zero value.
func (r *LocalDataRepository) Load() (models.LocalData, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var data models.LocalData

	identity, err := r.identity()
	if err != nil {
		return data, err
	}
	data.Identity = identity

	rows, err := r.db.Conn().Query(`
		SELECT box_left, box_top, box_right, box_bottom
		FROM last_recognitions
		ORDER BY position
	`)
	if err != nil {
		return data, fmt.Errorf("failed to query recognitions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var box models.Box
		if err := rows.Scan(&box.Left, &box.Top, &box.Right, &box.Bottom); err != nil {
			return data, fmt.Errorf("failed to scan recognition: %w", err)
		}
		data.Recognitions = append(data.Recognitions, box)
	}
	if err := rows.Err(); err != nil {
		return data, fmt.Errorf("failed to iterate recognitions: %w", err)
	}

	err = r.db.Conn().QueryRow(`SELECT width, height FROM bitmap_info WHERE id = 1`).
		Scan(&data.Bitmap.Width, &data.Bitmap.Height)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return data, fmt.Errorf("failed to query bitmap info: %w", err)
	}

	err = r.db.Conn().QueryRow(`SELECT updated_at FROM local_data_state WHERE id = 1`).Scan(&data.UpdatedAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return data, fmt.Errorf("failed to query update time: %w", err)
	}

	return data, nil
}

// Identity returns the stored device identity, if any.
func (r *LocalDataRepository) Identity() (models.DeviceIdentity, bool, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	identity, err := r.identity()
	if err != nil {
		return identity, false, err
	}
	return identity, identity.Valid(), nil
}

func (r *LocalDataRepository) identity() (models.DeviceIdentity, error) {
	var identity models.DeviceIdentity
	err := r.db.Conn().QueryRow(`
		SELECT device_id, bearer_token, created_at FROM device_identity WHERE id = 1
	`).Scan(&identity.DeviceID, &identity.BearerToken, &identity.CreatedAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return identity, fmt.Errorf("failed to query device identity: %w", err)
	}
	return identity, nil
}

// InsertIdentity stores the identity unless one already exists, and returns the
// identity that is stored afterwards.
func (r *LocalDataRepository) InsertIdentity(identity models.DeviceIdentity) (models.DeviceIdentity, error) {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return models.DeviceIdentity{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO device_identity (id, device_id, bearer_token, created_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, identity.DeviceID, identity.BearerToken, identity.CreatedAt.UTC()); err != nil {
		return models.DeviceIdentity{}, fmt.Errorf("failed to insert device identity: %w", err)
	}
	if err := touch(tx, r.now()); err != nil {
		return models.DeviceIdentity{}, err
	}

	var stored models.DeviceIdentity
	if err := tx.QueryRow(`
		SELECT device_id, bearer_token, created_at FROM device_identity WHERE id = 1
	`).Scan(&stored.DeviceID, &stored.BearerToken, &stored.CreatedAt); err != nil {
		return models.DeviceIdentity{}, fmt.Errorf("failed to read back device identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.DeviceIdentity{}, fmt.Errorf("failed to commit device identity: %w", err)
	}
	return stored, nil
}

// UpdateToken replaces the bearer token of the stored identity. The device id is
// never changed; a mismatching id is an error.
func (r *LocalDataRepository) UpdateToken(deviceID, bearerToken string) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE device_identity SET bearer_token = ? WHERE id = 1 AND device_id = ?
	`, bearerToken, deviceID)
	if err != nil {
		return fmt.Errorf("failed to update bearer token: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to update bearer token: %w", err)
	} else if n == 0 {
		return fmt.Errorf("no stored identity for device %q", deviceID)
	}
	if err := touch(tx, r.now()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bearer token: %w", err)
	}
	return nil
}

// SaveRecognitions replaces the stored boxes, keeping their order.
func (r *LocalDataRepository) SaveRecognitions(boxes []models.Box) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM last_recognitions`); err != nil {
		return fmt.Errorf("failed to clear recognitions: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO last_recognitions (position, box_left, box_top, box_right, box_bottom)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, box := range boxes {
		if _, err := stmt.Exec(i, box.Left, box.Top, box.Right, box.Bottom); err != nil {
			return fmt.Errorf("failed to insert recognition: %w", err)
		}
	}

	if err := touch(tx, r.now()); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveBitmapInfo stores the size of the last analyzed frame.
func (r *LocalDataRepository) SaveBitmapInfo(info models.BitmapInfo) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO bitmap_info (id, width, height) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET width = excluded.width, height = excluded.height
	`, info.Width, info.Height); err != nil {
		return fmt.Errorf("failed to save bitmap info: %w", err)
	}

	if err := touch(tx, r.now()); err != nil {
		return err
	}
	return tx.Commit()
}

func touch(tx *sql.Tx, at time.Time) error {
	if _, err := tx.Exec(`
		INSERT INTO local_data_state (id, updated_at) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at
	`, at.UTC()); err != nil {
		return fmt.Errorf("failed to update state timestamp: %w", err)
	}
	return nil
}
