// Package identity issues and checks the device's bearer token.
//
// The identity is created lazily on first use from the platform identifier, signed
// with the configured key and persisted; afterwards it is read back and never
// recreated.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fishcam/internal/logger"
	"fishcam/internal/models"
)

// ErrIdentityUnavailable is returned when the identity can neither be read nor created.
var ErrIdentityUnavailable = errors.New("device identity unavailable")

// Store persists the identity. SetIdentity keeps an already stored identity and
// returns it.
type Store interface {
	Load() models.LocalData
	SetIdentity(ctx context.Context, identity models.DeviceIdentity) (models.DeviceIdentity, error)
	RenewToken(ctx context.Context, deviceID, bearerToken string) (models.DeviceIdentity, error)
}

type Gateway struct {
	store    Store
	platform PlatformID
	signer   *Signer
	logger   *logger.Logger
	now      func() time.Time

	sem    chan struct{}
	cached *models.DeviceIdentity
}

func NewGateway(store Store, platform PlatformID, signer *Signer, logger *logger.Logger) *Gateway {
	return &Gateway{
		store:    store,
		platform: platform,
		signer:   signer,
		logger:   logger,
		now:      time.Now,
		sem:      make(chan struct{}, 1),
	}
}

// DeviceIdentity returns the persisted identity, creating it on first use.
// Concurrent first calls create it once.
func (g *Gateway) DeviceIdentity(ctx context.Context) (models.DeviceIdentity, error) {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return models.DeviceIdentity{}, ctx.Err()
	}
	defer func() { <-g.sem }()

	if g.cached != nil {
		return *g.cached, nil
	}

	if stored := g.store.Load().Identity; stored.Valid() {
		if err := g.check(stored); err != nil {
			g.logger.Warning("Stored token for %s does not verify with the current key: %v", stored.DeviceID, err)
			renewed, err := g.renew(ctx, stored)
			if err != nil {
				return models.DeviceIdentity{}, err
			}
			stored = renewed
		}
		g.cached = &stored
		return stored, nil
	}

	created, err := g.create(ctx)
	if err != nil {
		return models.DeviceIdentity{}, err
	}
	g.cached = &created
	g.logger.Info("🔑 Device identity created for %s", created.DeviceID)
	return created, nil
}

func (g *Gateway) create(ctx context.Context) (models.DeviceIdentity, error) {
	deviceID, err := g.platform.PlatformID()
	if err != nil {
		if errors.Is(err, ErrIdentityUnavailable) {
			return models.DeviceIdentity{}, err
		}
		return models.DeviceIdentity{}, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}

	token, err := g.signer.Sign(deviceID)
	if err != nil {
		return models.DeviceIdentity{}, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}

	stored, err := g.store.SetIdentity(ctx, models.DeviceIdentity{
		DeviceID:    deviceID,
		BearerToken: BearerToken(token),
		CreatedAt:   g.now(),
	})
	if err != nil {
		return models.DeviceIdentity{}, fmt.Errorf("%w: failed to persist identity: %v", ErrIdentityUnavailable, err)
	}
	return stored, nil
}

// renew re-signs the token of an existing identity. The device id never changes.
func (g *Gateway) renew(ctx context.Context, stored models.DeviceIdentity) (models.DeviceIdentity, error) {
	token, err := g.signer.Sign(stored.DeviceID)
	if err != nil {
		return models.DeviceIdentity{}, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}

	renewed, err := g.store.RenewToken(ctx, stored.DeviceID, BearerToken(token))
	if err != nil {
		return models.DeviceIdentity{}, fmt.Errorf("%w: failed to persist renewed token: %v", ErrIdentityUnavailable, err)
	}
	g.logger.Info("🔑 Bearer token renewed for %s", stored.DeviceID)
	return renewed, nil
}

func (g *Gateway) check(identity models.DeviceIdentity) error {
	token, err := ParseBearer(identity.BearerToken)
	if err != nil {
		return err
	}
	deviceID, err := g.signer.Verify(token)
	if err != nil {
		return err
	}
	if deviceID != identity.DeviceID {
		return fmt.Errorf("%w: token issued for %q", ErrInvalidToken, deviceID)
	}
	return nil
}

// Authorize checks an Authorization header value: the token must be signed with the
// device key and carry this device's id.
func (g *Gateway) Authorize(ctx context.Context, header string) error {
	token, err := ParseBearer(header)
	if err != nil {
		return err
	}
	deviceID, err := g.signer.Verify(token)
	if err != nil {
		return err
	}

	identity, err := g.DeviceIdentity(ctx)
	if err != nil {
		return err
	}
	if deviceID != identity.DeviceID {
		return fmt.Errorf("%w: token issued for another device", ErrInvalidToken)
	}
	return nil
}
