package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// BearerPrefix precedes the JWT in the Authorization header value.
const BearerPrefix = "Bearer "

// ErrInvalidToken is returned for tokens that are malformed, not signed with the
// device key, or missing the device_id claim.
var ErrInvalidToken = errors.New("invalid bearer token")

// Claims carried by a device token.
type Claims struct {
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

// Signer issues and checks HS256 device tokens.
type Signer struct {
	key []byte
	now func() time.Time
}

func NewSigner(key string) (*Signer, error) {
	if key == "" {
		return nil, errors.New("signing key is empty")
	}
	return &Signer{key: []byte(key), now: time.Now}, nil
}

// Sign returns a compact JWT with the device_id claim.
func (s *Signer) Sign(deviceID string) (string, error) {
	if deviceID == "" {
		return "", errors.New("device id is empty")
	}

	claims := Claims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(s.now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Verify checks the signature of a compact JWT and returns its device id.
func (s *Signer) Verify(token string) (string, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.DeviceID == "" {
		return "", fmt.Errorf("%w: missing device_id", ErrInvalidToken)
	}
	return claims.DeviceID, nil
}

// BearerToken formats a JWT as an Authorization header value.
func BearerToken(token string) string {
	return BearerPrefix + token
}

// ParseBearer extracts the JWT from an Authorization header value.
func ParseBearer(header string) (string, error) {
	token, ok := strings.CutPrefix(header, BearerPrefix)
	if !ok || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: expected %q prefix", ErrInvalidToken, BearerPrefix)
	}
	return strings.TrimSpace(token), nil
}
