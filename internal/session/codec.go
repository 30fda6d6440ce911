// Package session signs the session record into the mps_session cookie.
// The payload is signed, not encrypted: never put credentials in it.
package session

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"

	"mps-dashboard/internal/cookie"
)

const issuer = "mps-dashboard"

var (
	ErrInvalidSession = errors.New("invalid session")
	ErrEmptySecret    = errors.New("session secret is required")
)

// Record is the identity payload carried by the session cookie.
type Record struct {
	UserID     string `json:"userId"`
	CustomerID string `json:"customerId,omitempty"`
	Role       string `json:"role"`
	Username   string `json:"username"`
	Email      string `json:"email,omitempty"`
}

type claims struct {
	Record
	jwt.RegisteredClaims
}

type Codec struct {
	key    []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

func NewCodec(secret string, ttl time.Duration) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("mps-session-v1"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}

	c := &Codec{key: key, ttl: ttl, now: time.Now}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
	)

	return c, nil
}

func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Encode signs record into a compact token expiring after the codec TTL.
func (c *Codec) Encode(record Record) (string, error) {
	if strings.TrimSpace(record.UserID) == "" {
		return "", fmt.Errorf("%w: user id is required", ErrInvalidSession)
	}

	now := c.now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Record: record,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   record.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	})

	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

// Decode verifies signature, issuer and expiry.
func (c *Codec) Decode(raw string) (*Record, error) {
	parsed, err := c.parser.ParseWithClaims(raw, &claims{}, func(*jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	cl, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || cl.UserID == "" {
		return nil, ErrInvalidSession
	}

	record := cl.Record
	return &record, nil
}

// Create persists record as the session cookie.
func (c *Codec) Create(jar cookie.Jar, record Record) error {
	signed, err := c.Encode(record)
	if err != nil {
		return err
	}

	jar.Set(cookie.SessionCookie, signed, c.ttl)
	return nil
}

// Get returns the current session or nil. Any verification failure is
// reported as "no session".
func (c *Codec) Get(reader cookie.Reader) *Record {
	raw, ok := reader.Get(cookie.SessionCookie)
	if !ok {
		return nil
	}

	record, err := c.Decode(raw)
	if err != nil {
		return nil
	}
	return record
}

func (c *Codec) Destroy(jar cookie.Jar) {
	jar.Delete(cookie.SessionCookie)
}

// Refresh re-signs the current payload with a new expiry. It reports
// false when there is no valid session to extend.
func (c *Codec) Refresh(jar cookie.Jar) bool {
	record := c.Get(jar)
	if record == nil {
		return false
	}

	return c.Create(jar, *record) == nil
}

// UserID identifies the session owner for logs and events, or "".
func (c *Codec) UserID(reader cookie.Reader) string {
	if record := c.Get(reader); record != nil {
		return record.UserID
	}
	return ""
}
