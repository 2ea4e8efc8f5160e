package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/dgellow/resource-desk/internal/log"
	"github.com/dgellow/resource-desk/internal/storage"
)

// Persisted keys
const (
	KeyExpiresAt  = "app_session_expires_at"
	KeyTTLMinutes = "app_session_ttl_minutes"
)

// DefaultTTLMinutes is used when neither configuration nor storage supplies a TTL
const DefaultTTLMinutes = 240

// MaxTTLMinutes caps a session at one year
const MaxTTLMinutes = 366 * 24 * 60

// ErrInvalidTTL is returned for TTLs that are not positive, exceed
// MaxTTLMinutes or are not finite
var ErrInvalidTTL = errors.New("session TTL must be a positive number of minutes, at most one year")

// Clock abstracts time for expiry checks
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// StorageError reports a failed write to the backing key-value store
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("session storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Store tracks the local session expiry timestamp and the configured TTL.
// An absent expiry means there is no active session, whatever the provider
// believes. Reads never fail: unreadable state is treated as no session.
type Store struct {
	kv    storage.KeyValue
	clock Clock
}

// NewStore creates a session store. A nil clock means the system clock.
func NewStore(kv storage.KeyValue, clock Clock) *Store {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Store{kv: kv, clock: clock}
}

// Clock returns the clock the store measures expiry against
func (s *Store) Clock() Clock {
	return s.clock
}

// SetExpiry starts a session lasting ttlMinutes from now and persists the TTL alongside
func (s *Store) SetExpiry(ctx context.Context, ttlMinutes float64) (time.Time, error) {
	if !ValidTTL(ttlMinutes) {
		return time.Time{}, ErrInvalidTTL
	}

	expiresAt := s.clock.Now().UnixMilli() + int64(ttlMinutes*60000)
	if err := s.kv.Set(ctx, KeyExpiresAt, strconv.FormatInt(expiresAt, 10)); err != nil {
		return time.Time{}, &StorageError{Op: "set", Key: KeyExpiresAt, Err: err}
	}
	if err := s.kv.Set(ctx, KeyTTLMinutes, formatTTL(ttlMinutes)); err != nil {
		return time.Time{}, &StorageError{Op: "set", Key: KeyTTLMinutes, Err: err}
	}

	return time.UnixMilli(expiresAt), nil
}

// GetExpiry returns the persisted expiry, or false when there is none
func (s *Store) GetExpiry(ctx context.Context) (time.Time, bool) {
	raw, err := s.kv.Get(ctx, KeyExpiresAt)
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			log.LogWarnWithFields("session", "Failed to read session expiry", map[string]any{
				"error": err.Error(),
			})
		}
		return time.Time{}, false
	}

	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.LogWarnWithFields("session", "Ignoring malformed session expiry", map[string]any{
			"value": raw,
		})
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// IsValid reports whether an expiry exists and lies in the future
func (s *Store) IsValid(ctx context.Context) bool {
	expiresAt, ok := s.GetExpiry(ctx)
	if !ok {
		return false
	}
	return s.clock.Now().Before(expiresAt)
}

// Clear removes the expiry. The TTL is kept for the next login.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, KeyExpiresAt); err != nil {
		return &StorageError{Op: "delete", Key: KeyExpiresAt, Err: err}
	}
	return nil
}

// SetTTL persists the TTL used by the next SetExpiry call
func (s *Store) SetTTL(ctx context.Context, minutes float64) error {
	if !ValidTTL(minutes) {
		return ErrInvalidTTL
	}
	if err := s.kv.Set(ctx, KeyTTLMinutes, formatTTL(minutes)); err != nil {
		return &StorageError{Op: "set", Key: KeyTTLMinutes, Err: err}
	}
	return nil
}

// TTL returns the persisted TTL in minutes
func (s *Store) TTL(ctx context.Context) (float64, bool) {
	raw, err := s.kv.Get(ctx, KeyTTLMinutes)
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			log.LogWarnWithFields("session", "Failed to read session TTL", map[string]any{
				"error": err.Error(),
			})
		}
		return 0, false
	}

	minutes, err := strconv.ParseFloat(raw, 64)
	if err != nil || !ValidTTL(minutes) {
		return 0, false
	}
	return minutes, true
}

// ValidTTL reports whether minutes can be used as a session TTL
func ValidTTL(minutes float64) bool {
	return !math.IsNaN(minutes) && minutes > 0 && minutes <= MaxTTLMinutes
}

func formatTTL(minutes float64) string {
	return strconv.FormatFloat(minutes, 'f', -1, 64)
}
