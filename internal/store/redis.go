package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/haloverify/verifysvc/internal/domain"
)

// RedisStore satisfies SessionStore against a single Redis key per session.
// The session payload and its version travel together as one JSON blob so
// the compare-and-swap in casScript can check the embedded version and
// overwrite atomically; TTL is the key's own Redis expiry, giving the
// "single-row conditional write with row-level TTL" shape called for in
// SPEC_FULL.md §4.1.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "verifysvc:session"
	}
	return &RedisStore{client: client, prefix: prefix}
}

type wireSession struct {
	SessionID     uuid.UUID             `json:"session_id"`
	CountryCode   int                   `json:"country_code"`
	Subscriber    string                `json:"subscriber"`
	CreatedAt     time.Time             `json:"created_at"`
	ExpiresAt     time.Time             `json:"expires_at"`
	SenderName    string                `json:"sender_name,omitempty"`
	SenderData    []byte                `json:"sender_data,omitempty"`
	VerifiedCode  string                `json:"verified_code,omitempty"`
	SendAttempts  []domain.SendAttempt  `json:"send_attempts,omitempty"`
	CheckAttempts []domain.CheckAttempt `json:"check_attempts,omitempty"`
	Version       uint64                `json:"version"`
}

func toWire(s domain.Session) wireSession {
	return wireSession{
		SessionID:     s.SessionID,
		CountryCode:   s.PhoneNumber.CountryCode,
		Subscriber:    s.PhoneNumber.SubscriberDigits,
		CreatedAt:     s.CreatedAt,
		ExpiresAt:     s.ExpiresAt,
		SenderName:    s.SenderName,
		SenderData:    s.SenderData,
		VerifiedCode:  s.VerifiedCode,
		SendAttempts:  s.SendAttempts,
		CheckAttempts: s.CheckAttempts,
		Version:       s.Version,
	}
}

func fromWire(w wireSession) domain.Session {
	return domain.Session{
		SessionID:   w.SessionID,
		PhoneNumber: domain.PhoneNumber{CountryCode: w.CountryCode, SubscriberDigits: w.Subscriber},
		CreatedAt:   w.CreatedAt,
		ExpiresAt:   w.ExpiresAt,
		SenderName:  w.SenderName,
		SenderData:  w.SenderData,
		VerifiedCode:  w.VerifiedCode,
		SendAttempts:  w.SendAttempts,
		CheckAttempts: w.CheckAttempts,
		Version:       w.Version,
	}
}

func (s *RedisStore) key(id uuid.UUID) string {
	return fmt.Sprintf("%s:%s", s.prefix, id.String())
}

func (s *RedisStore) Create(ctx context.Context, record domain.Session, ttl time.Duration) (uuid.UUID, error) {
	id := uuid.New()
	now := time.Now().UTC()
	record.SessionID = id
	record.CreatedAt = now
	record.ExpiresAt = now.Add(ttl)
	record.Version = 1

	payload, err := json.Marshal(toWire(record))
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.client.Set(ctx, s.key(id), payload, ttl).Err(); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (domain.Session, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, ErrNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	var w wireSession
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.Session{}, err
	}
	sess := fromWire(w)
	if time.Now().After(sess.ExpiresAt) {
		return domain.Session{}, ErrNotFound
	}
	return sess, nil
}

// casScript performs the compare-and-swap server-side: it only overwrites
// the key if the stored version still matches the version the caller last
// read, and it refreshes the TTL to the caller-supplied number of
// milliseconds in the same atomic step.
var casScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == false then
  return {err = "not_found"}
end
local ok, decoded = pcall(cjson.decode, current)
if not ok then
  return {err = "not_found"}
end
if decoded["version"] ~= tonumber(ARGV[1]) then
  return {err = "conflict"}
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return {ok = "stored"}
`)

func (s *RedisStore) Update(ctx context.Context, id uuid.UUID, mutator Mutator) (domain.Session, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}

	next, err := applyMutator(current, mutator)
	if err != nil {
		return domain.Session{}, err
	}
	if next.ExpiresAt.Before(current.ExpiresAt) {
		next.ExpiresAt = current.ExpiresAt
	}

	payload, err := json.Marshal(toWire(next))
	if err != nil {
		return domain.Session{}, err
	}
	ttlMillis := time.Until(next.ExpiresAt).Milliseconds()
	if ttlMillis <= 0 {
		return domain.Session{}, ErrNotFound
	}

	res, err := casScript.Run(ctx, s.client, []string{s.key(id)}, current.Version, payload, ttlMillis).Result()
	if err != nil {
		switch {
		case errors.Is(err, redis.Nil):
			return domain.Session{}, ErrNotFound
		default:
			return domain.Session{}, mapCASScriptError(err)
		}
	}
	_ = res
	return next, nil
}

func mapCASScriptError(err error) error {
	msg := err.Error()
	switch {
	case containsAny(msg, "not_found"):
		return ErrNotFound
	case containsAny(msg, "conflict"):
		return ErrConflict
	default:
		return err
	}
}

func containsAny(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
