package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-passwordless/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// expiryGrace keeps an expired record around long enough for Verify to report
// EXPIRED instead of INVALID.
const expiryGrace = time.Minute

// Hash fields of a verification record.
const (
	fieldCode      = "code"
	fieldExpiresAt = "expires_at"
	fieldAttempts  = "attempts"
)

// verifyLua runs the whole verify state machine atomically.
// KEYS[1] = record key
// ARGV[1] = submitted code
// ARGV[2] = now (unix ms)
// ARGV[3] = max attempts
var verifyLua = goredis.NewScript(`
local rec = redis.call('HMGET', KEYS[1], 'code', 'expires_at', 'attempts')
if not rec[1] then
  return 'invalid'
end
if tonumber(ARGV[2]) > tonumber(rec[2]) then
  redis.call('DEL', KEYS[1])
  return 'expired'
end
if tonumber(rec[3]) >= tonumber(ARGV[3]) then
  return 'too_many_attempts'
end
redis.call('HINCRBY', KEYS[1], 'attempts', 1)
if rec[1] ~= ARGV[1] then
  return 'invalid'
end
redis.call('DEL', KEYS[1])
return 'success'
`)

// VerificationStore keeps pending one-time codes in Redis so several API
// processes can share them.
type VerificationStore struct {
	redis       goredis.UniversalClient
	prefix      string
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
}

func NewVerificationStore(client goredis.UniversalClient, prefix string, ttl time.Duration, maxAttempts int) *VerificationStore {
	if prefix == "" {
		prefix = "pwl:verify"
	}
	if ttl <= 0 {
		ttl = domain.DefaultVerificationTTL
	}
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultVerificationMaxAttempts
	}
	return &VerificationStore{
		redis:       client,
		prefix:      prefix,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *VerificationStore) WithClock(now func() time.Time) *VerificationStore {
	s.now = now
	return s
}

func (s *VerificationStore) key(identifier string) string {
	return s.prefix + ":" + identifier
}

// Create replaces any pending record for identifier.
func (s *VerificationStore) Create(ctx context.Context, identifier, code string) (*domain.VerificationRecord, error) {
	expiresAt := s.now().Add(s.ttl)
	key := s.key(identifier)
	_, err := s.redis.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			fieldCode, code,
			fieldExpiresAt, expiresAt.UnixMilli(),
			fieldAttempts, 0,
		)
		pipe.PExpire(ctx, key, s.ttl+expiryGrace)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store verification: %w", err)
	}
	return &domain.VerificationRecord{
		Identifier: identifier,
		Code:       code,
		ExpiresAt:  time.UnixMilli(expiresAt.UnixMilli()).UTC(),
	}, nil
}

func (s *VerificationStore) Verify(ctx context.Context, identifier, code string) (domain.VerificationOutcome, error) {
	res, err := verifyLua.Run(ctx, s.redis,
		[]string{s.key(identifier)},
		code,
		s.now().UnixMilli(),
		s.maxAttempts,
	).Text()
	if err != nil {
		return domain.VerificationInvalid, fmt.Errorf("verify code: %w", err)
	}
	switch res {
	case "success":
		return domain.VerificationSuccess, nil
	case "expired":
		return domain.VerificationExpired, nil
	case "too_many_attempts":
		return domain.VerificationTooManyAttempts, nil
	case "invalid":
		return domain.VerificationInvalid, nil
	default:
		return domain.VerificationInvalid, fmt.Errorf("verify code: unexpected script result %q", res)
	}
}

func (s *VerificationStore) Get(ctx context.Context, identifier string) (*domain.VerificationRecord, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(identifier)).Result()
	if err != nil {
		return nil, fmt.Errorf("get verification: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("verification not found: %w", domain.ErrNotFound)
	}
	expiresMs, err := strconv.ParseInt(fields[fieldExpiresAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode verification expiry: %w", err)
	}
	attempts, err := strconv.Atoi(fields[fieldAttempts])
	if err != nil {
		return nil, fmt.Errorf("decode verification attempts: %w", err)
	}
	return &domain.VerificationRecord{
		Identifier: identifier,
		Code:       fields[fieldCode],
		ExpiresAt:  time.UnixMilli(expiresMs).UTC(),
		Attempts:   attempts,
	}, nil
}

// Reset deletes every record under the store prefix.
func (s *VerificationStore) Reset(ctx context.Context) error {
	iter := s.redis.Scan(ctx, 0, s.prefix+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan verifications: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete verifications: %w", err)
	}
	return nil
}
