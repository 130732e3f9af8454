package memory

import (
	"context"
	"crypto/subtle"
	"fmt"
	"hash/maphash"
	"sync"
	"time"

	"github.com/go-passwordless/internal/domain"
)

// shardCount buckets identifiers so unrelated identifiers rarely share a lock.
const shardCount = 64

type shard struct {
	mu      sync.Mutex
	records map[string]*domain.VerificationRecord
}

// VerificationStore keeps pending one-time codes in process memory.
// Every read-modify-write for an identifier runs under that identifier's
// shard lock, so concurrent verifies never lose an attempt.
type VerificationStore struct {
	shards      [shardCount]shard
	seed        maphash.Seed
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
}

func NewVerificationStore(ttl time.Duration, maxAttempts int) *VerificationStore {
	if ttl <= 0 {
		ttl = domain.DefaultVerificationTTL
	}
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultVerificationMaxAttempts
	}
	s := &VerificationStore{
		seed:        maphash.MakeSeed(),
		ttl:         ttl,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
	for i := range s.shards {
		s.shards[i].records = make(map[string]*domain.VerificationRecord)
	}
	return s
}

// WithClock replaces the time source. Intended for tests.
func (s *VerificationStore) WithClock(now func() time.Time) *VerificationStore {
	s.now = now
	return s
}

func (s *VerificationStore) shardFor(identifier string) *shard {
	return &s.shards[maphash.String(s.seed, identifier)%shardCount]
}

// Create replaces any pending record for identifier.
func (s *VerificationStore) Create(_ context.Context, identifier, code string) (*domain.VerificationRecord, error) {
	rec := &domain.VerificationRecord{
		Identifier: identifier,
		Code:       code,
		ExpiresAt:  s.now().Add(s.ttl),
	}
	sh := s.shardFor(identifier)
	sh.mu.Lock()
	sh.records[identifier] = rec
	sh.mu.Unlock()

	cp := *rec
	return &cp, nil
}

// Verify checks code against the pending record. Expiry is evaluated before
// the attempt ceiling, and the attempt is consumed before the comparison.
func (s *VerificationStore) Verify(_ context.Context, identifier, code string) (domain.VerificationOutcome, error) {
	sh := s.shardFor(identifier)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[identifier]
	if !ok {
		return domain.VerificationInvalid, nil
	}
	if s.now().After(rec.ExpiresAt) {
		delete(sh.records, identifier)
		return domain.VerificationExpired, nil
	}
	if rec.Attempts >= s.maxAttempts {
		return domain.VerificationTooManyAttempts, nil
	}
	rec.Attempts++
	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) != 1 {
		return domain.VerificationInvalid, nil
	}
	delete(sh.records, identifier)
	return domain.VerificationSuccess, nil
}

// Get returns a copy of the pending record for identifier.
func (s *VerificationStore) Get(_ context.Context, identifier string) (*domain.VerificationRecord, error) {
	sh := s.shardFor(identifier)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	rec, ok := sh.records[identifier]
	if !ok {
		return nil, fmt.Errorf("verification not found: %w", domain.ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

// Reset drops every pending record.
func (s *VerificationStore) Reset(_ context.Context) error {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		clear(sh.records)
		sh.mu.Unlock()
	}
	return nil
}
