// Package verificationtest holds the behaviour every verification store
// backend must share, expressed as a reusable test suite.
package verificationtest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-passwordless/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Store is the surface exercised by the suite.
type Store interface {
	Create(ctx context.Context, identifier, code string) (*domain.VerificationRecord, error)
	Verify(ctx context.Context, identifier, code string) (domain.VerificationOutcome, error)
	Get(ctx context.Context, identifier string) (*domain.VerificationRecord, error)
	Reset(ctx context.Context) error
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// TTL and MaxAttempts are the limits a Factory must configure.
const (
	TTL         = 5 * time.Minute
	MaxAttempts = 5
)

// Factory builds a fresh, empty store that reads time from clock.
type Factory func(t *testing.T, clock *Clock) Store

// Run executes the shared suite against the backend built by newStore.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()
	const email = "user@example.com"

	t.Run("VerifyWithoutRecord_Invalid", func(t *testing.T) {
		s := newStore(t, NewClock())
		out, err := s.Verify(ctx, email, "123456")
		require.NoError(t, err)
		assert.Equal(t, domain.VerificationInvalid, out)
	})

	t.Run("Create_SetsExpiryAndZeroAttempts", func(t *testing.T) {
		clock := NewClock()
		s := newStore(t, clock)
		rec, err := s.Create(ctx, email, "123456")
		require.NoError(t, err)
		assert.Equal(t, email, rec.Identifier)
		assert.Equal(t, 0, rec.Attempts)
		assert.True(t, rec.ExpiresAt.Equal(clock.Now().Add(TTL)))
	})

	t.Run("CorrectCode_SingleUse", func(t *testing.T) {
		s := newStore(t, NewClock())
		_, err := s.Create(ctx, email, "123456")
		require.NoError(t, err)

		out, err := s.Verify(ctx, email, "123456")
		require.NoError(t, err)
		assert.Equal(t, domain.VerificationSuccess, out)

		out, err = s.Verify(ctx, email, "123456")
		require.NoError(t, err)
		assert.Equal(t, domain.VerificationInvalid, out)
	})

	t.Run("WrongCode_ConsumesAttempt", func(t *testing.T) {
		s := newStore(t, NewClock())
		_, err := s.Create(ctx, email, "123456")
		require.NoError(t, err)

		for i := 1; i < MaxAttempts; i++ {
			out, err := s.Verify(ctx, email, "000000")
			require.NoError(t, err)
			assert.Equal(t, domain.VerificationInvalid, out)
			rec, err := s.Get(ctx, email)
			require.NoError(t, err)
			assert.Equal(t, i, rec.Attempts)
		}
	})

	t.Run("AttemptCeiling_ThrottlesEvenCorrectCode", func(t *testing.T) {
		s := newStore(t, NewClock())
		_, err := s.Create(ctx, email, "123456")
		require.NoError(t, err)

		for i := 0; i < MaxAttempts; i++ {
			out, err := s.Verify(ctx, email, "000000")
			require.NoError(t, err)
			assert.Equal(t, domain.VerificationInvalid, out)
		}
		for i := 0; i < 2; i++ {
			out, err := s.Verify(ctx, email, "123456")
			require.NoError(t, err)
			assert.Equal(t, domain.VerificationTooManyAttempts, out)
		}
		rec, err := s.Get(ctx, email)
		require.NoError(t, err, "throttled record is retained")
		assert.Equal(t, MaxAttempts, rec.Attempts)
	})

	t.Run("Expired_DeletesRecord", func(t *testing.T) {
		clock := NewClock()
		s := newStore(t, clock)
		_, err := s.Create(ctx, email, "123456")
		require.NoError(t, err)

		clock.Advance(TTL + time.Second)

		out, err := s.Verify(ctx, email, "123456")
		require.NoError(t, err)
		assert.Equal(t, domain.VerificationExpired, out)

		out, err = s.Verify(ctx, email, "123456")
		require.NoError(t, err)
		assert.Equal(t, domain.VerificationInvalid, out)
	})

	t.Run("ExactlyAtExpiry_StillValid", func(t *testing.T) {
		clock := NewClock()
		s := newStore(t, clock)
		_, err := s.Create(ctx, email, "123456")
		require.NoError(t, err)

		clock.Advance(TTL)

		out, err := s.Verify(ctx, email, "123456")
		require.NoError(t, err)
		assert.Equal(t, domain.VerificationSuccess, out)
	})

	t.Run("ExpiredAndExhausted_ReportsExpired", func(t *testing.T) {
		clock := NewClock()
		s := newStore(t, clock)
		_, err := s.Create(ctx, email, "123456")
		require.NoError(t, err)
		for i := 0; i < MaxAttempts; i++ {
			_, err := s.Verify(ctx, email, "000000")
			require.NoError(t, err)
		}

		clock.Advance(TTL + time.Second)

		out, err := s.Verify(ctx, email, "123456")
		require.NoError(t, err)
		assert.Equal(t, domain.VerificationExpired, out)
	})

	t.Run("Recreate_InvalidatesPreviousCode", func(t *testing.T) {
		s := newStore(t, NewClock())
		_, err := s.Create(ctx, email, "111111")
		require.NoError(t, err)
		_, err = s.Create(ctx, email, "222222")
		require.NoError(t, err)

		out, err := s.Verify(ctx, email, "111111")
		require.NoError(t, err)
		assert.Equal(t, domain.VerificationInvalid, out)

		out, err = s.Verify(ctx, email, "222222")
		require.NoError(t, err)
		assert.Equal(t, domain.VerificationSuccess, out)
	})

	t.Run("Recreate_ResetsAttempts", func(t *testing.T) {
		s := newStore(t, NewClock())
		_, err := s.Create(ctx, email, "111111")
		require.NoError(t, err)
		for i := 0; i < MaxAttempts; i++ {
			_, err := s.Verify(ctx, email, "000000")
			require.NoError(t, err)
		}
		_, err = s.Create(ctx, email, "222222")
		require.NoError(t, err)

		out, err := s.Verify(ctx, email, "222222")
		require.NoError(t, err)
		assert.Equal(t, domain.VerificationSuccess, out)
	})

	t.Run("IdentifiersAreIndependent", func(t *testing.T) {
		s := newStore(t, NewClock())
		_, err := s.Create(ctx, "a@example.com", "111111")
		require.NoError(t, err)
		_, err = s.Create(ctx, "b@example.com", "222222")
		require.NoError(t, err)

		out, err := s.Verify(ctx, "a@example.com", "222222")
		require.NoError(t, err)
		assert.Equal(t, domain.VerificationInvalid, out)

		out, err = s.Verify(ctx, "b@example.com", "222222")
		require.NoError(t, err)
		assert.Equal(t, domain.VerificationSuccess, out)
	})

	t.Run("Reset_ClearsAllRecords", func(t *testing.T) {
		s := newStore(t, NewClock())
		_, err := s.Create(ctx, "a@example.com", "111111")
		require.NoError(t, err)
		_, err = s.Create(ctx, "b@example.com", "222222")
		require.NoError(t, err)

		require.NoError(t, s.Reset(ctx))

		_, err = s.Get(ctx, "a@example.com")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		out, err := s.Verify(ctx, "b@example.com", "222222")
		require.NoError(t, err)
		assert.Equal(t, domain.VerificationInvalid, out)
	})

	t.Run("ConcurrentWrongCodes_NeverExceedCeiling", func(t *testing.T) {
		s := newStore(t, NewClock())
		_, err := s.Create(ctx, email, "123456")
		require.NoError(t, err)

		const callers = 20
		outcomes := make(chan domain.VerificationOutcome, callers)
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				out, err := s.Verify(ctx, email, "000000")
				if err == nil {
					outcomes <- out
				}
			}()
		}
		wg.Wait()
		close(outcomes)

		counts := map[domain.VerificationOutcome]int{}
		for out := range outcomes {
			counts[out]++
		}
		assert.Equal(t, MaxAttempts, counts[domain.VerificationInvalid])
		assert.Equal(t, callers-MaxAttempts, counts[domain.VerificationTooManyAttempts])

		rec, err := s.Get(ctx, email)
		require.NoError(t, err)
		assert.Equal(t, MaxAttempts, rec.Attempts)
	})
}
