package domain

import "time"

// VerificationRecord is a pending one-time code for a normalized identifier.
// At most one live record exists per identifier.
type VerificationRecord struct {
	Identifier string    `json:"identifier"`
	Code       string    `json:"-"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Attempts   int       `json:"attempts"`
}

// VerificationOutcome is the result of checking a submitted code.
type VerificationOutcome int

const (
	VerificationSuccess VerificationOutcome = iota
	VerificationInvalid
	VerificationExpired
	VerificationTooManyAttempts
)

func (o VerificationOutcome) String() string {
	switch o {
	case VerificationSuccess:
		return "success"
	case VerificationInvalid:
		return "invalid"
	case VerificationExpired:
		return "expired"
	case VerificationTooManyAttempts:
		return "too_many_attempts"
	default:
		return "unknown"
	}
}

// Defaults applied when configuration leaves a limit unset.
const (
	DefaultVerificationTTL         = 5 * time.Minute
	DefaultVerificationMaxAttempts = 5
	DefaultSessionTTL              = 7 * 24 * time.Hour
)
