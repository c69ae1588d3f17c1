package executor

import "time"

// Backoff selects the delay progression between retry attempts.
type Backoff string

const (
	BackoffFixed       Backoff = "fixed"
	BackoffExponential Backoff = "exponential"
)

// KindPolicy is the per-kind execution policy.
type KindPolicy struct {
	// Timeout bounds a single attempt of the action.
	Timeout time.Duration
	// MaxAttempts is the total number of attempts, first try included.
	MaxAttempts int
	// Fatal aborts the remaining actions when this kind fails.
	Fatal bool
}

// Policy configures the executor.
type Policy struct {
	Kinds map[Kind]KindPolicy

	// Backoff settings applied between retry attempts.
	Backoff     Backoff
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// PollInterval bounds how often wait_for_condition re-evaluates.
	PollInterval time.Duration

	// AbortOnUnsupported aborts the run on an unsupported kind instead
	// of recording it as a best-effort failure.
	AbortOnUnsupported bool

	// Strict makes any Failed entry fail the run's exit status even
	// when execution completed.
	Strict bool
}

// DefaultPolicy returns the stock policy: 30s timeouts for navigation
// and condition waits, 10s otherwise; two attempts for idempotent-safe
// kinds and a single attempt for the rest; navigate is fatal on
// failure; exponential backoff from 250ms.
func DefaultPolicy() Policy {
	kinds := make(map[Kind]KindPolicy, len(Kinds()))
	for _, k := range Kinds() {
		kp := KindPolicy{Timeout: 10 * time.Second, MaxAttempts: 1}
		if k.Idempotent() {
			kp.MaxAttempts = 2
		}
		switch k {
		case KindNavigate:
			kp.Timeout = 30 * time.Second
			kp.Fatal = true
		case KindWaitForCondition:
			kp.Timeout = 30 * time.Second
		}
		kinds[k] = kp
	}

	return Policy{
		Kinds:        kinds,
		Backoff:      BackoffExponential,
		BackoffBase:  250 * time.Millisecond,
		BackoffMax:   5 * time.Second,
		PollInterval: 100 * time.Millisecond,
	}
}

// ForKind returns the policy for k, falling back to a conservative
// single-attempt policy for kinds without an entry.
func (p Policy) ForKind(k Kind) KindPolicy {
	if kp, ok := p.Kinds[k]; ok {
		if kp.Timeout <= 0 {
			kp.Timeout = 10 * time.Second
		}
		if kp.MaxAttempts <= 0 {
			kp.MaxAttempts = 1
		}
		return kp
	}
	return KindPolicy{Timeout: 10 * time.Second, MaxAttempts: 1}
}

// backoffDelay returns the delay before retry attempt n (n starts at 1
// for the first retry).
func (p Policy) backoffDelay(n int) time.Duration {
	base := p.BackoffBase
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	delay := base
	if p.Backoff == BackoffExponential {
		for i := 1; i < n; i++ {
			delay *= 2
		}
	}
	if p.BackoffMax > 0 && delay > p.BackoffMax {
		delay = p.BackoffMax
	}
	return delay
}
