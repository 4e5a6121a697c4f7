package remote

import "time"

// Policy is the shared reliability policy for one destination system: how
// many attempts a call gets, how long to pause between transport retries,
// and the fallback pause when a 429 carries no Retry-After header. Both
// destination clients share this instead of re-implementing retry logic.
type Policy struct {
	// MaxRetries bounds transport retries and 429 retries independently.
	MaxRetries int
	// Backoff returns the pause before transport retry attempt n (0-based).
	Backoff func(attempt int) time.Duration
	// RateLimitPause is used when the server does not say how long to wait.
	RateLimitPause time.Duration
}

// DefaultPolicy mirrors the migration defaults: three attempts, exponential
// backoff from one second, one-second rate-limit fallback.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     3,
		Backoff:        ExponentialBackoff(time.Second),
		RateLimitPause: time.Second,
	}
}

// ExponentialBackoff doubles the base pause per attempt: base, 2*base, 4*base...
func ExponentialBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return base * time.Duration(1<<attempt)
	}
}

// LinearBackoff grows the pause by base per attempt: base, 2*base, 3*base...
func LinearBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt+1)
	}
}
