// Package backoff provides exponential backoff with jitter for stream
// retry logic.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines the parameters for exponential backoff calculation.
type Policy struct {
	// Base is the base delay in seconds.
	Base float64
	// Max caps the computed delay in seconds. Zero means no cap.
	Max float64
}

// Compute calculates the delay before retry number attempt (0-indexed).
// The formula is base * 2^attempt plus up to one second of jitter.
func Compute(policy Policy, attempt int) time.Duration {
	return ComputeWithRand(policy, attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// ComputeWithRand calculates the delay using a provided random value in
// [0.0, 1.0). Useful for deterministic tests.
func ComputeWithRand(policy Policy, attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt), 0)
	seconds := policy.Base*math.Pow(2, exp) + randomValue
	if policy.Max > 0 {
		seconds = math.Min(seconds, policy.Max)
	}
	return time.Duration(math.Round(seconds*1000)) * time.Millisecond
}

// DefaultPolicy returns the standard retry policy.
// Base: 5s, cap: 10 minutes.
func DefaultPolicy() Policy {
	return Policy{Base: 5, Max: 600}
}
