package assistant

// resolveWithRetry calls fn up to attempts times, returning the first value
// that passes valid. Errors and invalid values both count as failed attempts.
// When every attempt fails, fallback is returned, so callers always receive a
// usable value and never block on a misbehaving resolver.
func resolveWithRetry[T any](attempts int, fn func() (T, error), valid func(T) bool, fallback T) T {
	for i := 0; i < attempts; i++ {
		v, err := fn()
		if err == nil && valid(v) {
			return v
		}
	}
	return fallback
}
