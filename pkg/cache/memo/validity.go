package memo

// Validity decides whether a value stamped at epoch stamp may still be
// served at epoch current.
type Validity func(stamp, current uint64) bool

// FrameValidity keeps a value for exactly the epoch it was computed in.
func FrameValidity(stamp, current uint64) bool {
	return stamp == current
}

// ManualValidity keeps a value until it is explicitly invalidated.
func ManualValidity(_, _ uint64) bool {
	return true
}

// LatencyValidity keeps a value for n consecutive epochs, starting with the
// one it was computed in. LatencyValidity(1) is FrameValidity.
func LatencyValidity(n uint64) Validity {
	if n == 0 {
		n = 1
	}
	return func(stamp, current uint64) bool {
		return current >= stamp && current-stamp < n
	}
}
