package hive

// StatusBucket is the fixed-priority classification of a run's outcome.
type StatusBucket string

// Status buckets, in classification priority order.
const (
	StatusSuccess StatusBucket = "success"
	StatusTimeout StatusBucket = "timeout"
	StatusFailed  StatusBucket = "failed"
	StatusError   StatusBucket = "error"
)

// ValidStatus reports whether s is a known status bucket.
func ValidStatus(s string) bool {
	switch StatusBucket(s) {
	case StatusSuccess, StatusTimeout, StatusFailed, StatusError:
		return true
	}

	return false
}

// Status classifies a run into exactly one bucket. The priority order
// is fixed: success, timeout, failed, error. A run with no failures is
// a success even when its timeout flag is set; a timed-out run with
// failures is a timeout regardless of its pass rate. "failed" requires
// a strict majority of passes (passes/ntests > 0.5); everything else
// with failures is an error.
func Status(r *RunRecord) StatusBucket {
	if r.Fails == 0 {
		return StatusSuccess
	}

	if r.Timeout {
		return StatusTimeout
	}

	if r.Passes > 0 && r.NTests > 0 &&
		float64(r.Passes)/float64(r.NTests) > 0.5 {
		return StatusFailed
	}

	return StatusError
}
