package queue

// MaxAutoRetryAttempts bounds automatic retries. Once an entry has failed
// this many times it is paused and waits for manual attention instead of
// retrying silently forever.
const MaxAutoRetryAttempts = 4

// retryDelaysMs is the backoff ladder, indexed by attempt count. No jitter:
// delays are deterministic so scheduling is testable.
var retryDelaysMs = [...]int64{15_000, 30_000, 60_000, 120_000, 300_000, 600_000}

// RetryDelayMs maps an attempt count to the delay before the next attempt.
// Attempts below zero get the first rung; attempts beyond the ladder stay on
// the last rung.
func RetryDelayMs(attempt int) int64 {
	if attempt <= 0 {
		return retryDelaysMs[0]
	}
	if attempt >= len(retryDelaysMs) {
		return retryDelaysMs[len(retryDelaysMs)-1]
	}

	return retryDelaysMs[attempt]
}
