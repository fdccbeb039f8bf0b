package slave

import "time"

// maxReconnectAttempts is the default cap on consecutive reconnect
// attempts before the transport gives up and returns to Disconnected.
const maxReconnectAttempts = 10

// maxBackoff is the ceiling the exponential delay saturates at.
const maxBackoff = 30 * time.Second

// backoffDelay computes delay(n) = min(2^n, 30) seconds, deliberately
// without jitter — unlike the teacher's jittered reconnect.go, this
// system's reconnect timing is an exported, testable property (attempt
// 0→1s, 1→2s, 2→4s... capped at 30s), so the formula must be exact.
func backoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Cap the exponent itself well before it could overflow a 64-bit
	// shift; any attempt this large already clamps to maxBackoff.
	if attempt > 5 {
		return maxBackoff
	}
	delay := time.Duration(1<<uint(attempt)) * time.Second
	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}
