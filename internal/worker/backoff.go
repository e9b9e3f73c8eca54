package worker

import "time"

// Tiered retry delays indexed by the just-completed attempt number, not by
// elapsed wall-clock time. Past the table, production waits a full day.
var (
	productionBackoff = []time.Duration{
		60 * time.Second,
		5 * time.Minute,
		30 * time.Minute,
		2 * time.Hour,
	}
	testBackoff = []time.Duration{
		5 * time.Second,
		10 * time.Second,
		15 * time.Second,
		20 * time.Second,
	}
)

// nextRetryDelay returns how long to wait before the attempt after the given
// one. attempt is 1-based and counts the delivery that just finished.
func nextRetryDelay(attempt int, testProfile bool) time.Duration {
	table := productionBackoff
	fallback := 24 * time.Hour
	if testProfile {
		table = testBackoff
		fallback = testBackoff[len(testBackoff)-1]
	}
	if attempt >= 1 && attempt <= len(table) {
		return table[attempt-1]
	}
	return fallback
}
