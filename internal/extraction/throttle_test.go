package extraction

import (
	"testing"
	"time"
)

func TestShouldSeed(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Hour)

	tests := []struct {
		name          string
		dtype         string
		lastSeeded    time.Time
		itemCount     int
		messagesSince int
		want          bool
	}{
		{"traits never seed on message cadence", TypeTrait, time.Time{}, 0, 100, false},
		{"no new messages", TypeFact, time.Time{}, 0, 0, false},
		{"never seeded before", TypeFact, time.Time{}, 0, 1, true},
		{"quiet period forces rescan", TypeFact, now.Add(-25 * time.Hour), 50, 1, true},
		{"below threshold", TypeFact, recent, 0, MinMessagesPerSeed - 1, false},
		{"at threshold", TypeFact, recent, 0, MinMessagesPerSeed, true},
		{"large collection raises threshold", TypeTopic, recent, 25, MinMessagesPerSeed, false},
		{"large collection eventually seeds", TypeTopic, recent, 25, MinMessagesPerSeed + 5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShouldSeed(tt.dtype, now, tt.lastSeeded, tt.itemCount, tt.messagesSince)
			if got != tt.want {
				t.Errorf("ShouldSeed(%s, items=%d, msgs=%d) = %v, want %v",
					tt.dtype, tt.itemCount, tt.messagesSince, got, tt.want)
			}
		})
	}
}
