package extraction

import "time"

// Data types the pipeline extracts. Traits are excluded from the
// per-message cadence and only recomputed during the nightly ceremony,
// since trait inference needs a wider window than single exchanges.
const (
	TypeFact   = "fact"
	TypeTrait  = "trait"
	TypeTopic  = "topic"
	TypePerson = "person"
	TypeQuote  = "quote"
)

// MessageTypes are the types seeded on the regular message cadence.
var MessageTypes = []string{TypeFact, TypeTopic, TypePerson}

// CeremonyTypes are the types seeded by the nightly detail chain.
var CeremonyTypes = []string{TypeFact, TypeTrait, TypeTopic, TypePerson, TypeQuote}

// Throttle tunables. The thresholds are heuristics, not contract: a
// nearly-static knowledge base should not be rescanned on every message,
// and that is all these guarantee.
var (
	// MinMessagesPerSeed is the base number of new messages before a
	// type is rescanned.
	MinMessagesPerSeed = 4
	// MessagesPerItem adds scan cost as the collection grows.
	MessagesPerItem = 5 // one extra message required per this many items
	// MaxSeedInterval forces a rescan after enough quiet time regardless
	// of message volume.
	MaxSeedInterval = 24 * time.Hour
)

// ShouldSeed decides whether a scan for the given type is due. Pure in
// (now, lastSeeded, itemCount, messagesSince) so cadence is testable
// without clock mocking.
func ShouldSeed(dataType string, now, lastSeeded time.Time, itemCount, messagesSince int) bool {
	if dataType == TypeTrait {
		return false
	}
	if messagesSince <= 0 {
		return false
	}
	if lastSeeded.IsZero() {
		return true
	}
	if now.Sub(lastSeeded) >= MaxSeedInterval {
		return true
	}
	required := MinMessagesPerSeed + itemCount/MessagesPerItem
	return messagesSince >= required
}
