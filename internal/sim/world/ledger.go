package world

// Ledger is the player's resource count per block type. It never goes negative.
type Ledger struct {
	counts map[string]int
}

func newLedger(start map[string]int) Ledger {
	l := Ledger{counts: map[string]int{}}
	for k, v := range start {
		if v > 0 {
			l.counts[k] = v
		}
	}
	return l
}

func (l *Ledger) Count(block string) int { return l.counts[block] }

func (l *Ledger) spend(block string) bool {
	if l.counts[block] <= 0 {
		return false
	}
	l.counts[block]--
	return true
}

func (l *Ledger) credit(block string, n int) {
	if n <= 0 {
		return
	}
	l.counts[block] += n
}

func (l *Ledger) snapshot() map[string]int {
	out := make(map[string]int, len(l.counts))
	for k, v := range l.counts {
		out[k] = v
	}
	return out
}

