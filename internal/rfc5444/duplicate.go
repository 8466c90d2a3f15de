package rfc5444

import (
	"fmt"
	"net/netip"
	"sync"
	"time"
)

// maxTooOldCount is the number of consecutive "too old" classifications
// tolerated before the entry is reset as if the originator had rebooted
// (oonf_duplicate_set.c: OONF_DUPSET_MAXIMUM_TOO_OLD).
const maxTooOldCount = 8

// DupResult classifies one (msg_type, originator, seqno) observation
// against a duplicate/forwarding set.
type DupResult int

const (
	// ResultNewest is the newest sequence number seen for this
	// originator; always forward/process eligible.
	ResultNewest DupResult = iota
	// ResultCurrent repeats the most recently recorded sequence number.
	ResultCurrent
	// ResultNew is older than current but not previously recorded.
	ResultNew
	// ResultDuplicate has already been recorded.
	ResultDuplicate
	// ResultTooOld falls outside the 32-entry sliding window.
	ResultTooOld
)

var dupResultNames = [...]string{"newest", "current", "new", "duplicate", "too-old"}

func (r DupResult) String() string {
	if r < 0 || int(r) >= len(dupResultNames) {
		return fmt.Sprintf(unknownFmt, int(r))
	}
	return dupResultNames[r]
}

type dupKey struct {
	msgType    uint8
	originator netip.Addr
}

type dupEntry struct {
	current     uint16
	history     uint32
	tooOldCount int
	timer       *time.Timer
}

// DuplicateSet implements the sliding-window duplicate/forwarding-set
// algorithm from oonf_duplicate_set.c: a 32-bit history bitmap per
// (message type, originator) tracking which of the 32 sequence numbers
// below the current one have already been seen, plus a too-old-reboot
// heuristic and vtime-driven eviction.
//
// A Protocol owns two of these (processed-set and forwarded-set, see
// multiplex.go) so that "have I already handled this message" and "have
// I already relayed this message" can be tracked independently.
type DuplicateSet struct {
	mu      sync.Mutex
	entries map[dupKey]*dupEntry
}

// NewDuplicateSet creates an empty set.
func NewDuplicateSet() *DuplicateSet {
	return &DuplicateSet{entries: make(map[dupKey]*dupEntry)}
}

// seqnoDifference computes the signed, wraparound-aware difference a-b
// over the 16-bit RFC 5444 sequence number space.
func seqnoDifference(a, b uint16) int {
	d := int(a) - int(b)
	if d > 32767 {
		d -= 65536
	}
	if d < -32768 {
		d += 65536
	}
	return d
}

// Test classifies seqno against the current entry for (msgType,
// originator) without creating an entry or arming/resetting any timer.
// A missing entry always classifies as ResultNewest (nothing recorded
// yet to compare against), matching oonf_duplicate_test.
func (s *DuplicateSet) Test(msgType uint8, originator netip.Addr, seqno uint16) DupResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[dupKey{msgType, originator}]
	if !ok {
		return ResultNewest
	}
	return evaluate(e, seqno, false)
}

// Add classifies seqno against the entry for (msgType, originator),
// creating the entry on first observation, and (re)arms the entry's
// vtime eviction timer whenever the classification is NEW or NEWEST —
// mirroring oonf_duplicate_entry_add, which only resets the timer on
// sequence-number progress, not on CURRENT/DUPLICATE/TOO_OLD repeats.
func (s *DuplicateSet) Add(msgType uint8, originator netip.Addr, seqno uint16, vtime time.Duration) DupResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dupKey{msgType, originator}
	e, ok := s.entries[key]
	if !ok {
		e = &dupEntry{current: seqno, history: 1}
		s.entries[key] = e
		s.armTimer(key, e, vtime)
		return ResultNewest
	}

	result := evaluate(e, seqno, true)
	if result == ResultNew || result == ResultNewest {
		s.armTimer(key, e, vtime)
	}
	return result
}

// evaluate applies the core sliding-window test. set controls whether a
// NEWEST classification actually advances current/history (Test passes
// false, Add passes true).
func evaluate(e *dupEntry, seqno uint16, set bool) DupResult {
	if seqno == e.current {
		return ResultCurrent
	}

	diff := seqnoDifference(seqno, e.current)

	if diff < -31 {
		e.tooOldCount++
		if e.tooOldCount > maxTooOldCount {
			e.history = 1
			e.tooOldCount = 0
			e.current = seqno
			return ResultNewest
		}
		return ResultTooOld
	}
	e.tooOldCount = 0

	if diff <= 0 {
		bitmask := uint32(1) << uint(-diff)
		wasSet := e.history&bitmask != 0
		if set {
			e.history |= bitmask
		}
		if wasSet {
			return ResultDuplicate
		}
		return ResultNew
	}

	if set {
		e.current = seqno
		if diff >= 32 {
			e.history = 1
		} else {
			e.history = (e.history << uint(diff)) | 1
		}
	}
	return ResultNewest
}

// armTimer (re)starts the per-entry vtime timer. On expiry the entry is
// evicted entirely, so the next observation for that originator again
// classifies as ResultNewest (spec §8 Scenario C).
func (s *DuplicateSet) armTimer(key dupKey, e *dupEntry, vtime time.Duration) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(vtime, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if cur, ok := s.entries[key]; ok && cur == e {
			delete(s.entries, key)
		}
	})
}

// Len reports the number of live entries, for tests and introspection.
func (s *DuplicateSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
