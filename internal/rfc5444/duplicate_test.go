package rfc5444

import (
	"net/netip"
	"testing"
	"time"
)

func TestDuplicateSet_FirstSeqnoIsNewest(t *testing.T) {
	s := NewDuplicateSet()
	origin := netip.MustParseAddr("2001:db8::1")
	if got := s.Add(1, origin, 10, time.Hour); got != ResultNewest {
		t.Fatalf("got %v, want newest", got)
	}
}

func TestDuplicateSet_RepeatIsCurrent(t *testing.T) {
	s := NewDuplicateSet()
	origin := netip.MustParseAddr("2001:db8::1")
	s.Add(1, origin, 10, time.Hour)
	if got := s.Add(1, origin, 10, time.Hour); got != ResultCurrent {
		t.Fatalf("got %v, want current", got)
	}
}

func TestDuplicateSet_AdvancingSeqnoIsNewest(t *testing.T) {
	s := NewDuplicateSet()
	origin := netip.MustParseAddr("2001:db8::1")
	s.Add(1, origin, 10, time.Hour)
	if got := s.Add(1, origin, 11, time.Hour); got != ResultNewest {
		t.Fatalf("got %v, want newest", got)
	}
	if got := s.Add(1, origin, 20, time.Hour); got != ResultNewest {
		t.Fatalf("got %v, want newest", got)
	}
}

func TestDuplicateSet_OlderUnseenIsNewThenDuplicate(t *testing.T) {
	s := NewDuplicateSet()
	origin := netip.MustParseAddr("2001:db8::1")
	s.Add(1, origin, 20, time.Hour)

	if got := s.Add(1, origin, 15, time.Hour); got != ResultNew {
		t.Fatalf("first delivery of seqno 15: got %v, want new", got)
	}
	if got := s.Add(1, origin, 15, time.Hour); got != ResultDuplicate {
		t.Fatalf("repeat of an older-but-unrecorded seqno: got %v, want duplicate", got)
	}
}

func TestDuplicateSet_TooOldBeyondWindow(t *testing.T) {
	s := NewDuplicateSet()
	origin := netip.MustParseAddr("2001:db8::1")
	s.Add(1, origin, 1000, time.Hour)
	if got := s.Add(1, origin, 900, time.Hour); got != ResultTooOld {
		t.Fatalf("got %v, want too-old", got)
	}
}

func TestDuplicateSet_TooOldRebootHeuristic(t *testing.T) {
	s := NewDuplicateSet()
	origin := netip.MustParseAddr("2001:db8::1")
	s.Add(1, origin, 1000, time.Hour)

	for i := 0; i < maxTooOldCount; i++ {
		if got := s.Add(1, origin, 1, time.Hour); got != ResultTooOld {
			t.Fatalf("attempt %d: got %v, want too-old", i, got)
		}
	}
	if got := s.Add(1, origin, 1, time.Hour); got != ResultNewest {
		t.Fatalf("after %d too-old hits, expected reboot reset to newest, got %v", maxTooOldCount+1, got)
	}
}

func TestDuplicateSet_DistinctOriginatorsIndependent(t *testing.T) {
	s := NewDuplicateSet()
	a := netip.MustParseAddr("2001:db8::1")
	b := netip.MustParseAddr("2001:db8::2")
	s.Add(1, a, 50, time.Hour)
	if got := s.Add(1, b, 1, time.Hour); got != ResultNewest {
		t.Fatalf("new originator: got %v, want newest", got)
	}
	if s.Len() != 2 {
		t.Fatalf("entries: got %d, want 2", s.Len())
	}
}

func TestDuplicateSet_DistinctMessageTypesIndependent(t *testing.T) {
	s := NewDuplicateSet()
	origin := netip.MustParseAddr("2001:db8::1")
	s.Add(1, origin, 50, time.Hour)
	if got := s.Add(2, origin, 1, time.Hour); got != ResultNewest {
		t.Fatalf("distinct message type: got %v, want newest", got)
	}
}

func TestDuplicateSet_TestDoesNotMutateState(t *testing.T) {
	s := NewDuplicateSet()
	origin := netip.MustParseAddr("2001:db8::1")
	s.Add(1, origin, 10, time.Hour)

	if got := s.Test(1, origin, 11); got != ResultNewest {
		t.Fatalf("Test: got %v, want newest", got)
	}
	// Test must not have advanced current, so Add with the same seqno
	// should still see it as newest.
	if got := s.Add(1, origin, 11, time.Hour); got != ResultNewest {
		t.Fatalf("Add after Test: got %v, want newest", got)
	}
}

// TestDuplicateSet_VtimeEvictionResetsToNewest reproduces Scenario C:
// once an entry's vtime expires, the next observation for that
// originator is treated as if nothing had ever been recorded.
func TestDuplicateSet_VtimeEvictionResetsToNewest(t *testing.T) {
	s := NewDuplicateSet()
	origin := netip.MustParseAddr("2001:db8::1")

	s.Add(1, origin, 10, 10*time.Millisecond)
	if s.Len() != 1 {
		t.Fatalf("entries after add: got %d, want 1", s.Len())
	}

	deadline := time.After(time.Second)
	for s.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("entry was not evicted before deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if got := s.Add(1, origin, 5, time.Hour); got != ResultNewest {
		t.Fatalf("after eviction: got %v, want newest", got)
	}
}

func TestDupResult_String(t *testing.T) {
	if ResultNewest.String() != "newest" {
		t.Fatalf("got %q", ResultNewest.String())
	}
	if DupResult(99).String() == "" {
		t.Fatal("unknown result should still stringify")
	}
}
