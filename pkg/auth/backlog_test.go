package auth

import (
	"testing"
	"time"
)

func TestPurgeBacklog(t *testing.T) {
	var b purgeBacklog
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if b.pending("a", now) {
		t.Error("empty backlog should have nothing pending")
	}

	b.add("a", now, time.Minute)
	if !b.pending("a", now.Add(59*time.Second)) {
		t.Error("hash should be pending before its deadline")
	}
	if b.pending("a", now.Add(time.Minute)) {
		t.Error("hash should lapse at its deadline")
	}
	if b.len() != 0 {
		t.Errorf("len = %d, want 0 after lapse", b.len())
	}

	b.add("b", now, time.Minute)
	b.add("c", now.Add(2*time.Minute), time.Minute)
	if b.len() != 1 {
		t.Errorf("len = %d, want 1; lapsed entries are pruned on add", b.len())
	}

	b.remove("c")
	if b.pending("c", now.Add(2*time.Minute)) {
		t.Error("removed hash should not be pending")
	}
}
