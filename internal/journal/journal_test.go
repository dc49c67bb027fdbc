package journal

import (
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestLifecycleEntries(t *testing.T) {
	j := openTestJournal(t)

	j.Dispatched(1, "fs", "readFile")
	j.Resolved(1, "fs", "readFile")
	j.Dispatched(2, "fs", "bogus")
	j.Rejected(2, "fs", "bogus", "no such command: fs.bogus")
	j.RecordEvent(3, "worker", "status")

	entries, err := j.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("len(entries) = %d, want 5", len(entries))
	}

	// Newest first.
	wantKinds := []string{"event", "rejected", "dispatched", "resolved", "dispatched"}
	for i, e := range entries {
		if e.Kind != wantKinds[i] {
			t.Errorf("entries[%d].Kind = %q, want %q", i, e.Kind, wantKinds[i])
		}
	}

	rejected := entries[1]
	if rejected.RequestID != 2 || rejected.Domain != "fs" || rejected.Name != "bogus" {
		t.Errorf("rejected entry = %+v", rejected)
	}
	if rejected.Detail != "no such command: fs.bogus" {
		t.Errorf("Detail = %q", rejected.Detail)
	}
}

func TestRecentLimit(t *testing.T) {
	j := openTestJournal(t)
	for i := 0; i < 10; i++ {
		j.Dispatched(uint32(i), "fs", "stat")
	}
	entries, err := j.Recent(3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	if entries[0].RequestID != 9 {
		t.Errorf("entries[0].RequestID = %d, want 9", entries[0].RequestID)
	}
}

func TestRecentOnEmptyJournal(t *testing.T) {
	j := openTestJournal(t)
	entries, err := j.Recent(5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("len(entries) = %d, want 0", len(entries))
	}
}

func TestEntriesCarryTimestamps(t *testing.T) {
	j := openTestJournal(t)
	before := time.Now().UTC().Add(-time.Minute)
	j.Dispatched(1, "base", "ping")
	entries, err := j.Recent(1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatal("no entry recorded")
	}
	if entries[0].At.Before(before) {
		t.Errorf("At = %v, too old", entries[0].At)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	j, err := Open(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	// A second close must not panic on the cleanup channel.
	j.Close()
}

func TestReopenKeepsEntries(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	j.Dispatched(1, "fs", "stat")
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	j2, err := Open(dir, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j2.Close()
	entries, err := j2.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("len(entries) after reopen = %d, want 1", len(entries))
	}
}
