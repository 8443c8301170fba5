package ban

import (
	"path/filepath"
	"testing"
)

func TestBlocklist_BlockUnblock(t *testing.T) {
	bl, err := NewBlocklist(nil)
	if err != nil {
		t.Fatalf("NewBlocklist() error: %v", err)
	}

	bl.Block("de")
	if !bl.IsBlocked("DE") {
		t.Error("codes should be case-insensitive")
	}
	if bl.IsBlocked("FR") {
		t.Error("FR should not be blocked")
	}
	if bl.IsBlocked("") {
		t.Error("empty code should never be blocked")
	}

	bl.Unblock("DE")
	if bl.IsBlocked("DE") {
		t.Error("expected DE unblocked")
	}
}

func TestBlocklist_ClearAll(t *testing.T) {
	bl, _ := NewBlocklist(nil)
	bl.Block("DE")
	bl.Block("FR")
	bl.Block("US")

	bl.ClearAll()
	if got := bl.Codes(); len(got) != 0 {
		t.Errorf("expected empty set after ClearAll, got %v", got)
	}
}

func TestBlocklist_CodesSorted(t *testing.T) {
	bl, _ := NewBlocklist(nil)
	bl.Block("US")
	bl.Block("DE")
	bl.Block("FR")

	got := bl.Codes()
	want := []string{"DE", "FR", "US"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestBlocklist_PersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.db")

	store, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("OpenBolt() error: %v", err)
	}

	bl, err := NewBlocklist(store)
	if err != nil {
		t.Fatalf("NewBlocklist() error: %v", err)
	}
	bl.Block("DE")
	bl.Block("KP")
	bl.Unblock("DE")
	bl.Close() // flushes the pending snapshot
	if err := store.Close(); err != nil {
		t.Fatalf("store close error: %v", err)
	}

	// Simulated restart: reopen the database and reload.
	store2, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer store2.Close()

	bl2, err := NewBlocklist(store2)
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	defer bl2.Close()

	if !bl2.IsBlocked("KP") {
		t.Error("KP block should survive restart")
	}
	if bl2.IsBlocked("DE") {
		t.Error("unblocked DE should stay unblocked after restart")
	}
}

func TestBlocklist_ClearAllPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.db")

	store, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("OpenBolt() error: %v", err)
	}
	bl, _ := NewBlocklist(store)
	bl.Block("DE")
	bl.ClearAll()
	bl.Close()
	store.Close()

	store2, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer store2.Close()

	bl2, _ := NewBlocklist(store2)
	defer bl2.Close()
	if got := bl2.Codes(); len(got) != 0 {
		t.Errorf("expected empty set after restart, got %v", got)
	}
}
