package contextmgr

import (
	"testing"
	"time"

	"github.com/andywolf/prpctl/internal/types"
)

func TestStoreSharedContextRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	memo := *types.NewWarRoomMemo(10)
	memo.AddDone("shipped")
	sections := []types.ContextSection{{ID: "s1", Name: "goal", Content: "ship it"}}

	if err := store.SaveShared(memo, sections, time.Unix(0, 0)); err != nil {
		t.Fatalf("SaveShared: %v", err)
	}

	loaded, err := store.LoadShared()
	if err != nil {
		t.Fatalf("LoadShared: %v", err)
	}
	if len(loaded.WarRoom.Done) != 1 || loaded.WarRoom.Done[0] != "shipped" {
		t.Fatalf("war room = %v", loaded.WarRoom)
	}
	if len(loaded.Sections) != 1 || loaded.Sections[0].Name != "goal" {
		t.Fatalf("sections = %v", loaded.Sections)
	}
}

func TestStoreLoadSharedMissingIsNotError(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	snap, err := store.LoadShared()
	if err != nil {
		t.Fatalf("LoadShared on missing file: %v", err)
	}
	if len(snap.Sections) != 0 {
		t.Fatalf("expected zero-value snapshot, got %+v", snap)
	}
}

func TestStorePRPRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	sections := []types.ContextSection{{ID: "p1", Name: "progress"}}

	if err := store.SavePRP("checkout-flow", sections, time.Unix(0, 0)); err != nil {
		t.Fatalf("SavePRP: %v", err)
	}

	snap, ok, err := store.LoadPRP("checkout-flow")
	if err != nil || !ok {
		t.Fatalf("LoadPRP: ok=%v err=%v", ok, err)
	}
	if snap.Name != "checkout-flow" || len(snap.Sections) != 1 {
		t.Fatalf("snap = %+v", snap)
	}

	_, ok, err = store.LoadPRP("missing")
	if err != nil {
		t.Fatalf("LoadPRP missing: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for an unsaved PRP name")
	}
}
