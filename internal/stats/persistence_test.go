package stats

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStoreLoadMissing(t *testing.T) {
	st, err := NewStore(t.TempDir()).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.Version != statsVersion || st.Disconnects == nil {
		t.Errorf("Load() on missing file = %+v", st)
	}
}

func TestStoreSaveLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	s := NewStore(dir)
	in := &Stats{Spawns: 3, LongestOnlineSec: 12.5, Disconnects: map[string]int{"kick": 1}}
	if err := s.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Spawns != 3 || out.LongestOnlineSec != 12.5 || out.Disconnects["kick"] != 1 {
		t.Errorf("round trip = %+v", out)
	}
	if out.LastUpdated.IsZero() {
		t.Error("LastUpdated not set by Save")
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if e.Name() != statsFileName {
			t.Errorf("leftover file %q", e.Name())
		}
	}
}

func TestStoreLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, statsFileName), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStore(dir).Load(); err == nil {
		t.Error("Load() on corrupt file should fail")
	}
}

func TestStoreLoadNullMap(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, statsFileName), []byte(`{"version":1,"spawns":2}`), 0o600)
	st, err := NewStore(dir).Load()
	if err != nil {
		t.Fatal(err)
	}
	st.Disconnects["end"]++ // must not panic
	if st.Spawns != 2 {
		t.Errorf("Spawns = %d", st.Spawns)
	}
}
