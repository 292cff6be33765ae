package lsm

import (
	"fmt"
	"testing"
)

func newTestEngine(t *testing.T, flushLimit int64) *Engine {
	t.Helper()
	e, err := Open(t.TempDir(), Options{
		MaxLevels:       7,
		MaxTablesPerLvl: 4,
		FlushLimitBytes: flushLimit,
		CompactionType:  "leveled",
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return e
}

func TestPutGetDel(t *testing.T) {
	e := newTestEngine(t, 2<<20)

	if err := e.Put(1, []byte("alpha")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, ok, err := e.Get(1)
	if err != nil || !ok || string(v) != "alpha" {
		t.Fatalf("Get: v=%q ok=%v err=%v", v, ok, err)
	}

	existed, err := e.Del(1)
	if err != nil || !existed {
		t.Fatalf("Del: existed=%v err=%v", existed, err)
	}
	if _, ok, _ := e.Get(1); ok {
		t.Fatal("expected not-found after delete")
	}
	if existed, _ := e.Del(1); existed {
		t.Fatal("second delete should report false")
	}
}

func TestScanAcrossMemtableAndSSTs(t *testing.T) {
	e := newTestEngine(t, 1024) // small flush limit to force a flush

	for i := uint64(0); i < 100; i++ {
		if err := e.Put(i, []byte(fmt.Sprintf("v%d", i))); err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
	}
	for i := uint64(100); i < 150; i++ {
		if err := e.Put(i, []byte(fmt.Sprintf("v%d", i))); err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
	}

	entries, err := e.Scan(40, 110)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(entries) != 71 {
		t.Fatalf("expected 71 entries, got %d", len(entries))
	}
	for i, want := 0, uint64(40); i < len(entries); i, want = i+1, want+1 {
		if entries[i].Key != want {
			t.Fatalf("entry %d: expected key %d, got %d", i, want, entries[i].Key)
		}
	}
}

func TestCompactionTriggersAtL0(t *testing.T) {
	e := newTestEngine(t, 200) // tiny flush limit: every few puts seals an SST

	for i := uint64(0); i < 60; i++ {
		if err := e.Put(i, []byte(fmt.Sprintf("value-%d", i))); err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
	}

	counts := e.LevelCounts()
	if counts[0] > 2 {
		t.Fatalf("expected level 0 to be compacted down (<=2^1), got %d tables", counts[0])
	}
	if counts[1] == 0 {
		t.Fatalf("expected compaction to have populated level 1")
	}

	ranges := e.KeyRanges(1)
	for i := 0; i < len(ranges); i++ {
		for j := i + 1; j < len(ranges); j++ {
			if ranges[i][1] >= ranges[j][0] && ranges[j][1] >= ranges[i][0] {
				t.Fatalf("level 1 ranges overlap: %v vs %v", ranges[i], ranges[j])
			}
		}
	}

	for i := uint64(0); i < 60; i++ {
		v, ok, err := e.Get(i)
		if err != nil || !ok || string(v) != fmt.Sprintf("value-%d", i) {
			t.Fatalf("Get(%d) after compaction: v=%q ok=%v err=%v", i, v, ok, err)
		}
	}
}

func TestTombstoneSurvivesCompaction(t *testing.T) {
	e := newTestEngine(t, 64) // force a flush almost immediately

	if err := e.Put(7, []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// Force a flush by writing enough filler keys.
	for i := uint64(100); i < 120; i++ {
		e.Put(i, []byte("filler"))
	}

	if _, err := e.Del(7); err != nil {
		t.Fatalf("Del: %v", err)
	}
	for i := uint64(200); i < 220; i++ {
		e.Put(i, []byte("more-filler"))
	}

	if _, ok, _ := e.Get(7); ok {
		t.Fatal("expected key 7 to be tombstoned")
	}
}

func TestResetErasesEverything(t *testing.T) {
	e := newTestEngine(t, 200)
	for i := uint64(0); i < 40; i++ {
		e.Put(i, []byte("v"))
	}
	if err := e.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	for _, c := range e.LevelCounts() {
		if c != 0 {
			t.Fatalf("expected all levels empty after reset, got counts %v", e.LevelCounts())
		}
	}
	if _, ok, _ := e.Get(0); ok {
		t.Fatal("expected no data after reset")
	}
}

func TestReopenRestoresTimestampAndData(t *testing.T) {
	dir := t.TempDir()
	opts := Options{MaxLevels: 7, MaxTablesPerLvl: 4, FlushLimitBytes: 64, CompactionType: "leveled"}

	e, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := uint64(0); i < 30; i++ {
		e.Put(i, []byte(fmt.Sprintf("v%d", i)))
	}
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	e2, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if e2.timestamp != e.timestamp {
		t.Fatalf("expected timestamp %d restored, got %d", e.timestamp, e2.timestamp)
	}
	for i := uint64(0); i < 30; i++ {
		v, ok, err := e2.Get(i)
		if err != nil || !ok || string(v) != fmt.Sprintf("v%d", i) {
			t.Fatalf("Get(%d) after reopen: v=%q ok=%v err=%v", i, v, ok, err)
		}
	}
}
