package snapshot

import (
	"sync"
	"testing"

	"github.com/daviddao/cosmoview/internal/universe"
)

func TestStoreEmpty(t *testing.T) {
	s := NewStore()
	if s.Current() != nil {
		t.Error("Current() should be nil before the first Replace")
	}
	if s.Generation() != 0 {
		t.Errorf("Generation() = %d, want 0", s.Generation())
	}
}

func TestStoreReplaceLastWriteWins(t *testing.T) {
	s := NewStore()
	first := &universe.Snapshot{Step: 1}
	second := &universe.Snapshot{Step: 2}

	s.Replace(first)
	s.Replace(second)

	if got := s.Current(); got != second {
		t.Errorf("Current() = step %d, want step 2", got.Step)
	}
	if s.Generation() != 2 {
		t.Errorf("Generation() = %d, want 2", s.Generation())
	}
}

func TestStoreReplaceNilIgnored(t *testing.T) {
	s := NewStore()
	snap := &universe.Snapshot{Step: 7}
	s.Replace(snap)
	s.Replace(nil)
	if s.Current() != snap {
		t.Error("Replace(nil) should not clear the current snapshot")
	}
	if s.Generation() != 1 {
		t.Errorf("Generation() = %d, want 1", s.Generation())
	}
}

func TestStoreChangesCoalesce(t *testing.T) {
	s := NewStore()
	s.Replace(&universe.Snapshot{Step: 1})
	s.Replace(&universe.Snapshot{Step: 2})
	s.Replace(&universe.Snapshot{Step: 3})

	select {
	case <-s.Changes():
	default:
		t.Fatal("expected a change signal")
	}
	select {
	case <-s.Changes():
		t.Error("signals should coalesce into one")
	default:
	}
	if s.Current().Step != 3 {
		t.Errorf("Current().Step = %d, want 3", s.Current().Step)
	}
}

func TestStoreConcurrentReaders(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if snap := s.Current(); snap != nil && snap.Step < 0 {
					t.Error("observed a torn snapshot")
				}
			}
		}()
	}
	for i := 1; i <= 200; i++ {
		s.Replace(&universe.Snapshot{Step: i})
	}
	wg.Wait()
	if s.Current().Step != 200 {
		t.Errorf("Current().Step = %d, want 200", s.Current().Step)
	}
}
