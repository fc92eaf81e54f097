package alerts

import (
	"fmt"
	"testing"
	"time"

	"modelguard/internal/model"
)

func record(id string, at time.Time) model.AlertRecord {
	return model.AlertRecord{ID: id, Identity: "10.0.0.1", DispatchedAt: at}
}

func TestStoreEvictsOldest(t *testing.T) {
	s := NewStore(3)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		s.Add(record(fmt.Sprintf("a%d", i), base.Add(time.Duration(i)*time.Second)))
	}
	got := s.List(0)
	if len(got) != 3 {
		t.Fatalf("len = %d, want capped at 3", len(got))
	}
	if got[0].ID != "a2" || got[2].ID != "a4" {
		t.Fatalf("list = %v, want oldest evicted", got)
	}
}

func TestStoreListLimit(t *testing.T) {
	s := NewStore(10)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		s.Add(record(fmt.Sprintf("a%d", i), base))
	}
	got := s.List(2)
	if len(got) != 2 || got[0].ID != "a3" || got[1].ID != "a4" {
		t.Fatalf("list(2) = %v, want newest two", got)
	}
}

func TestStoreSince(t *testing.T) {
	s := NewStore(10)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.Add(record("old", base))
	s.Add(record("new", base.Add(time.Hour)))
	got := s.Since(base.Add(30 * time.Minute))
	if len(got) != 1 || got[0].ID != "new" {
		t.Fatalf("since = %v, want only the newer record", got)
	}
}

func TestStoreClear(t *testing.T) {
	s := NewStore(10)
	s.Add(record("a", time.Now()))
	s.Clear()
	if got := s.List(0); len(got) != 0 {
		t.Fatalf("list after clear = %v", got)
	}
}
