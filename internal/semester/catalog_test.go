package semester

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/uqmarks/uqmarks/internal/storage"
)

type memStore struct {
	mu    sync.Mutex
	rows  []storage.Semester
	saves int
	err   error
}

func (m *memStore) LoadSemesters(_ context.Context) ([]storage.Semester, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]storage.Semester, len(m.rows))
	copy(out, m.rows)
	return out, nil
}

func (m *memStore) SaveSemesters(_ context.Context, list []storage.Semester) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append([]storage.Semester(nil), list...)
	m.saves++
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRollover_AprilAddsSemesterOnce(t *testing.T) {
	store := &memStore{rows: []storage.Semester{{Year: 2024, Semester: 2}, {Year: 2024, Semester: 1}}}
	now := time.Date(2025, time.April, 14, 9, 0, 0, 0, time.UTC)
	c := NewCatalog(store, WithClock(fixedClock(now)))
	ctx := context.Background()

	added, err := c.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !added {
		t.Fatal("first Refresh did not add an offering")
	}

	added, err = c.Refresh(ctx)
	if err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	if added {
		t.Error("second Refresh on the same day added an offering")
	}

	got, err := c.Semesters(ctx)
	if err != nil {
		t.Fatalf("Semesters: %v", err)
	}
	want := []Offering{{2025, 1}, {2024, 2}, {2024, 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("catalog mismatch (-want +got):\n%s", diff)
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want 1", store.saves)
	}
}

func TestRolloverTarget(t *testing.T) {
	tests := []struct {
		name   string
		now    time.Time
		newest Offering
		want   Offering
		ok     bool
	}{
		{"march", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Offering{2024, 3}, Offering{2025, 1}, true},
		{"july has no rule", time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC), Offering{2025, 1}, Offering{}, false},
		{"august", time.Date(2025, 8, 2, 0, 0, 0, 0, time.UTC), Offering{2025, 1}, Offering{2025, 2}, true},
		{"november", time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC), Offering{2025, 1}, Offering{2025, 2}, true},
		{"december same year", time.Date(2025, 12, 3, 0, 0, 0, 0, time.UTC), Offering{2025, 2}, Offering{2025, 3}, true},
		{"december stale catalog", time.Date(2025, 12, 3, 0, 0, 0, 0, time.UTC), Offering{2024, 2}, Offering{}, false},
		{"january", time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), Offering{2025, 2}, Offering{2025, 3}, true},
		{"february after summer added", time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), Offering{2025, 3}, Offering{2025, 3}, true},
		{"february stale catalog", time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), Offering{2024, 2}, Offering{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := rolloverTarget(tt.now, tt.newest)
			if ok != tt.ok || got != tt.want {
				t.Errorf("rolloverTarget = %v, %v; want %v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

// TestRollover_SummerAcrossNewYear verifies the summer semester added in
// December is not prepended again in January.
func TestRollover_SummerAcrossNewYear(t *testing.T) {
	store := &memStore{rows: []storage.Semester{{Year: 2025, Semester: 2}}}
	ctx := context.Background()

	dec := NewCatalog(store, WithClock(fixedClock(time.Date(2025, 12, 5, 0, 0, 0, 0, time.UTC))))
	if added, err := dec.Refresh(ctx); err != nil || !added {
		t.Fatalf("December Refresh = %v, %v; want true, nil", added, err)
	}

	jan := NewCatalog(store, WithClock(fixedClock(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))))
	if added, err := jan.Refresh(ctx); err != nil || added {
		t.Fatalf("January Refresh = %v, %v; want false, nil", added, err)
	}

	got, _ := jan.Semesters(ctx)
	want := []Offering{{2025, 3}, {2025, 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("catalog mismatch (-want +got):\n%s", diff)
	}
}

func TestSemesters_CachedWithinTTL(t *testing.T) {
	store := &memStore{rows: []storage.Semester{{Year: 2025, Semester: 1}}}
	now := time.Date(2025, 7, 20, 0, 0, 0, 0, time.UTC)
	c := NewCatalog(store, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	if _, err := c.Semesters(ctx); err != nil {
		t.Fatalf("Semesters: %v", err)
	}

	// A write behind the catalog's back is invisible until the TTL lapses.
	store.rows = []storage.Semester{{Year: 2025, Semester: 2}, {Year: 2025, Semester: 1}}
	got, _ := c.Semesters(ctx)
	if len(got) != 1 {
		t.Fatalf("cached catalog = %v, want 1 entry", got)
	}

	now = now.Add(25 * time.Hour)
	got, _ = c.Semesters(ctx)
	if len(got) != 2 {
		t.Fatalf("catalog after TTL = %v, want 2 entries", got)
	}
}

func TestSemesters_SeedsEmptyStore(t *testing.T) {
	store := &memStore{}
	c := NewCatalog(store,
		WithClock(fixedClock(time.Date(2024, 7, 20, 0, 0, 0, 0, time.UTC))),
		WithSeed(Offering{2024, 1}, Offering{2023, 2}, Offering{2024, 1}),
	)

	got, err := c.Semesters(context.Background())
	if err != nil {
		t.Fatalf("Semesters: %v", err)
	}
	want := []Offering{{2024, 1}, {2023, 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("catalog mismatch (-want +got):\n%s", diff)
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want 1", store.saves)
	}
}

func TestRefresh_ConcurrentPrependsOnce(t *testing.T) {
	store := &memStore{rows: []storage.Semester{{Year: 2025, Semester: 1}}}
	c := NewCatalog(store, WithClock(fixedClock(time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC))))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Refresh(context.Background()); err != nil {
				t.Errorf("Refresh: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(store.rows) != 2 {
		t.Fatalf("stored catalog = %v, want 2 entries", store.rows)
	}
}

func TestKnown(t *testing.T) {
	store := &memStore{rows: []storage.Semester{{Year: 2025, Semester: 1}}}
	c := NewCatalog(store, WithClock(fixedClock(time.Date(2025, 7, 20, 0, 0, 0, 0, time.UTC))))

	ok, err := c.Known(context.Background(), 2025, 1)
	if err != nil || !ok {
		t.Errorf("Known(2025, 1) = %v, %v", ok, err)
	}
	ok, _ = c.Known(context.Background(), 2025, 2)
	if ok {
		t.Error("Known(2025, 2) = true")
	}
}

func TestSemesters_StoreError(t *testing.T) {
	store := &memStore{err: errors.New("disk on fire")}
	c := NewCatalog(store)
	if _, err := c.Semesters(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestLabelsAndDates(t *testing.T) {
	if got := (Offering{2025, 1}).Label(); got != "Semester 1 2025" {
		t.Errorf("Label = %q", got)
	}
	if got := (Offering{2024, 3}).Label(); got != "Summer Semester 2024-2025" {
		t.Errorf("Label = %q", got)
	}

	o, err := ParseID("2024s3")
	if err != nil || o != (Offering{2024, 3}) {
		t.Errorf("ParseID = %v, %v", o, err)
	}
	if _, err := ParseID("2024S4"); err == nil {
		t.Error("ParseID(2024S4) succeeded")
	}

	start, end := DateRange(Offering{2024, 3}, time.UTC)
	if !start.Equal(time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)) || !end.Equal(time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("DateRange(2024S3) = %v, %v", start, end)
	}
}
