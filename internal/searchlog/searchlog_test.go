package searchlog

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/uqmarks/uqmarks/internal/course"
	"github.com/uqmarks/uqmarks/internal/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

const sampleLog = `1700000000|CSSE1001|2|2023
1700000060|math1051|2|2023

1700000120|CSSE1001|2|2023
1700000180||0|0|page_load
`

func TestImportExport(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	n, err := Import(ctx, strings.NewReader(sampleLog), store)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if n != 4 {
		t.Fatalf("imported %d events, want 4", n)
	}

	events, err := store.ListSearches(ctx, storage.SearchQuery{Code: "MATH1051"})
	if err != nil {
		t.Fatalf("ListSearches: %v", err)
	}
	if len(events) != 1 || !events[0].Timestamp.Equal(time.Unix(1700000060, 0)) {
		t.Errorf("MATH1051 events = %+v", events)
	}

	var buf bytes.Buffer
	if _, err := Export(ctx, &buf, store, storage.SearchQuery{}); err != nil {
		t.Fatalf("Export: %v", err)
	}
	want := "1700000000|CSSE1001|2|2023\n" +
		"1700000060|MATH1051|2|2023\n" +
		"1700000120|CSSE1001|2|2023\n" +
		"1700000180||0|0|page_load\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("export mismatch (-want +got):\n%s", diff)
	}

	buf.Reset()
	if n, _ := Export(ctx, &buf, store, storage.SearchQuery{Type: storage.EventSearch}); n != 3 {
		t.Errorf("search-only export = %d lines, want 3", n)
	}
}

func TestImport_MalformedLineWritesNothing(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	in := "1700000000|CSSE1001|2|2023\n\n1700000060|CSSE1001|two|2023\n"
	_, err := Import(ctx, strings.NewReader(in), store)
	if err == nil || !strings.Contains(err.Error(), "line 3") {
		t.Fatalf("err = %v, want line 3 error", err)
	}
	if n, _ := store.CountSearches(ctx); n != 0 {
		t.Errorf("store has %d events after failed import", n)
	}
}

func TestImport_Batches(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 1203; i++ {
		sb.WriteString(FormatLine(storage.SearchEvent{Timestamp: time.Unix(int64(1700000000+i), 0), Code: "CSSE1001", Semester: 1, Year: 2024}))
		sb.WriteString("\n")
	}
	rec := &batchRecorder{}
	n, err := Import(context.Background(), strings.NewReader(sb.String()), rec)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if n != 1203 {
		t.Errorf("n = %d", n)
	}
	if diff := cmp.Diff([]int{500, 500, 203}, rec.sizes); diff != "" {
		t.Errorf("batch sizes (-want +got):\n%s", diff)
	}
}

type batchRecorder struct{ sizes []int }

func (b *batchRecorder) AppendSearches(_ context.Context, events []storage.SearchEvent) error {
	b.sizes = append(b.sizes, len(events))
	return nil
}

func TestParseLine_Errors(t *testing.T) {
	for _, line := range []string{
		"1700000000|CSSE1001|2",
		"abc|CSSE1001|2|2023",
		"1700000000|CSSE1001|2|twenty",
		"1700000000|CSSE1001|2|2023|download",
	} {
		if _, err := ParseLine(line); err == nil {
			t.Errorf("ParseLine(%q) succeeded", line)
		}
	}

	_, err := ParseLine("1700000000|CSSE1001|2|2023|search|extra")
	if err == nil || !strings.Contains(err.Error(), "want 4 or 5 fields, got 6") {
		t.Errorf("field count error = %v", err)
	}
}

type mockNotifier struct {
	searches int
	quizzes  int
	err      error
}

func (m *mockNotifier) SearchLogged(context.Context, course.Key) error {
	m.searches++
	return m.err
}

func (m *mockNotifier) QuizOpened(context.Context) error {
	m.quizzes++
	return m.err
}

func TestRecorder(t *testing.T) {
	store := openTestStore(t)
	notifier := &mockNotifier{err: errors.New("webhook down")}
	r := NewRecorder(store, notifier)
	r.now = func() time.Time { return time.Unix(1700000000, 0) }
	ctx := context.Background()

	if err := r.RecordSearch(ctx, course.Key{Code: "CSSE1001", Semester: 1, Year: 2025}); err != nil {
		t.Fatalf("RecordSearch: %v", err)
	}
	if err := r.RecordEvent(ctx, storage.EventQuiz); err != nil {
		t.Fatalf("RecordEvent(quiz): %v", err)
	}
	if err := r.RecordEvent(ctx, storage.EventPageLoad); err != nil {
		t.Fatalf("RecordEvent(page_load): %v", err)
	}
	if err := r.RecordEvent(ctx, storage.EventSearch); err == nil {
		t.Error("RecordEvent(search) succeeded")
	}

	events, err := store.ListSearches(ctx, storage.SearchQuery{})
	if err != nil {
		t.Fatalf("ListSearches: %v", err)
	}
	var types []storage.EventType
	for _, e := range events {
		types = append(types, e.Type)
	}
	want := []storage.EventType{storage.EventSearch, storage.EventQuiz, storage.EventPageLoad}
	if diff := cmp.Diff(want, types); diff != "" {
		t.Errorf("event types (-want +got):\n%s", diff)
	}
	if notifier.searches != 1 || notifier.quizzes != 1 {
		t.Errorf("notices: searches=%d quizzes=%d", notifier.searches, notifier.quizzes)
	}
}
