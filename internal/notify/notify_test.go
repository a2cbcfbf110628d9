package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
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
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type webhook struct {
	mu     sync.Mutex
	status int
	bodies map[string][]Message
}

func newWebhook(t *testing.T) (*webhook, *httptest.Server) {
	t.Helper()
	h := &webhook{status: http.StatusNoContent, bodies: map[string][]Message{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var m Message
		if err := json.Unmarshal(b, &m); err != nil {
			t.Errorf("webhook body is not a message: %s", b)
		}
		h.mu.Lock()
		h.bodies[r.URL.Path] = append(h.bodies[r.URL.Path], m)
		status := h.status
		h.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return h, srv
}

// resetRunAfter makes a backed-off job claimable again.
func resetRunAfter(t *testing.T, store *storage.Store, jobID string) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := store.DB().Exec(`UPDATE jobs SET run_after = ? WHERE id = ?`, now, jobID); err != nil {
		t.Fatalf("resetRunAfter: %v", err)
	}
}

func TestQueueAndDeliver(t *testing.T) {
	store := openTestStore(t)
	hook, srv := newWebhook(t)
	cfg := Config{
		Enabled:         true,
		WebhookURL:      srv.URL + "/log",
		ErrorWebhookURL: srv.URL + "/error",
		ManagerID:       "42",
	}
	q := NewQueue(store, cfg)
	w := NewWorker(store, cfg, 10*time.Millisecond)
	ctx := context.Background()
	k := course.Key{Code: "CSSE1001", Semester: 1, Year: 2025}

	if err := q.CourseScraped(ctx, k); err != nil {
		t.Fatalf("CourseScraped: %v", err)
	}
	if err := q.ScrapeFailed(ctx, k, errors.New("parse failure")); err != nil {
		t.Fatalf("ScrapeFailed: %v", err)
	}

	for i := 0; i < 2; i++ {
		done, err := w.RunOnce(ctx)
		if err != nil || !done {
			t.Fatalf("RunOnce #%d = %v, %v", i, done, err)
		}
	}
	if done, _ := w.RunOnce(ctx); done {
		t.Error("queue should be empty")
	}

	wantLog := []Message{{
		Username: "UQmarks",
		Embeds:   []Embed{{Title: "CSSE1001 - NEW CODE", Description: "Semester 1 2025"}},
	}}
	if diff := cmp.Diff(wantLog, hook.bodies["/log"]); diff != "" {
		t.Errorf("log channel (-want +got):\n%s", diff)
	}
	wantErr := []Message{{
		Content:  "<@42> An error has occurred!",
		Username: "UQmarks",
		Embeds:   []Embed{{Title: "Input: CSSE1001 | 1 | 2025", Description: "parse failure"}},
	}}
	if diff := cmp.Diff(wantErr, hook.bodies["/error"]); diff != "" {
		t.Errorf("error channel (-want +got):\n%s", diff)
	}
}

func TestQueue_DisabledOrUnconfigured(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	k := course.Key{Code: "CSSE1001", Semester: 1, Year: 2025}

	for name, cfg := range map[string]Config{
		"disabled":  {Enabled: false, WebhookURL: "http://example.invalid", ErrorWebhookURL: "http://example.invalid"},
		"no urls":   {Enabled: true},
		"log only":  {Enabled: true, WebhookURL: ""},
		"error url": {Enabled: true, ErrorWebhookURL: "http://example.invalid"},
	} {
		q := NewQueue(store, cfg)
		if err := q.SearchLogged(ctx, k); err != nil {
			t.Errorf("%s: SearchLogged: %v", name, err)
		}
		if err := q.QuizOpened(ctx); err != nil {
			t.Errorf("%s: QuizOpened: %v", name, err)
		}
	}

	job, err := store.ClaimNextJob(ctx, []string{JobType})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job != nil {
		t.Errorf("unexpected job queued: %+v", job)
	}
}

func TestWorker_RetriesFailedDelivery(t *testing.T) {
	store := openTestStore(t)
	hook, srv := newWebhook(t)
	hook.status = http.StatusInternalServerError
	cfg := Config{Enabled: true, WebhookURL: srv.URL + "/log"}
	q := NewQueue(store, cfg)
	w := NewWorker(store, cfg, 0)
	ctx := context.Background()

	if err := q.QuizOpened(ctx); err != nil {
		t.Fatalf("QuizOpened: %v", err)
	}

	job, err := store.ClaimNextJob(ctx, []string{JobType})
	if err != nil || job == nil {
		t.Fatalf("ClaimNextJob = %v, %v", job, err)
	}
	// Put the claimed job back so the worker picks it up.
	if _, err := store.DB().Exec(`UPDATE jobs SET status = 'pending' WHERE id = ?`, job.ID); err != nil {
		t.Fatalf("requeue: %v", err)
	}

	if done, err := w.RunOnce(ctx); err != nil || !done {
		t.Fatalf("RunOnce = %v, %v", done, err)
	}
	got, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != storage.JobPending || got.Attempts != 1 || got.LastError == "" {
		t.Errorf("after failure: status=%s attempts=%d last_error=%q", got.Status, got.Attempts, got.LastError)
	}

	hook.mu.Lock()
	hook.status = http.StatusOK
	hook.mu.Unlock()
	resetRunAfter(t, store, job.ID)

	if done, err := w.RunOnce(ctx); err != nil || !done {
		t.Fatalf("second RunOnce = %v, %v", done, err)
	}
	got, _ = store.GetJob(ctx, job.ID)
	if got.Status != storage.JobCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if n := len(hook.bodies["/log"]); n != 2 {
		t.Errorf("webhook calls = %d, want 2", n)
	}
	if hook.bodies["/log"][0].Username != "UQmarks - QUIZ" {
		t.Errorf("username = %q", hook.bodies["/log"][0].Username)
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, Config{}, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
