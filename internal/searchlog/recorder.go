package searchlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/uqmarks/uqmarks/internal/course"
	"github.com/uqmarks/uqmarks/internal/storage"
)

// EventStore appends a single event.
type EventStore interface {
	AppendSearch(ctx context.Context, e storage.SearchEvent) error
}

// Notifier announces recorded events. Failures are logged only.
type Notifier interface {
	SearchLogged(ctx context.Context, k course.Key) error
	QuizOpened(ctx context.Context) error
}

// Recorder is the live event sink used by the resolver and the events
// endpoint.
type Recorder struct {
	store    EventStore
	notifier Notifier
	now      func() time.Time
	logger   *slog.Logger
}

func NewRecorder(store EventStore, notifier Notifier) *Recorder {
	return &Recorder{store: store, notifier: notifier, now: time.Now, logger: slog.Default()}
}

// RecordSearch appends a search event for k. The returned error covers the
// store write only.
func (r *Recorder) RecordSearch(ctx context.Context, k course.Key) error {
	err := r.store.AppendSearch(ctx, storage.SearchEvent{
		Timestamp: r.now(),
		Code:      k.Code,
		Semester:  k.Semester,
		Year:      k.Year,
		Type:      storage.EventSearch,
	})
	if r.notifier != nil {
		if nerr := r.notifier.SearchLogged(ctx, k); nerr != nil {
			r.logger.Warn("notifying search", "code", k.Code, "error", nerr)
		}
	}
	return err
}

// RecordEvent appends a page_load or quiz event.
func (r *Recorder) RecordEvent(ctx context.Context, typ storage.EventType) error {
	if typ == storage.EventSearch || !typ.Valid() {
		return fmt.Errorf("unsupported event type %q", typ)
	}
	if err := r.store.AppendSearch(ctx, storage.SearchEvent{Timestamp: r.now(), Type: typ}); err != nil {
		return fmt.Errorf("recording %s event: %w", typ, err)
	}
	if typ == storage.EventQuiz && r.notifier != nil {
		if err := r.notifier.QuizOpened(ctx); err != nil {
			r.logger.Warn("notifying quiz", "error", err)
		}
	}
	return nil
}
