package course

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/uqmarks/uqmarks/internal/storage"
)

// Store is the durable course cache.
type Store interface {
	GetCourse(ctx context.Context, code string, semester, year int) (storage.Course, error)
	InsertCourse(ctx context.Context, c storage.Course) (bool, error)
}

// Fetcher scrapes one offering. An empty section asks the fetcher to find
// the offering through the course directory.
type Fetcher interface {
	Fetch(ctx context.Context, k Key, section string) (Table, error)
}

// SemesterChecker reports whether an offering is in the semester catalog.
type SemesterChecker interface {
	Known(ctx context.Context, year, semester int) (bool, error)
}

// EventSink records one search event per resolution attempt.
type EventSink interface {
	RecordSearch(ctx context.Context, k Key) error
}

// Notifier receives best-effort notices about scrapes.
type Notifier interface {
	CourseScraped(ctx context.Context, k Key) error
	ScrapeFailed(ctx context.Context, k Key, cause error) error
}

const (
	DefaultMemoSize = 4096
	DefaultMemoTTL  = 24 * time.Hour

	// DefaultScrapeTimeout bounds a shared scrape, which outlives the
	// request that started it.
	DefaultScrapeTimeout = 2 * time.Minute
)

// Resolver turns a course key into its assessment table. It is safe for
// concurrent use.
type Resolver struct {
	store        Store
	fetcher      Fetcher
	semesters    SemesterChecker
	events       EventSink
	notifier     Notifier
	logger       *slog.Logger
	autoDiscover bool

	scrapeTimeout time.Duration

	memoSize int
	memoTTL  time.Duration
	memo     *expirable.LRU[Key, Table]
	group    singleflight.Group
}

type Option func(*Resolver)

// WithSemesters restricts resolution to offerings in the catalog.
func WithSemesters(c SemesterChecker) Option {
	return func(r *Resolver) { r.semesters = c }
}

func WithEventSink(s EventSink) Option {
	return func(r *Resolver) { r.events = s }
}

func WithNotifier(n Notifier) Option {
	return func(r *Resolver) { r.notifier = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithMemo sizes the in-memory memo of resolved tables.
func WithMemo(size int, ttl time.Duration) Option {
	return func(r *Resolver) {
		r.memoSize = size
		r.memoTTL = ttl
	}
}

// WithAutoDiscover lets a cache miss without a section hint be resolved
// through the course directory instead of failing with CourseMissing.
func WithAutoDiscover(on bool) Option {
	return func(r *Resolver) { r.autoDiscover = on }
}

// WithScrapeTimeout bounds one shared scrape. Zero keeps the default.
func WithScrapeTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.scrapeTimeout = d
		}
	}
}

func NewResolver(store Store, fetcher Fetcher, opts ...Option) *Resolver {
	r := &Resolver{
		store:         store,
		fetcher:       fetcher,
		logger:        slog.Default(),
		memoSize:      DefaultMemoSize,
		memoTTL:       DefaultMemoTTL,
		scrapeTimeout: DefaultScrapeTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	if r.memoSize <= 0 {
		r.memoSize = DefaultMemoSize
	}
	r.memo = expirable.NewLRU[Key, Table](r.memoSize, nil, r.memoTTL)
	return r
}

// Lookup is the boundary entry point. It parses raw user input, extracts
// the section identifier from profileURL when one is given, and resolves.
// The parsed key is returned alongside the table for building responses.
func (r *Resolver) Lookup(ctx context.Context, code, semesterID, profileURL string) (Key, Table, error) {
	k, err := ParseKey(code, semesterID)
	if err != nil {
		return Key{}, nil, err
	}
	if err := r.validate(ctx, k); err != nil {
		return k, nil, err
	}

	var section string
	if profileURL != "" {
		section, err = SectionFromURL(k, profileURL)
		if err != nil {
			r.recordSearch(ctx, k)
			return k, nil, err
		}
	}

	t, err := r.Resolve(ctx, k, section)
	return k, t, err
}

// Resolve returns the assessment table of k. Tables come from the memo,
// then the store, and only then from the site, in which case the scrape is
// stored once. Without a section and with directory discovery off, a store
// miss fails with CourseMissing.
//
// Every call that passes validation records one search event.
func (r *Resolver) Resolve(ctx context.Context, k Key, section string) (Table, error) {
	if err := r.validate(ctx, k); err != nil {
		return nil, err
	}
	defer r.recordSearch(ctx, k)

	if t, ok := r.memo.Get(k); ok {
		return t.clone(), nil
	}

	c, err := r.store.GetCourse(ctx, k.Code, k.Semester, k.Year)
	switch {
	case err == nil:
		t, err := UnmarshalStored(c.Assessments)
		if err != nil {
			return nil, r.upstream(ctx, k, err)
		}
		r.memo.Add(k, t)
		return t.clone(), nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, r.upstream(ctx, k, fmt.Errorf("reading course cache: %w", err))
	}

	if section == "" && !r.autoDiscover {
		return nil, &Error{Kind: CourseMissing, Key: k}
	}

	// The scrape is shared by every caller waiting on the key, so it runs
	// detached from any one of them. Each caller still stops waiting when
	// its own context ends.
	ch := r.group.DoChan(k.String()+"#"+section, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.scrapeTimeout)
		defer cancel()
		return r.scrape(sctx, k, section)
	})
	select {
	case <-ctx.Done():
		r.logger.Debug("caller left before scrape finished", "code", k.Code, "semester", k.Semester, "year", k.Year, "error", ctx.Err())
		return nil, &Error{Kind: UpstreamUnavailable, Key: k, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Table).clone(), nil
	}
}

// Forget drops k from the memo.
func (r *Resolver) Forget(k Key) {
	r.memo.Remove(k)
}

func (r *Resolver) validate(ctx context.Context, k Key) error {
	if err := k.Validate(); err != nil {
		return err
	}
	if r.semesters == nil {
		return nil
	}
	ok, err := r.semesters.Known(ctx, k.Year, k.Semester)
	if err != nil {
		return r.upstream(ctx, k, fmt.Errorf("loading semester catalog: %w", err))
	}
	if !ok {
		return &Error{Kind: InvalidInput, Key: k, Err: fmt.Errorf("semester %s is not in the catalog", k.SemesterID())}
	}
	return nil
}

func (r *Resolver) scrape(ctx context.Context, k Key, section string) (Table, error) {
	t, err := r.fetcher.Fetch(ctx, k, section)
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) && ce.Kind != UpstreamUnavailable {
			ce.Key = k
			return nil, ce
		}
		return nil, r.upstream(ctx, k, err)
	}
	if len(t) == 0 {
		return nil, r.upstream(ctx, k, errors.New("scrape returned an empty table"))
	}

	stored, err := t.MarshalStored()
	if err != nil {
		return nil, r.upstream(ctx, k, err)
	}
	inserted, err := r.store.InsertCourse(ctx, storage.Course{
		Code:        k.Code,
		Semester:    k.Semester,
		Year:        k.Year,
		Assessments: stored,
	})
	switch {
	case err != nil:
		r.logger.Error("storing course", "code", k.Code, "semester", k.Semester, "year", k.Year, "error", err)
	case inserted:
		r.logger.Info("course scraped", "code", k.Code, "semester", k.Semester, "year", k.Year, "items", len(t))
		if r.notifier != nil {
			if err := r.notifier.CourseScraped(context.WithoutCancel(ctx), k); err != nil {
				r.logger.Warn("notifying course scraped", "code", k.Code, "error", err)
			}
		}
	}

	r.memo.Add(k, t)
	return t, nil
}

// upstream logs an unclassified failure with its full context and wraps it
// as UpstreamUnavailable.
func (r *Resolver) upstream(ctx context.Context, k Key, err error) error {
	if errors.Is(err, context.Canceled) {
		r.logger.Debug("course resolution cancelled", "code", k.Code, "semester", k.Semester, "year", k.Year)
		return &Error{Kind: UpstreamUnavailable, Key: k, Err: err}
	}
	r.logger.Error("course resolution failed", "code", k.Code, "semester", k.Semester, "year", k.Year, "error", err)
	if r.notifier != nil {
		if nerr := r.notifier.ScrapeFailed(context.WithoutCancel(ctx), k, err); nerr != nil {
			r.logger.Warn("notifying scrape failure", "code", k.Code, "error", nerr)
		}
	}
	return &Error{Kind: UpstreamUnavailable, Key: k, Err: err}
}

func (r *Resolver) recordSearch(ctx context.Context, k Key) {
	if r.events == nil {
		return
	}
	if err := r.events.RecordSearch(context.WithoutCancel(ctx), k); err != nil {
		r.logger.Warn("recording search", "code", k.Code, "semester", k.Semester, "year", k.Year, "error", err)
	}
}
