// Package semester keeps the catalog of known teaching periods.
//
// The catalog is persisted newest first and grows by one entry at the
// start of each semester. Reads are served from memory for a freshness
// window; the rollover rule is re-evaluated whenever the window lapses.
package semester

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/uqmarks/uqmarks/internal/storage"
)

// Store persists the catalog.
type Store interface {
	LoadSemesters(ctx context.Context) ([]storage.Semester, error)
	SaveSemesters(ctx context.Context, list []storage.Semester) error
}

// Catalog is safe for concurrent use.
type Catalog struct {
	store  Store
	seed   []Offering
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	cached   []Offering
	loadedAt time.Time
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) { c.now = now }
}

// WithSeed sets the entries written when the store holds no catalog yet.
func WithSeed(seed ...Offering) Option {
	return func(c *Catalog) { c.seed = seed }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) { c.logger = l }
}

// NewCatalog creates a catalog backed by store.
func NewCatalog(store Store, opts ...Option) *Catalog {
	c := &Catalog{
		store:  store,
		seed:   []Offering{{Year: 2023, Semester: 1}},
		ttl:    24 * time.Hour,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Semesters returns the catalog newest first. When the in-memory copy is
// cold or older than the TTL it is reloaded from the store and the rollover
// rule is applied.
func (c *Catalog) Semesters(ctx context.Context) ([]Offering, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && c.now().Sub(c.loadedAt) < c.ttl {
		return cloneOfferings(c.cached), nil
	}
	if _, err := c.refreshLocked(ctx); err != nil {
		return nil, err
	}
	return cloneOfferings(c.cached), nil
}

// Refresh reloads the catalog and applies the rollover rule regardless of
// the TTL. It reports whether a new offering was prepended.
func (c *Catalog) Refresh(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

// Known reports whether the offering is in the catalog.
func (c *Catalog) Known(ctx context.Context, year, sem int) (bool, error) {
	list, err := c.Semesters(ctx)
	if err != nil {
		return false, err
	}
	for _, o := range list {
		if o.Year == year && o.Semester == sem {
			return true, nil
		}
	}
	return false, nil
}

func (c *Catalog) refreshLocked(ctx context.Context) (bool, error) {
	rows, err := c.store.LoadSemesters(ctx)
	if err != nil {
		return false, fmt.Errorf("loading semesters: %w", err)
	}

	list := make([]Offering, 0, len(rows)+1)
	for _, r := range rows {
		list = append(list, Offering{Year: r.Year, Semester: r.Semester})
	}

	changed := false
	if len(list) == 0 {
		list = append(list, dedupe(c.seed)...)
		changed = len(list) > 0
	}

	added := false
	if len(list) > 0 {
		if target, ok := rolloverTarget(c.now(), list[0]); ok && !contains(list, target) {
			list = append([]Offering{target}, list...)
			added = true
			changed = true
		}
	}

	if changed {
		if err := c.store.SaveSemesters(ctx, toRows(list)); err != nil {
			return false, fmt.Errorf("saving semesters: %w", err)
		}
		if added {
			c.logger.Info("semester catalog rolled over", "semester", list[0].ID())
		}
	}

	c.cached = list
	c.loadedAt = c.now()
	return added, nil
}

func contains(list []Offering, o Offering) bool {
	for _, x := range list {
		if x == o {
			return true
		}
	}
	return false
}

func dedupe(list []Offering) []Offering {
	var out []Offering
	for _, o := range list {
		if !contains(out, o) {
			out = append(out, o)
		}
	}
	return out
}

func toRows(list []Offering) []storage.Semester {
	rows := make([]storage.Semester, len(list))
	for i, o := range list {
		rows[i] = storage.Semester{Year: o.Year, Semester: o.Semester}
	}
	return rows
}

func cloneOfferings(list []Offering) []Offering {
	out := make([]Offering, len(list))
	copy(out, list)
	return out
}
