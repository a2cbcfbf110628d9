package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/uqmarks/uqmarks/internal/storage"
)

// EventLister reads the search log.
type EventLister interface {
	ListSearches(ctx context.Context, q storage.SearchQuery) ([]storage.SearchEvent, error)
}

// Service answers aggregate queries from the store. Each call reads only
// the filter's window.
type Service struct {
	events EventLister
	engine *Engine
}

func NewService(events EventLister, engine *Engine) *Service {
	return &Service{events: events, engine: engine}
}

func (s *Service) Engine() *Engine { return s.engine }

// Report bundles every aggregate for one filter.
type Report struct {
	Filter     Filter   `json:"-"`
	TimeSeries []Bucket `json:"timeSeries"`
	Top        Ranking  `json:"top"`
	Heatmap    Heatmap  `json:"heatmap"`
	Summary    Summary  `json:"summary"`
}

func (s *Service) load(ctx context.Context, f Filter) ([]storage.SearchEvent, error) {
	from, to := s.engine.window(f)
	q := storage.SearchQuery{
		From: from,
		To:   to.Add(-time.Second),
		Type: f.EventType,
	}
	if q.Type == "" {
		q.Type = storage.EventSearch
	}
	if f.Semester != nil {
		q.Year = f.Semester.Year
		q.Semester = f.Semester.Semester
	}
	events, err := s.events.ListSearches(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("loading search log: %w", err)
	}
	return events, nil
}

func (s *Service) TimeSeries(ctx context.Context, f Filter) ([]Bucket, error) {
	events, err := s.load(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.engine.TimeSeries(events, f), nil
}

func (s *Service) TopCodes(ctx context.Context, f Filter, n int) (Ranking, error) {
	events, err := s.load(ctx, f)
	if err != nil {
		return Ranking{}, err
	}
	return s.engine.TopCodes(events, f, n), nil
}

func (s *Service) Heatmap(ctx context.Context, f Filter) (Heatmap, error) {
	events, err := s.load(ctx, f)
	if err != nil {
		return Heatmap{}, err
	}
	return s.engine.Heatmap(events, f), nil
}

func (s *Service) Summarize(ctx context.Context, f Filter, k int) (Summary, error) {
	events, err := s.load(ctx, f)
	if err != nil {
		return Summary{}, err
	}
	return s.engine.Summarize(events, f, k), nil
}

// Report computes every aggregate from a single read of the window.
func (s *Service) Report(ctx context.Context, f Filter, n, k int) (Report, error) {
	events, err := s.load(ctx, f)
	if err != nil {
		return Report{}, err
	}
	return Report{
		Filter:     f,
		TimeSeries: s.engine.TimeSeries(events, f),
		Top:        s.engine.TopCodes(events, f, n),
		Heatmap:    s.engine.Heatmap(events, f),
		Summary:    s.engine.Summarize(events, f, k),
	}, nil
}
