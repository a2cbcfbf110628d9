// Package api exposes course lookups, the semester list, client events and
// search analytics over HTTP, plus the same lookups as MCP tools.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/uqmarks/uqmarks/internal/analytics"
	"github.com/uqmarks/uqmarks/internal/course"
	"github.com/uqmarks/uqmarks/internal/semester"
	"github.com/uqmarks/uqmarks/internal/storage"
)

const maxRequestBodySize = 1 << 10 // events carry a single field

// CourseLookup resolves raw user input to an assessment table.
type CourseLookup interface {
	Lookup(ctx context.Context, code, semesterID, profileURL string) (course.Key, course.Table, error)
}

// SemesterLister returns the current semester catalog, newest first.
type SemesterLister interface {
	Semesters(ctx context.Context) ([]semester.Offering, error)
}

// EventRecorder records non-search client events.
type EventRecorder interface {
	RecordEvent(ctx context.Context, typ storage.EventType) error
}

// Analytics computes dashboard aggregates over the search log.
type Analytics interface {
	TimeSeries(ctx context.Context, f analytics.Filter) ([]analytics.Bucket, error)
	TopCodes(ctx context.Context, f analytics.Filter, n int) (analytics.Ranking, error)
	Heatmap(ctx context.Context, f analytics.Filter) (analytics.Heatmap, error)
	Summarize(ctx context.Context, f analytics.Filter, k int) (analytics.Summary, error)
}

// Deps holds what the HTTP handler needs. Location and Now default to UTC
// and time.Now; Limits defaults to DefaultLimits.
type Deps struct {
	Courses   CourseLookup
	Semesters SemesterLister
	Events    EventRecorder
	Analytics Analytics
	Location  *time.Location
	Now       func() time.Time
	Limits    *Limits
	Logger    *slog.Logger
}

func (d *Deps) setDefaults() {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Limits == nil {
		l := DefaultLimits
		d.Limits = &l
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
}

// NewHandler returns the HTTP API.
func NewHandler(deps Deps) http.Handler {
	deps.setDefaults()

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.With(RateLimit(deps.Limits.Semesters)).Get("/semesters/", handleSemesters(deps))
		r.With(RateLimit(deps.Limits.GetCourse)).Get("/getcourse/", handleGetCourse(deps))
		r.Post("/events/", handleEvent(deps))

		r.Route("/analytics", func(r chi.Router) {
			r.Use(RateLimit(deps.Limits.Analytics))
			r.Get("/timeseries", handleTimeSeries(deps))
			r.Get("/top", handleTop(deps))
			r.Get("/heatmap", handleHeatmap(deps))
			r.Get("/summary", handleSummary(deps))
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// SemesterOption is one entry of the semester selector.
type SemesterOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

func semesterOptions(list []semester.Offering) []SemesterOption {
	out := make([]SemesterOption, len(list))
	for i, o := range list {
		out[i] = SemesterOption{Value: o.ID(), Label: o.Label()}
	}
	return out
}

func handleSemesters(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := deps.Semesters.Semesters(r.Context())
		if err != nil {
			deps.Logger.Error("listing semesters", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list semesters")
			return
		}
		writeJSON(w, http.StatusOK, semesterOptions(list))
	}
}

// CourseResponse is the body of a successful lookup.
type CourseResponse struct {
	Success         bool         `json:"success"`
	CourseCode      string       `json:"courseCode"`
	SemesterID      string       `json:"semesterId"`
	AssessmentItems course.Table `json:"assessmentItems"`
}

// CourseErrorResponse is the body of a failed lookup. ShowURLRequest asks
// the client to prompt for a course profile URL.
type CourseErrorResponse struct {
	Success        bool   `json:"success"`
	Error          string `json:"error"`
	ShowURLRequest bool   `json:"showURLRequest"`
}

func handleGetCourse(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		k, table, err := deps.Courses.Lookup(r.Context(), q.Get("courseCode"), q.Get("semesterId"), q.Get("courseProfileUrl"))
		if err != nil {
			var ce *course.Error
			if !errors.As(err, &ce) {
				ce = &course.Error{Kind: course.UpstreamUnavailable, Key: k, Err: err}
			}
			status := http.StatusBadRequest
			if ce.Kind == course.CourseMissing {
				status = http.StatusNotFound
			}
			if ce.Kind == course.UpstreamUnavailable {
				deps.Logger.Warn("course lookup failed", "code", k.Code, "semester", k.Semester, "year", k.Year, "error", err)
			}
			writeJSON(w, status, CourseErrorResponse{
				Error:          ce.UserMessage(),
				ShowURLRequest: ce.NeedsProfileURL(),
			})
			return
		}

		if table == nil {
			table = course.Table{}
		}
		writeJSON(w, http.StatusOK, CourseResponse{
			Success:         true,
			CourseCode:      k.Code,
			SemesterID:      k.SemesterID(),
			AssessmentItems: table,
		})
	}
}

type eventRequest struct {
	Type storage.EventType `json:"type"`
}

func handleEvent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req eventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Type != storage.EventPageLoad && req.Type != storage.EventQuiz {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "type must be %q or %q", storage.EventPageLoad, storage.EventQuiz)
			return
		}
		if err := deps.Events.RecordEvent(r.Context(), req.Type); err != nil {
			deps.Logger.Error("recording event", "type", string(req.Type), "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to record event")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
	}
}

// filterFromQuery reads dashboard controls from the query string.
func filterFromQuery(deps Deps, r *http.Request) (analytics.Filter, error) {
	q := r.URL.Query()
	lock, _ := strconv.ParseBool(q.Get("lock"))
	return analytics.ParseFilter(analytics.Params{
		Start:    q.Get("start"),
		End:      q.Get("end"),
		Range:    q.Get("range"),
		Semester: q.Get("semester"),
		Lock:     lock,
		Code:     q.Get("code"),
		Interval: q.Get("interval"),
	}, deps.Now(), deps.Location)
}

// analyticsHandler parses the filter and writes whatever compute returns.
func analyticsHandler(deps Deps, compute func(r *http.Request, f analytics.Filter) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := filterFromQuery(deps, r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		v, err := compute(r, f)
		if err != nil {
			deps.Logger.Error("computing analytics", "path", r.URL.Path, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to compute analytics")
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handleTimeSeries(deps Deps) http.HandlerFunc {
	return analyticsHandler(deps, func(r *http.Request, f analytics.Filter) (any, error) {
		buckets, err := deps.Analytics.TimeSeries(r.Context(), f)
		if buckets == nil {
			buckets = []analytics.Bucket{}
		}
		return buckets, err
	})
}

func handleTop(deps Deps) http.HandlerFunc {
	return analyticsHandler(deps, func(r *http.Request, f analytics.Filter) (any, error) {
		ranking, err := deps.Analytics.TopCodes(r.Context(), f, parseIntParam(r, "n", 10, 1000))
		if ranking.Rows == nil {
			ranking.Rows = []analytics.RankedCode{}
		}
		return ranking, err
	})
}

func handleHeatmap(deps Deps) http.HandlerFunc {
	return analyticsHandler(deps, func(r *http.Request, f analytics.Filter) (any, error) {
		return deps.Analytics.Heatmap(r.Context(), f)
	})
}

func handleSummary(deps Deps) http.HandlerFunc {
	return analyticsHandler(deps, func(r *http.Request, f analytics.Filter) (any, error) {
		return deps.Analytics.Summarize(r.Context(), f, parseIntParam(r, "k", analytics.DefaultTopK, 1000))
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}
