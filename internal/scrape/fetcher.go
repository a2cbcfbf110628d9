// Package scrape fetches assessment tables from the university course
// profile site.
package scrape

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/uqmarks/uqmarks/internal/course"
)

const (
	DefaultDirectoryBase = "https://my.uq.edu.au"
	DefaultProfileBase   = "https://course-profiles.uq.edu.au"
	DefaultArchiveBase   = "https://archive.course-profiles.uq.edu.au"

	DefaultTimeout   = 20 * time.Second
	DefaultRate      = 2.0
	DefaultBurst     = 4
	DefaultUserAgent = "uqmarks/1.0"
)

// Options configures a Fetcher. Zero values take the defaults above.
type Options struct {
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	UserAgent     string

	DirectoryBase string
	ProfileBase   string
	ArchiveBase   string

	Logger *slog.Logger
}

// Fetcher performs at most two page fetches per call and keeps no state
// between calls other than its outbound rate limiter.
type Fetcher struct {
	client  *resty.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	directoryBase string
	profileBase   string
	archiveBase   string
}

func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = DefaultRate
	}
	if opts.Burst <= 0 {
		opts.Burst = DefaultBurst
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent)

	return &Fetcher{
		client:        client,
		limiter:       rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		logger:        opts.Logger,
		directoryBase: strings.TrimRight(orDefault(opts.DirectoryBase, DefaultDirectoryBase), "/"),
		profileBase:   strings.TrimRight(orDefault(opts.ProfileBase, DefaultProfileBase), "/"),
		archiveBase:   strings.TrimRight(orDefault(opts.ArchiveBase, DefaultArchiveBase), "/"),
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Fetch returns the normalized assessment table of one offering.
//
// With an empty section the course directory is consulted to find the
// offering's profile. A non-empty section skips the directory and the
// fetched profile must describe the requested offering.
//
// Confirmed answers from the site are returned as *course.Error with kind
// CourseNotFound, WrongSemester or IncorrectCourseProfile. Every other
// error is an upstream failure.
func (f *Fetcher) Fetch(ctx context.Context, k course.Key, section string) (course.Table, error) {
	layout := LayoutFor(k.Year, k.Semester)

	hinted := section != ""
	if hinted {
		if !layout.accepts(section, k.Code) {
			return nil, &course.Error{Kind: course.IncorrectCourseProfile, Key: k,
				Err: fmt.Errorf("section %q does not fit the %s layout", section, layout)}
		}
	} else {
		var err error
		section, err = f.discover(ctx, k)
		if err != nil {
			return nil, err
		}
		if !layout.accepts(section, k.Code) {
			return nil, fmt.Errorf("directory links %s to unexpected section %q", k, section)
		}
	}

	f.logger.Debug("fetching course profile", "code", k.Code, "semester", k.Semester, "year", k.Year,
		"layout", layout.String(), "section", section)

	var (
		rows []RawRow
		err  error
	)
	switch layout {
	case LayoutLegacy:
		rows, err = f.fetchLegacy(ctx, k, section, hinted)
	default:
		rows, err = f.fetchModern(ctx, k, section, hinted)
	}
	if err != nil {
		return nil, err
	}

	table := Normalize(rows)
	if len(table) == 0 {
		return nil, fmt.Errorf("no assessment rows on profile %s", section)
	}
	return table, nil
}

func (f *Fetcher) discover(ctx context.Context, k course.Key) (string, error) {
	u := f.directoryBase + "/programs-courses/course.html?course_code=" + url.QueryEscape(k.Code)
	doc, status, err := f.get(ctx, u)
	if status == http.StatusNotFound {
		return "", &course.Error{Kind: course.CourseNotFound, Key: k, Err: errors.New("directory returned 404")}
	}
	if err != nil {
		return "", fmt.Errorf("fetching course directory: %w", err)
	}

	section, matched, err := findSection(doc, k.Semester, k.Year)
	switch {
	case errors.Is(err, errNoListing):
		return "", &course.Error{Kind: course.CourseNotFound, Key: k, Err: err}
	case err != nil:
		return "", err
	case !matched:
		return "", &course.Error{Kind: course.WrongSemester, Key: k}
	}
	return section, nil
}

func (f *Fetcher) fetchModern(ctx context.Context, k course.Key, section string, verify bool) ([]RawRow, error) {
	doc, status, err := f.get(ctx, f.profileBase+"/course-profiles/"+url.PathEscape(section))
	if verify && status == http.StatusNotFound {
		return nil, &course.Error{Kind: course.IncorrectCourseProfile, Key: k, Err: errors.New("profile returned 404")}
	}
	if err != nil {
		return nil, fmt.Errorf("fetching profile %s: %w", section, err)
	}
	if verify && !identityMatches(doc, k.Code, k.Semester, k.Year) {
		return nil, &course.Error{Kind: course.IncorrectCourseProfile, Key: k,
			Err: fmt.Errorf("profile %s describes another offering", section)}
	}
	return modernRows(doc)
}

// fetchLegacy reads section 5 of the archived report, which holds the
// assessment table. When the section came from the caller, section 1 is
// read first to confirm which offering it belongs to.
func (f *Fetcher) fetchLegacy(ctx context.Context, k course.Key, section string, verify bool) ([]RawRow, error) {
	if verify {
		doc, status, err := f.get(ctx, f.archiveBase+"/student_section_loader/section_1/"+section)
		if status == http.StatusNotFound {
			return nil, &course.Error{Kind: course.IncorrectCourseProfile, Key: k, Err: errors.New("profile returned 404")}
		}
		if err != nil {
			return nil, fmt.Errorf("fetching profile summary %s: %w", section, err)
		}
		if !identityMatches(doc, k.Code, k.Semester, k.Year) {
			return nil, &course.Error{Kind: course.IncorrectCourseProfile, Key: k,
				Err: fmt.Errorf("profile %s describes another offering", section)}
		}
	}

	doc, _, err := f.get(ctx, f.archiveBase+"/student_section_loader/section_5/"+section)
	if err != nil {
		return nil, fmt.Errorf("fetching assessment section %s: %w", section, err)
	}
	rows := legacyRows(doc)
	if len(rows) == 0 {
		return nil, fmt.Errorf("assessment table not found")
	}
	return rows, nil
}

// get waits for the politeness limiter, fetches u and parses the body. The
// status code is returned even when err is non-nil so callers can tell a
// missing page from a failing site.
func (f *Fetcher) get(ctx context.Context, u string) (*goquery.Document, int, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}
	res, err := f.client.R().SetContext(ctx).Get(u)
	if err != nil {
		return nil, 0, err
	}
	if res.IsError() {
		return nil, res.StatusCode(), fmt.Errorf("GET %s: status %d", u, res.StatusCode())
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, res.StatusCode(), fmt.Errorf("parsing %s: %w", u, err)
	}
	return doc, res.StatusCode(), nil
}
