package scrape

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var errNoListing = errors.New("directory page has no offering rows")

// deliveryMarkers are the campus or delivery-mode words an offering row must
// carry to count as a regular offering.
var deliveryMarkers = []string{
	"Internal",
	"In Person",
	"Flexible Delivery",
	"St Lucia",
	"Gatton",
	"Herston",
}

// termPatterns match how pages name a semester, without the year. The word
// boundary keeps "Semester 2" from matching "Summer Semester 2024".
var termPatterns = map[int]*regexp.Regexp{
	1: regexp.MustCompile(`\bSemester 1\b`),
	2: regexp.MustCompile(`\bSemester 2\b`),
	3: regexp.MustCompile(`\bSummer Semester\b`),
}

func mentionsTerm(text string, semester int) bool {
	re, ok := termPatterns[semester]
	return ok && re.MatchString(text)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// offeringRow reports whether the text of a directory row describes an
// available offering in the given term.
func offeringRow(text string, semester, year int) bool {
	if !strings.Contains(text, strconv.Itoa(year)) || !mentionsTerm(text, semester) {
		return false
	}
	if strings.Contains(strings.ToLower(text), "unavailable") {
		return false
	}
	for _, m := range deliveryMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// findSection scans the course directory for the requested offering and
// returns the section identifier of its profile link. errNoListing means
// the page lists no offerings at all; matched=false means it lists some
// but none for the requested term.
func findSection(doc *goquery.Document, semester, year int) (section string, matched bool, err error) {
	rows := doc.Find("tr").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Find("td").Length() > 0
	})
	if rows.Length() == 0 {
		return "", false, errNoListing
	}

	rows.EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if !offeringRow(collapse(row.Text()), semester, year) {
			return true
		}
		matched = true
		row.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			if strings.Contains(href, "course-profiles") {
				section = lastSegment(href)
				return false
			}
			return true
		})
		return section == ""
	})

	if matched && section == "" {
		return "", true, fmt.Errorf("offering row has no course profile link")
	}
	return section, matched, nil
}

func lastSegment(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	seg := path.Base(strings.TrimRight(u.Path, "/"))
	if seg == "." || seg == "/" {
		return ""
	}
	return seg
}

// identityMatches checks that a profile page describes the expected
// offering. The page title and top headings must name the course code,
// the term and the year.
func identityMatches(doc *goquery.Document, code string, semester, year int) bool {
	var parts []string
	doc.Find("title, h1, h2, header").Each(func(_ int, s *goquery.Selection) {
		parts = append(parts, collapse(s.Text()))
	})
	text := strings.Join(parts, " ")
	return strings.Contains(strings.ToUpper(text), code) &&
		mentionsTerm(text, semester) &&
		strings.Contains(text, strconv.Itoa(year))
}

// legacyRows reads the archived report table. Every assessment occupies four
// centred cells: task, due date, weight and learning objectives.
func legacyRows(doc *goquery.Document) []RawRow {
	var cells []*html.Node
	doc.Find("td.text-center").Each(func(_ int, s *goquery.Selection) {
		cells = append(cells, s.Nodes[0])
	})

	rows := make([]RawRow, 0, len(cells)/4)
	for i := 0; i+4 <= len(cells); i += 4 {
		task := legacyTask(cells[i])
		weight := collapse(nodeText(cells[i+2]))
		rows = append(rows, RawRow{Task: task, Weight: weight, NullWeight: weight == ""})
	}
	return rows
}

// legacyTask joins the emphasised qualifier of a task cell to the task name
// with the qualifier separator.
func legacyTask(cell *html.Node) string {
	var qualifier, name strings.Builder
	var walk func(n *html.Node, inEm bool)
	walk = func(n *html.Node, inEm bool) {
		if n.Type == html.TextNode {
			if inEm {
				qualifier.WriteString(n.Data)
			} else {
				name.WriteString(n.Data)
			}
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Em {
			inEm = true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inEm)
		}
	}
	walk(cell, false)

	q, t := collapse(qualifier.String()), collapse(name.String())
	if q == "" {
		return t
	}
	return q + qualifierSeparator + t
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// modernRows reads the assessment table of a current profile page. Columns
// are located by header text; category and due date columns are ignored.
func modernRows(doc *goquery.Document) ([]RawRow, error) {
	var (
		rows  []RawRow
		found bool
	)
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		taskCol, weightCol := -1, -1
		table.Find("tr").First().Find("th, td").Each(func(i int, th *goquery.Selection) {
			h := strings.ToLower(collapse(th.Text()))
			switch {
			case taskCol < 0 && strings.Contains(h, "assessment task"):
				taskCol = i
			case weightCol < 0 && strings.HasPrefix(h, "weight"):
				weightCol = i
			}
		})
		if taskCol < 0 || weightCol < 0 {
			return true
		}
		found = true

		table.Find("tr").Slice(1, goquery.ToEnd).Each(func(_ int, tr *goquery.Selection) {
			cells := tr.Find("td")
			if cells.Length() <= taskCol || cells.Length() <= weightCol {
				return
			}
			task := collapse(cells.Eq(taskCol).Text())
			weight := collapse(cells.Eq(weightCol).Text())
			rows = append(rows, RawRow{Task: task, Weight: weight, NullWeight: weight == ""})
		})
		return false
	})
	if !found {
		return nil, fmt.Errorf("assessment table not found")
	}
	return rows, nil
}
