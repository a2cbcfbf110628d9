package scrape

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/uqmarks/uqmarks/internal/course"
)

// RawRow is one assessment row as read from a page, before normalization.
type RawRow struct {
	Task       string
	Weight     string
	NullWeight bool
}

const (
	headerTask = "Assessment Task"
	// qualifierSeparator joins the legacy layout's emphasised qualifier to
	// the real task name.
	qualifierSeparator = " || "
)

// Normalize turns raw rows into a canonical table. Source order is kept.
//
// Rows with a null weight are dropped. When every weight without a percent
// sign is a bare integer and there are several of them, they are an
// implicit equal split and each becomes 100/count; a single bare integer
// just gains its percent sign. Percent weights are cut after the first
// "%". Legacy qualifiers are stripped from task names and header echo rows
// are dropped.
func Normalize(rows []RawRow) course.Table {
	kept := make([]RawRow, 0, len(rows))
	for _, r := range rows {
		if r.NullWeight {
			continue
		}
		r.Task = strings.TrimSpace(r.Task)
		r.Weight = strings.TrimSpace(r.Weight)
		kept = append(kept, r)
	}

	splitBareWeights(kept)

	table := make(course.Table, 0, len(kept))
	for _, r := range kept {
		if i := strings.Index(r.Weight, "%"); i >= 0 {
			r.Weight = r.Weight[:i+1]
		}
		if i := strings.Index(r.Task, qualifierSeparator); i >= 0 {
			r.Task = strings.TrimSpace(r.Task[i+len(qualifierSeparator):])
		}
		if isHeaderEcho(r.Task) {
			continue
		}
		table = append(table, course.Entry{Task: r.Task, Weight: r.Weight})
	}
	return table
}

func splitBareWeights(rows []RawRow) {
	var bare []int
	for i, r := range rows {
		if isHeaderEcho(r.Task) || strings.Contains(r.Weight, "%") {
			continue
		}
		if _, err := strconv.Atoi(r.Weight); err != nil {
			return
		}
		bare = append(bare, i)
	}

	switch len(bare) {
	case 0:
	case 1:
		rows[bare[0]].Weight += "%"
	default:
		share := fmt.Sprintf("%.2f%%", 100/float64(len(bare)))
		for _, i := range bare {
			rows[i].Weight = share
		}
	}
}

// isHeaderEcho matches the column header row some pages repeat inside the
// table body. Qualified legacy names are compared after stripping.
func isHeaderEcho(task string) bool {
	if i := strings.Index(task, qualifierSeparator); i >= 0 {
		task = strings.TrimSpace(task[i+len(qualifierSeparator):])
	}
	return strings.EqualFold(task, headerTask)
}
