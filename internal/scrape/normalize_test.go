package scrape

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"

	"github.com/uqmarks/uqmarks/internal/course"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		rows []RawRow
		want course.Table
	}{
		{
			name: "equal split with qualifier",
			rows: []RawRow{
				{Task: "Computer Exercise || Assignment 1", Weight: "25"},
				{Task: "Assignment 2", Weight: "25"},
				{Task: "Assignment 3", Weight: "50"},
			},
			want: course.Table{
				{Task: "Assignment 1", Weight: "33.33%"},
				{Task: "Assignment 2", Weight: "33.33%"},
				{Task: "Assignment 3", Weight: "33.33%"},
			},
		},
		{
			name: "null weights dropped before counting",
			rows: []RawRow{
				{Task: "Quiz", Weight: "", NullWeight: true},
				{Task: "Project", Weight: "1"},
				{Task: "Exam", Weight: "1"},
			},
			want: course.Table{
				{Task: "Project", Weight: "50.00%"},
				{Task: "Exam", Weight: "50.00%"},
			},
		},
		{
			name: "percent weights truncated",
			rows: []RawRow{
				{Task: "Final Exam", Weight: "50% Identity Verified"},
				{Task: "Midsemester", Weight: "20.5 %"},
				{Task: "Labs", Weight: "29.5%*"},
			},
			want: course.Table{
				{Task: "Final Exam", Weight: "50%"},
				{Task: "Midsemester", Weight: "20.5 %"},
				{Task: "Labs", Weight: "29.5%"},
			},
		},
		{
			name: "lone bare integer",
			rows: []RawRow{
				{Task: "Exam", Weight: "60%"},
				{Task: "Essay", Weight: "40"},
			},
			want: course.Table{
				{Task: "Exam", Weight: "60%"},
				{Task: "Essay", Weight: "40%"},
			},
		},
		{
			name: "non numeric weights left alone",
			rows: []RawRow{
				{Task: "Hurdle", Weight: "Pass/Fail"},
				{Task: "Essay", Weight: "40"},
				{Task: "Exam", Weight: "60"},
			},
			want: course.Table{
				{Task: "Hurdle", Weight: "Pass/Fail"},
				{Task: "Essay", Weight: "40"},
				{Task: "Exam", Weight: "60"},
			},
		},
		{
			name: "header echo dropped and ignored for splitting",
			rows: []RawRow{
				{Task: "Assessment Task", Weight: "Weighting"},
				{Task: "Report", Weight: "10"},
				{Task: "Report", Weight: "10"},
			},
			want: course.Table{
				{Task: "Report", Weight: "50.00%"},
				{Task: "Report", Weight: "50.00%"},
			},
		},
		{
			name: "empty",
			rows: nil,
			want: course.Table{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.rows)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Normalize mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

const legacyFixture = `<html><body><table>
<tr>
  <td class="text-center">Assessment Task</td><td class="text-center">Due Date</td>
  <td class="text-center">Weighting</td><td class="text-center">Learning Objectives</td>
</tr>
<tr>
  <td class="text-center"><em>Computer Exercise</em>
      Assignment 1</td>
  <td class="text-center">20 Mar 22 16:00</td>
  <td class="text-center">25</td>
  <td class="text-center">1, 2</td>
</tr>
<tr>
  <td class="text-center"><em>Computer Exercise</em> Assignment 2</td>
  <td class="text-center">20 Apr 22 16:00</td>
  <td class="text-center">25</td>
  <td class="text-center">1, 2</td>
</tr>
<tr>
  <td class="text-center">Attendance</td>
  <td class="text-center">Weekly</td>
  <td class="text-center"></td>
  <td class="text-center">3</td>
</tr>
<tr>
  <td class="text-center"><em>Exam - during Exam Period</em> Final Exam</td>
  <td class="text-center">End of Semester Exam Period</td>
  <td class="text-center">50</td>
  <td class="text-center">1, 2, 3</td>
</tr>
</table></body></html>`

const modernFixture = `<html><head><title>CSSE1001 Semester 1 2025 | Course profile</title></head><body>
<h1>Introduction to Software Engineering (CSSE1001)</h1>
<h2>Semester 1, 2025 In Person</h2>
<table>
  <tr><th>Category</th><th>Assessment task</th><th>Weight</th><th>Due date</th></tr>
  <tr><td>Computer Code</td><td><a href="#a1">Assignment 1</a></td><td>20% </td><td>14/03/2025</td></tr>
  <tr><td>Computer Code</td><td><a href="#a2">Assignment 2</a></td><td>30%</td><td>11/04/2025</td></tr>
  <tr><td>Examination</td><td>Final exam</td><td>50%
      Identity Verified</td><td>End of semester</td></tr>
  <tr><td>Participation</td><td>Tutorial attendance</td><td></td><td>Weekly</td></tr>
</table>
</body></html>`

const summerFixture = `<html><head><title>CSSE1001 Summer Semester 2024 | Course profile</title></head><body>
<h1>Introduction to Software Engineering (CSSE1001)</h1>
<h2>Summer Semester, 2024 In Person</h2>
<table>
  <tr><th>Category</th><th>Assessment task</th><th>Weight</th><th>Due date</th></tr>
  <tr><td>Project</td><td>Project</td><td>60%</td><td>24/01/2025</td></tr>
  <tr><td>Examination</td><td>Final exam</td><td>40%</td><td>End of semester</td></tr>
</table>
</body></html>`

func parse(t *testing.T, s string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		t.Fatalf("parsing fixture: %v", err)
	}
	return doc
}

func TestLegacyRows(t *testing.T) {
	got := Normalize(legacyRows(parse(t, legacyFixture)))
	want := course.Table{
		{Task: "Assignment 1", Weight: "33.33%"},
		{Task: "Assignment 2", Weight: "33.33%"},
		{Task: "Final Exam", Weight: "33.33%"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("legacy table mismatch (-want +got):\n%s", diff)
	}
}

func TestLegacyTask_KeepsQualifier(t *testing.T) {
	rows := legacyRows(parse(t, legacyFixture))
	if len(rows) != 5 {
		t.Fatalf("got %d raw rows, want 5", len(rows))
	}
	if rows[1].Task != "Computer Exercise || Assignment 1" {
		t.Errorf("raw task = %q", rows[1].Task)
	}
	if !rows[3].NullWeight {
		t.Error("empty weight cell not marked null")
	}
}

func TestModernRows(t *testing.T) {
	rows, err := modernRows(parse(t, modernFixture))
	if err != nil {
		t.Fatalf("modernRows: %v", err)
	}
	got := Normalize(rows)
	want := course.Table{
		{Task: "Assignment 1", Weight: "20%"},
		{Task: "Assignment 2", Weight: "30%"},
		{Task: "Final exam", Weight: "50%"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("modern table mismatch (-want +got):\n%s", diff)
	}
}

func TestModernRows_NoTable(t *testing.T) {
	if _, err := modernRows(parse(t, `<html><body><p>Maintenance</p></body></html>`)); err == nil {
		t.Fatal("expected error for page without assessment table")
	}
}

func TestIdentityMatches(t *testing.T) {
	doc := parse(t, modernFixture)
	if !identityMatches(doc, "CSSE1001", 1, 2025) {
		t.Error("fixture should match CSSE1001 2025S1")
	}
	if identityMatches(doc, "CSSE1001", 2, 2025) {
		t.Error("fixture should not match semester 2")
	}
	if identityMatches(doc, "MATH1051", 1, 2025) {
		t.Error("fixture should not match another course")
	}
}

func TestIdentityMatches_Summer(t *testing.T) {
	summer := parse(t, summerFixture)
	if !identityMatches(summer, "CSSE1001", 3, 2024) {
		t.Error("summer fixture should match CSSE1001 2024S3")
	}
	if identityMatches(summer, "CSSE1001", 2, 2024) {
		t.Error("summer fixture should not match semester 2")
	}
	if identityMatches(parse(t, modernFixture), "CSSE1001", 3, 2025) {
		t.Error("semester 1 fixture should not match the summer semester")
	}
}

func TestOfferingRow(t *testing.T) {
	tests := []struct {
		text      string
		sem, year int
		want      bool
	}{
		{"Summer Semester, 2024 St Lucia In Person", 3, 2024, true},
		{"Summer Semester 2024 St Lucia In Person", 2, 2024, false},
		{"Semester 1, 2025 St Lucia In Person", 3, 2025, false},
		{"Semester 2, 2025 Gatton Internal", 2, 2025, true},
		{"Semester 2, 2025 External", 2, 2025, false},
		{"Semester 1, 2025 St Lucia Course profile unavailable", 1, 2025, false},
	}
	for _, tt := range tests {
		if got := offeringRow(tt.text, tt.sem, tt.year); got != tt.want {
			t.Errorf("offeringRow(%q, %d, %d) = %v, want %v", tt.text, tt.sem, tt.year, got, tt.want)
		}
	}
}

func TestLayoutFor(t *testing.T) {
	tests := []struct {
		year, sem int
		want      Layout
	}{
		{2022, 2, LayoutLegacy},
		{2023, 1, LayoutLegacy},
		{2023, 2, LayoutModern},
		{2025, 1, LayoutModern},
	}
	for _, tt := range tests {
		if got := LayoutFor(tt.year, tt.sem); got != tt.want {
			t.Errorf("LayoutFor(%d, %d) = %v, want %v", tt.year, tt.sem, got, tt.want)
		}
	}

	if !LayoutModern.accepts("CSSE1001-10203-7520", "CSSE1001") {
		t.Error("modern section rejected")
	}
	if LayoutModern.accepts("MATH1051-10203-7520", "CSSE1001") {
		t.Error("modern section for another course accepted")
	}
	if LayoutLegacy.accepts("CSSE1001-10203-7520", "CSSE1001") {
		t.Error("modern section accepted by legacy layout")
	}
	if !LayoutLegacy.accepts("118902", "CSSE1001") {
		t.Error("legacy section rejected")
	}
}
