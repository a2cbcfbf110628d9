package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/uqmarks/uqmarks/internal/analytics"
	"github.com/uqmarks/uqmarks/internal/course"
	"github.com/uqmarks/uqmarks/internal/semester"
	"github.com/uqmarks/uqmarks/internal/storage"
)

func newTestMCPDeps(t *testing.T) (MCPDeps, *mockCourses, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	courses := &mockCourses{}
	return MCPDeps{
		Courses:   courses,
		Semesters: &mockSemesters{list: []semester.Offering{{Year: 2025, Semester: 1}}},
		Analytics: analytics.NewService(store, analytics.NewEngine(brisbane)),
		Location:  brisbane,
		Now:       func() time.Time { return testNow },
	}, courses, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestMCPGetCourse(t *testing.T) {
	deps, courses, _ := newTestMCPDeps(t)
	courses.key = testKey
	courses.table = course.Table{{Task: "Quiz", Weight: "10%"}, {Task: "Exam", Weight: "90%"}}

	result, err := mcpGetCourse(deps)(context.Background(), makeCallToolRequest("get_course_assessments", map[string]interface{}{
		"course_code": "CSSE1001",
		"semester_id": "2025S1",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var got CourseResponse
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	want := CourseResponse{Success: true, CourseCode: "CSSE1001", SemesterID: "2025S1", AssessmentItems: courses.table}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("result (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"CSSE1001|2025S1|"}, courses.calls); diff != "" {
		t.Errorf("lookup args (-want +got):\n%s", diff)
	}
}

func TestMCPGetCourse_Errors(t *testing.T) {
	tests := []struct {
		name string
		args map[string]interface{}
		err  error
		want string
	}{
		{
			name: "missing code",
			args: map[string]interface{}{"semester_id": "2025S1"},
			want: "course_code is required",
		},
		{
			name: "missing semester",
			args: map[string]interface{}{"course_code": "CSSE1001"},
			want: "semester_id is required",
		},
		{
			name: "course missing asks for url",
			args: map[string]interface{}{"course_code": "CSSE1001", "semester_id": "2025S1"},
			err:  &course.Error{Kind: course.CourseMissing, Key: testKey},
			want: "pass course_profile_url",
		},
		{
			name: "wrong semester",
			args: map[string]interface{}{"course_code": "CSSE1001", "semester_id": "2025S1"},
			err:  &course.Error{Kind: course.WrongSemester, Key: testKey},
			want: "not offered in Semester 1 2025",
		},
		{
			name: "untyped",
			args: map[string]interface{}{"course_code": "CSSE1001", "semester_id": "2025S1"},
			err:  errors.New("dial tcp: refused"),
			want: course.UnavailableMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps, courses, _ := newTestMCPDeps(t)
			courses.key = testKey
			courses.err = tt.err

			result, err := mcpGetCourse(deps)(context.Background(), makeCallToolRequest("get_course_assessments", tt.args))
			if err != nil {
				t.Fatalf("handler error: %v", err)
			}
			if !result.IsError {
				t.Fatal("expected tool error")
			}
			if text := toolText(t, result); !strings.Contains(text, tt.want) {
				t.Errorf("text = %q, want it to contain %q", text, tt.want)
			}
		})
	}
}

func TestMCPListSemesters(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)

	result, err := mcpListSemesters(deps)(context.Background(), makeCallToolRequest("list_semesters", nil))
	if err != nil || result.IsError {
		t.Fatalf("list_semesters = %v, %v", result, err)
	}
	if got, want := toolText(t, result), `[{"value":"2025S1","label":"Semester 1 2025"}]`; got != want {
		t.Errorf("text = %s, want %s", got, want)
	}

	deps.Semesters = &mockSemesters{err: errors.New("db closed")}
	result, _ = mcpListSemesters(deps)(context.Background(), makeCallToolRequest("list_semesters", nil))
	if !result.IsError {
		t.Error("expected tool error when the catalog fails")
	}
}

func TestMCPTopCourses(t *testing.T) {
	deps, _, store := newTestMCPDeps(t)
	seedSearches(t, store)

	result, err := mcpTopCourses(deps)(context.Background(), makeCallToolRequest("top_courses", map[string]interface{}{
		"range":    "90",
		"semester": "2025S1",
		"limit":    float64(1),
	}))
	if err != nil || result.IsError {
		t.Fatalf("top_courses = %v, %v", result, err)
	}
	var rows []analytics.RankedCode
	if err := json.Unmarshal([]byte(toolText(t, result)), &rows); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	want := []analytics.RankedCode{{Code: "CSSE1001", Label: "CSSE1001", Count: 3, Rank: 1}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows (-want +got):\n%s", diff)
	}

	result, _ = mcpTopCourses(deps)(context.Background(), makeCallToolRequest("top_courses", map[string]interface{}{
		"range": "7",
	}))
	if !result.IsError {
		t.Error("expected tool error for unknown range")
	}
}
