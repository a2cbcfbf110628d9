package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/uqmarks/uqmarks/internal/analytics"
	"github.com/uqmarks/uqmarks/internal/course"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Courses   CourseLookup
	Semesters SemesterLister
	Analytics Analytics
	Location  *time.Location
	Now       func() time.Time
}

// NewMCPServer creates an MCP server exposing course lookups and search
// rankings as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	s := server.NewMCPServer(
		"uqmarks",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("uqmarks: assessment weightings of UQ courses by semester, and what students search for."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("get_course_assessments",
			mcp.WithDescription("Look up the assessment items and weightings of a course in a semester."),
			mcp.WithString("course_code", mcp.Description("Course code, e.g. CSSE1001"), mcp.Required()),
			mcp.WithString("semester_id", mcp.Description("Semester id, e.g. 2025S1"), mcp.Required()),
			mcp.WithString("course_profile_url", mcp.Description("Course profile URL, needed when the course has not been looked up before")),
		),
		mcpGetCourse(deps),
	)

	s.AddTool(
		mcp.NewTool("list_semesters",
			mcp.WithDescription("List the selectable semesters, newest first."),
		),
		mcpListSemesters(deps),
	)

	s.AddTool(
		mcp.NewTool("top_courses",
			mcp.WithDescription("Rank the most searched course codes over a date range."),
			mcp.WithString("range", mcp.Description("Days back (30, 90, 180, 365) or ALL; default 30")),
			mcp.WithString("semester", mcp.Description("Only count searches for this semester id")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of rows (default 10)")),
		),
		mcpTopCourses(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"uqmarks://semesters",
			"Semesters",
			mcp.WithResourceDescription("Selectable semesters as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSemesters(deps),
	)

	return s
}

func mcpGetCourse(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		code, err := req.RequireString("course_code")
		if err != nil {
			return mcpError("course_code is required"), nil
		}
		semID, err := req.RequireString("semester_id")
		if err != nil {
			return mcpError("semester_id is required"), nil
		}
		profileURL := req.GetString("course_profile_url", "")

		k, table, err := deps.Courses.Lookup(ctx, code, semID, profileURL)
		if err != nil {
			var ce *course.Error
			if !errors.As(err, &ce) {
				return mcpError(course.UnavailableMessage), nil
			}
			if ce.Kind == course.CourseMissing {
				return mcpError(fmt.Sprintf("%s has not been looked up for %s yet; pass course_profile_url", k.Code, k.SemesterID())), nil
			}
			return mcpError(ce.UserMessage()), nil
		}

		if table == nil {
			table = course.Table{}
		}
		b, err := json.Marshal(CourseResponse{
			Success:         true,
			CourseCode:      k.Code,
			SemesterID:      k.SemesterID(),
			AssessmentItems: table,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListSemesters(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := semestersJSON(ctx, deps)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpTopCourses(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}

		f, err := analytics.ParseFilter(analytics.Params{
			Range:    req.GetString("range", ""),
			Semester: req.GetString("semester", ""),
		}, deps.Now(), deps.Location)
		if err != nil {
			return mcpError(fmt.Sprintf("invalid filter: %v", err)), nil
		}

		ranking, err := deps.Analytics.TopCodes(ctx, f, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("ranking failed: %v", err)), nil
		}
		if ranking.Rows == nil {
			ranking.Rows = []analytics.RankedCode{}
		}
		b, err := json.Marshal(ranking.Rows)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal ranking: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceSemesters(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := semestersJSON(ctx, deps)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func semestersJSON(ctx context.Context, deps MCPDeps) ([]byte, error) {
	list, err := deps.Semesters.Semesters(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list semesters: %w", err)
	}
	b, err := json.Marshal(semesterOptions(list))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal semesters: %w", err)
	}
	return b, nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
