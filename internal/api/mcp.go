package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/cvsift/internal/intake"
	"github.com/kalambet/cvsift/internal/match"
	"github.com/kalambet/cvsift/internal/progress"
	"github.com/kalambet/cvsift/internal/results"
	"github.com/kalambet/cvsift/internal/run"
)

const defaultWait = 10 * time.Minute

// DocumentFetcher downloads stored documents from the analysis service.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, fileID string) ([]byte, string, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Session   *run.Session
	Documents DocumentFetcher
	Intake    intake.Options
	Version   string
	// MaxWait bounds how long analyze_documents blocks when asked to wait.
	MaxWait time.Duration
}

// NewMCPServer creates an MCP server with the cvsift tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"cvsift",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("cvsift ranks CVs against job criteria using a remote analysis service. Start a run with analyze_documents, then inspect it with get_progress and get_results."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("analyze_documents",
			mcp.WithDescription("Submit local PDF or DOCX CVs with job criteria for analysis. Replaces any run in progress."),
			mcp.WithString("criteria", mcp.Description("Job requirements the CVs are matched against"), mcp.Required()),
			mcp.WithArray("files", mcp.Description("Paths of the CV files"), mcp.Required()),
			mcp.WithBoolean("wait", mcp.Description("Block until the run ends (default false)")),
		),
		mcpAnalyzeDocuments(deps),
	)

	s.AddTool(
		mcp.NewTool("get_progress",
			mcp.WithDescription("Report the current run's overall and per-document progress."),
		),
		mcpGetProgress(deps),
	)

	s.AddTool(
		mcp.NewTool("get_results",
			mcp.WithDescription("Return the current run's results as displayed: ranked, then filtered. Optional arguments change the ranking and filter first."),
			mcp.WithString("sort", mcp.Description("overall_match, skills_match, experience_match, education_match, technical_skills_score, soft_skills_score or manual")),
			mcp.WithNumber("min_match", mcp.Description("Minimum overall match, 0-100")),
			mcp.WithString("skill", mcp.Description("Keep results listing a skill containing this text; empty clears")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default all)")),
		),
		mcpGetResults(deps),
	)

	s.AddTool(
		mcp.NewTool("move_result",
			mcp.WithDescription("Swap a result with its neighbour in the displayed list."),
			mcp.WithString("filename", mcp.Description("Document to move"), mcp.Required()),
			mcp.WithString("direction", mcp.Description("up or down"), mcp.Required()),
		),
		mcpMoveResult(deps),
	)

	s.AddTool(
		mcp.NewTool("fetch_document",
			mcp.WithDescription("Download the service's stored copy of a document by file_id and save it locally."),
			mcp.WithString("file_id", mcp.Description("file_id from a result"), mcp.Required()),
			mcp.WithString("output", mcp.Description("Path to write the document to"), mcp.Required()),
		),
		mcpFetchDocument(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"run://current",
			"Current Run",
			mcp.WithResourceDescription("Snapshot of the current analysis run as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCurrentRun(deps),
	)

	return s
}

func mcpAnalyzeDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		criteria, err := req.RequireString("criteria")
		if err != nil {
			return mcpError("criteria is required"), nil
		}
		files := req.GetStringSlice("files", nil)

		sub, err := intake.Load(ctx, criteria, files, deps.Intake)
		if err != nil {
			return mcpError(fmt.Sprintf("submission rejected: %v", err)), nil
		}

		r, err := deps.Session.Start(ctx, sub, nil)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to start run: %v", err)), nil
		}

		if !req.GetBool("wait", false) {
			return mcpJSON(map[string]any{
				"run_id":    r.ID(),
				"documents": sub.Filenames(),
				"status":    "started",
			})
		}

		maxWait := deps.MaxWait
		if maxWait <= 0 {
			maxWait = defaultWait
		}
		waitCtx, cancel := context.WithTimeout(ctx, maxWait)
		defer cancel()
		if err := deps.Session.Wait(waitCtx); err != nil {
			return mcpError(fmt.Sprintf("run %s still in progress: %v", r.ID(), err)), nil
		}
		return mcpJSON(newSnapshotView(r.Snapshot()))
	}
}

func mcpGetProgress(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		r, err := deps.Session.Current()
		if err != nil {
			return mcpError("no analysis run yet; call analyze_documents first"), nil
		}
		return mcpJSON(newRunView(r.Snapshot()))
	}
}

func mcpGetResults(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		r, err := deps.Session.Current()
		if err != nil {
			return mcpError("no analysis run yet; call analyze_documents first"), nil
		}

		args := req.GetArguments()
		if s, ok := args["sort"]; ok {
			key, err := results.ParseSortKey(fmt.Sprint(s))
			if err != nil {
				return mcpError(err.Error()), nil
			}
			r.SetSort(key)
		}
		_, hasMin := args["min_match"]
		_, hasSkill := args["skill"]
		if hasMin || hasSkill {
			f := r.Snapshot().Filter
			if hasMin {
				f.MinOverallMatch = req.GetFloat("min_match", 0)
				if f.MinOverallMatch < 0 || f.MinOverallMatch > 100 {
					return mcpError("min_match must be between 0 and 100"), nil
				}
			}
			if hasSkill {
				f.Skill = req.GetString("skill", "")
			}
			r.SetFilter(f)
		}

		snap := r.Snapshot()
		if !snap.HasResults {
			if snap.Err != nil {
				return mcpError(fmt.Sprintf("run %s failed: %s", snap.ID, snap.Err.Error())), nil
			}
			return mcpError(fmt.Sprintf("run %s has no results yet (%s, %d%%)", snap.ID, snap.Overall.Status, snap.Overall.Percent)), nil
		}
		if limit := req.GetInt("limit", 0); limit > 0 && limit < len(snap.Results) {
			snap.Results = snap.Results[:limit]
		}
		return mcpJSON(newSnapshotView(snap))
	}
}

func mcpMoveResult(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filename, err := req.RequireString("filename")
		if err != nil {
			return mcpError("filename is required"), nil
		}
		dirArg, err := req.RequireString("direction")
		if err != nil {
			return mcpError("direction is required"), nil
		}
		dir, err := results.ParseDirection(dirArg)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		r, err := deps.Session.Current()
		if err != nil {
			return mcpError("no analysis run yet; call analyze_documents first"), nil
		}
		moved, err := r.MoveItem(filename, dir)
		switch {
		case errors.Is(err, run.ErrNoResults):
			return mcpError("the run has no results yet"), nil
		case errors.Is(err, results.ErrNotDisplayed):
			return mcpError(fmt.Sprintf("%s is not in the displayed results", filename)), nil
		case err != nil:
			return mcpError(err.Error()), nil
		}

		canonical, err := r.Canonical()
		if err != nil {
			return mcpError(err.Error()), nil
		}
		snap := r.Snapshot()
		return mcpJSON(map[string]any{
			"moved":     moved,
			"sort_key":  snap.SortKey,
			"displayed": filenames(snap.Results),
			"canonical": filenames(canonical),
		})
	}
}

func mcpFetchDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		fileID, err := req.RequireString("file_id")
		if err != nil {
			return mcpError("file_id is required"), nil
		}
		output, err := req.RequireString("output")
		if err != nil {
			return mcpError("output is required"), nil
		}

		data, contentType, err := deps.Documents.FetchDocument(ctx, fileID)
		if err != nil {
			return mcpError(fmt.Sprintf("fetch failed: %v", err)), nil
		}
		if err := os.WriteFile(output, data, 0o644); err != nil {
			return mcpError(fmt.Sprintf("failed to write %s: %v", output, err)), nil
		}
		return mcpText(fmt.Sprintf("Saved %d bytes (%s) to %s", len(data), contentType, output)), nil
	}
}

func mcpResourceCurrentRun(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		r, err := deps.Session.Current()
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(newSnapshotView(r.Snapshot()))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal run: %w", err)
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

// runView is the JSON shape of a snapshot handed to MCP clients.
type runView struct {
	RunID       string               `json:"run_id"`
	Phase       run.Phase            `json:"phase"`
	Overall     progress.Overall     `json:"overall"`
	Items       []match.AnalysisItem `json:"items"`
	Error       *errorView           `json:"error,omitempty"`
	Warnings    []string             `json:"warnings,omitempty"`
	Diagnostics int                  `json:"diagnostics"`
}

type resultsView struct {
	runView
	SortKey results.SortKey     `json:"sort_key"`
	Filter  results.Filter      `json:"filter"`
	Total   int                 `json:"total_results"`
	Results []match.MatchResult `json:"results"`
}

type errorView struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func newRunView(s run.Snapshot) runView {
	v := runView{
		RunID:       s.ID,
		Phase:       s.Phase,
		Overall:     s.Overall,
		Items:       s.Items,
		Warnings:    s.Warnings,
		Diagnostics: s.Diagnostics,
	}
	if s.Err != nil {
		v.Error = &errorView{Kind: s.Err.Kind.String(), Message: s.Err.Error()}
	}
	return v
}

// newSnapshotView includes the displayed results once the run has them.
func newSnapshotView(s run.Snapshot) any {
	if !s.HasResults {
		return newRunView(s)
	}
	rs := s.Results
	if rs == nil {
		rs = []match.MatchResult{}
	}
	return resultsView{
		runView: newRunView(s),
		SortKey: s.SortKey,
		Filter:  s.Filter,
		Total:   s.Total,
		Results: rs,
	}
}

func filenames(rs []match.MatchResult) []string {
	names := make([]string, len(rs))
	for i, r := range rs {
		names[i] = r.Filename
	}
	return names
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcpText(string(b)), nil
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
