package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/sarahrhemadayal/baseline/internal/memory"
	"github.com/sarahrhemadayal/baseline/internal/retrieval"
)

type searchProgressInput struct {
	UserID     string `json:"userId" jsonschema:"Owner of the items"`
	Query      string `json:"query" jsonschema:"Free text describing the item or update"`
	Limit      int    `json:"limit,omitempty" jsonschema:"Maximum results (default 5, max 100)"`
	Type       string `json:"type,omitempty" jsonschema:"Restrict to one item type: skill, project, work_experience, education, leadership"`
	IncludeAll bool   `json:"includeAll,omitempty" jsonschema:"Include completed items"`
}

type searchProgressOutput struct {
	Results []memory.Match `json:"results" jsonschema:"Matches as id, score and payload"`
	Count   int            `json:"count"`
}

type mutateProgressInput struct {
	Action   string           `json:"action" jsonschema:"create, update or complete"`
	UserID   string           `json:"userId" jsonschema:"Owner of the item"`
	ItemID   string           `json:"itemId,omitempty" jsonschema:"Target item id; required for update and complete"`
	ItemData *memory.ItemData `json:"itemData,omitempty" jsonschema:"Full item record; required for create and update"`
}

type getViewInput struct {
	UserID string `json:"userId" jsonschema:"Owner of the profile"`
	View   string `json:"view" jsonschema:"speech_pattern, skills, projects, work_experience, insights or recent_messages"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Override the view's record limit"`
}

type getViewOutput struct {
	View string `json:"view"`
	Data any    `json:"data"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "search_progress",
		Description: "Find a user's tracked items most similar to a description. " +
			"Call this before mutate_progress to decide between create and update.",
	}, instrument(s, "search_progress", s.searchProgress))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "mutate_progress",
		Description: "Create, update or complete one tracked item. Update replaces the whole record.",
	}, instrument(s, "mutate_progress", s.mutateProgress))

	views := make([]string, 0, len(retrieval.Views()))
	for _, v := range retrieval.Views() {
		views = append(views, string(v))
	}
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_view",
		Description: "Read an aggregated view of a user's ingested profile. Views: " + strings.Join(views, ", "),
	}, instrument(s, "get_view", s.getView))
}

// instrument records metrics and logs failures around a tool handler.
func instrument[In, Out any](s *Server, name string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		done := s.metrics.track(ctx, name)
		res, out, err := h(ctx, req, in)
		done(err)
		if err != nil {
			s.logger.Warn("tool failed", zap.String("tool", name), zap.Error(err))
		}
		return res, out, err
	}
}

func (s *Server) searchProgress(ctx context.Context, _ *mcp.CallToolRequest, args searchProgressInput) (*mcp.CallToolResult, searchProgressOutput, error) {
	matches, err := s.items.Search(ctx, args.UserID, args.Query, memory.SearchOptions{
		Limit:      args.Limit,
		Type:       args.Type,
		IncludeAll: args.IncludeAll,
	})
	if err != nil {
		return nil, searchProgressOutput{}, fmt.Errorf("search failed: %w", err)
	}
	if matches == nil {
		matches = []memory.Match{}
	}
	return textResult(fmt.Sprintf("Found %d matching items", len(matches))),
		searchProgressOutput{Results: matches, Count: len(matches)}, nil
}

func (s *Server) mutateProgress(ctx context.Context, _ *mcp.CallToolRequest, args mutateProgressInput) (*mcp.CallToolResult, memory.MutateResponse, error) {
	resp, err := s.items.Mutate(ctx, memory.MutateRequest{
		Action:   memory.Action(args.Action),
		UserID:   args.UserID,
		ItemID:   args.ItemID,
		ItemData: args.ItemData,
	})
	if err != nil {
		return nil, memory.MutateResponse{}, fmt.Errorf("%s failed: %w", args.Action, err)
	}
	return textResult(resp.Message), resp, nil
}

func (s *Server) getView(ctx context.Context, _ *mcp.CallToolRequest, args getViewInput) (*mcp.CallToolResult, getViewOutput, error) {
	data, err := s.views.GetView(ctx, args.UserID, retrieval.View(args.View), args.Limit)
	if err != nil {
		return nil, getViewOutput{}, fmt.Errorf("get_view failed: %w", err)
	}
	return textResult("View " + args.View), getViewOutput{View: args.View, Data: data}, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
