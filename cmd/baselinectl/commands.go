package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	httpapi "github.com/sarahrhemadayal/baseline/internal/http"
	"github.com/sarahrhemadayal/baseline/internal/ingestion"
	"github.com/sarahrhemadayal/baseline/internal/memory"
)

func newSearchCmd() *cobra.Command {
	var req httpapi.SearchItemsRequest
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search a user's progress items",
		Long: `Search a user's in-progress items by semantic similarity.

Examples:
  baselinectl search --user u1 "learning kubernetes"
  baselinectl search --user u1 --all --type skill "go"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Query = strings.Join(args, " ")
			var resp httpapi.SearchItemsResponse
			if _, err := newClient().do(cmd.Context(), http.MethodPost, "/api/v1/items/search", req, &resp, false); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&req.UserID, "user", "", "user id (required)")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "maximum results (server default when 0)")
	cmd.Flags().StringVar(&req.Type, "type", "", "restrict to an item type")
	cmd.Flags().BoolVar(&req.IncludeAll, "all", false, "include completed items")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newMutateCmd() *cobra.Command {
	var (
		userID   string
		itemID   string
		dataFile string
	)
	cmd := &cobra.Command{
		Use:   "mutate <create|update|complete>",
		Short: "Create, update or complete a progress item",
		Long: `Create, update or complete a progress item.

create and update read itemData JSON from --data (or stdin with -).

Examples:
  baselinectl mutate create --user u1 --data item.json
  baselinectl mutate update --user u1 --id 0190... --data item.json
  baselinectl mutate complete --user u1 --id 0190...`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"create", "update", "complete"},
		RunE: func(cmd *cobra.Command, args []string) error {
			req := memory.MutateRequest{
				Action: memory.Action(args[0]),
				UserID: userID,
				ItemID: itemID,
			}
			if req.Action != memory.ActionComplete {
				raw, err := readInput(dataFile)
				if err != nil {
					return err
				}
				var data memory.ItemData
				if err := json.Unmarshal(raw, &data); err != nil {
					return fmt.Errorf("invalid itemData: %w", err)
				}
				req.ItemData = &data
			}

			var resp memory.MutateResponse
			code, err := newClient().do(cmd.Context(), http.MethodPost, "/api/v1/items", req, &resp, true)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			if !resp.Success {
				return &statusError{Code: code, Message: resp.Message}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().StringVar(&itemID, "id", "", "item id for update and complete")
	cmd.Flags().StringVar(&dataFile, "data", "-", "itemData JSON file, - for stdin")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newIngestCmd() *cobra.Command {
	var (
		userID string
		async  bool
	)
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Bulk-ingest onboarding sections for a user",
		Long: `Bulk-ingest onboarding sections (profile, speechPattern, summary,
extractedSkills, rawMessages) read as JSON from a file or stdin.

With --async the server starts a durable workflow and prints its id.

Examples:
  baselinectl ingest --user u1 onboarding.json
  cat onboarding.json | baselinectl ingest --user u1 --async -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			raw, err := readInput(path)
			if err != nil {
				return err
			}
			var sections ingestion.Sections
			if err := json.Unmarshal(raw, &sections); err != nil {
				return fmt.Errorf("invalid sections: %w", err)
			}

			req := httpapi.IngestRequest{UserID: userID, Sections: sections}
			c := newClient()
			if async {
				var resp httpapi.IngestAcceptedResponse
				if _, err := c.do(cmd.Context(), http.MethodPost, "/api/v1/ingest?async=true", req, &resp, false); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Workflow started: %s\n", resp.WorkflowID)
				return nil
			}
			var resp httpapi.IngestResponse
			if _, err := c.do(cmd.Context(), http.MethodPost, "/api/v1/ingest", req, &resp, false); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().BoolVar(&async, "async", false, "run ingestion as a background workflow")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newSimilarCmd() *cobra.Command {
	var req httpapi.SearchSimilarRequest
	cmd := &cobra.Command{
		Use:   "similar <query>",
		Short: "Search all of a user's memory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Query = strings.Join(args, " ")
			var resp httpapi.SearchSimilarResponse
			if _, err := newClient().do(cmd.Context(), http.MethodPost, "/api/v1/search", req, &resp, false); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&req.UserID, "user", "", "user id (required)")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "maximum results")
	cmd.Flags().StringVar(&req.Type, "type", "", "restrict to a record type")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newViewCmd() *cobra.Command {
	var (
		userID string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "view <name>",
		Short: "Show an aggregated view for a user",
		Long: `Show an aggregated view: speech_pattern, skills, projects,
work_experience, insights or recent_messages.

Examples:
  baselinectl view skills --user u1
  baselinectl view recent_messages --user u1 --limit 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{"userId": {userID}}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			path := "/api/v1/views/" + url.PathEscape(args[0]) + "?" + q.Encode()
			var resp httpapi.ViewResponse
			if _, err := newClient().do(cmd.Context(), http.MethodGet, path, nil, &resp, false); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().IntVar(&limit, "limit", 0, "limit for the recent_messages view")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newDeleteUserCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete-user <userId>",
		Short: "Delete every record a user owns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete all records for %q without --yes", args[0])
			}
			var resp httpapi.SuccessResponse
			if _, err := newClient().do(cmd.Context(), http.MethodDelete, "/api/v1/users/"+url.PathEscape(args[0]), nil, &resp, false); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted records for %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
