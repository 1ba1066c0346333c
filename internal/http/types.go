package http

import (
	"github.com/sarahrhemadayal/baseline/internal/ingestion"
	"github.com/sarahrhemadayal/baseline/internal/memory"
	"github.com/sarahrhemadayal/baseline/internal/retrieval"
)

// SearchItemsRequest is the request body for POST /api/v1/items/search.
type SearchItemsRequest struct {
	UserID     string `json:"userId"`
	Query      string `json:"query"`
	Limit      int    `json:"limit,omitempty"`
	Type       string `json:"type,omitempty"`
	IncludeAll bool   `json:"includeAll,omitempty"`
}

// SearchItemsResponse is the response body for POST /api/v1/items/search.
type SearchItemsResponse struct {
	Results []memory.Match `json:"results"`
	Count   int            `json:"count"`
}

// IngestRequest is the request body for POST /api/v1/ingest.
type IngestRequest struct {
	UserID   string             `json:"userId"`
	Sections ingestion.Sections `json:"sections"`
}

// IngestResponse is the response body for a synchronous ingest.
type IngestResponse struct {
	Success         bool                `json:"success"`
	VectorsCreated  int                 `json:"vectorsCreated"`
	Skipped         int                 `json:"skipped"`
	Failed          []ingestion.Failure `json:"failed,omitempty"`
	NothingToIngest bool                `json:"nothingToIngest,omitempty"`
	Message         string              `json:"message"`
}

// IngestAcceptedResponse is returned by POST /api/v1/ingest?async=true.
type IngestAcceptedResponse struct {
	WorkflowID string `json:"workflowId"`
}

// SearchSimilarRequest is the request body for POST /api/v1/search.
type SearchSimilarRequest struct {
	Query  string `json:"query"`
	UserID string `json:"userId"`
	Limit  int    `json:"limit,omitempty"`
	Type   string `json:"type,omitempty"`
}

// SearchSimilarResponse is the response body for POST /api/v1/search.
type SearchSimilarResponse struct {
	Results []retrieval.SimilarResult `json:"results"`
	Query   string                    `json:"query"`
	UserID  string                    `json:"userId"`
	Count   int                       `json:"count"`
}

// ViewResponse wraps an aggregated view.
type ViewResponse struct {
	View string `json:"view"`
	Data any    `json:"data"`
}

// SuccessResponse is a bare acknowledgement.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx reply except mutate's.
type ErrorResponse struct {
	Error string `json:"error"`
}
