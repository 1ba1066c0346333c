package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sarahrhemadayal/baseline/internal/ingestion"
	"github.com/sarahrhemadayal/baseline/internal/memory"
	"github.com/sarahrhemadayal/baseline/internal/retrieval"
)

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleSearchItems(c echo.Context) error {
	var req SearchItemsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	matches, err := s.services.Items.Search(c.Request().Context(), req.UserID, req.Query, memory.SearchOptions{
		Limit:      req.Limit,
		Type:       req.Type,
		IncludeAll: req.IncludeAll,
	})
	if err != nil {
		return err
	}
	if matches == nil {
		matches = []memory.Match{}
	}
	return c.JSON(http.StatusOK, SearchItemsResponse{Results: matches, Count: len(matches)})
}

// handleMutate always answers with a MutateResponse so callers can read
// success and message on failure too.
func (s *Server) handleMutate(c echo.Context) error {
	var req memory.MutateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, memory.MutateResponse{Message: "invalid request body"})
	}

	resp, err := s.services.Items.Mutate(c.Request().Context(), req)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("mutate failed",
				zap.String("action", string(req.Action)),
				zap.String("request_id", requestID(c)),
				zap.Error(err))
		}
		resp.Success = false
		switch {
		case status == http.StatusInternalServerError:
			resp.Message = http.StatusText(status)
		case resp.Message == "":
			resp.Message = err.Error()
		}
		return c.JSON(status, resp)
	}
	if req.Action == memory.ActionCreate {
		return c.JSON(http.StatusCreated, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()

	if async, _ := strconv.ParseBool(c.QueryParam("async")); async {
		if s.services.Async == nil {
			return echo.NewHTTPError(http.StatusNotImplemented, "async ingestion is not enabled")
		}
		if req.UserID == "" {
			return fmt.Errorf("%w: userId is required", memory.ErrInvalidAction)
		}
		id, err := s.services.Async.StartBulkIngest(ctx, req.UserID, req.Sections)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusAccepted, IngestAcceptedResponse{WorkflowID: id})
	}

	res, err := s.services.Ingester.BulkIngest(ctx, req.UserID, req.Sections)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, IngestResponse{
		Success:         true,
		VectorsCreated:  res.VectorsCreated,
		Skipped:         res.Skipped,
		Failed:          res.Failed,
		NothingToIngest: res.NothingToIngest,
		Message:         ingestMessage(res),
	})
}

func ingestMessage(res *ingestion.Result) string {
	switch {
	case res.NothingToIngest:
		return "Nothing to ingest"
	case len(res.Failed) > 0:
		return fmt.Sprintf("Created %d vectors, %d failed", res.VectorsCreated, len(res.Failed))
	default:
		return fmt.Sprintf("Created %d vectors", res.VectorsCreated)
	}
}

func (s *Server) handleSearchSimilar(c echo.Context) error {
	var req SearchSimilarRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	results, err := s.services.Views.SearchSimilar(c.Request().Context(), req.UserID, req.Query, retrieval.SimilarOptions{
		Limit: req.Limit,
		Type:  req.Type,
	})
	if err != nil {
		return err
	}
	if results == nil {
		results = []retrieval.SimilarResult{}
	}
	return c.JSON(http.StatusOK, SearchSimilarResponse{
		Results: results,
		Query:   req.Query,
		UserID:  req.UserID,
		Count:   len(results),
	})
}

func (s *Server) handleView(c echo.Context) error {
	view := retrieval.View(c.Param("view"))
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}

	data, err := s.services.Views.GetView(c.Request().Context(), c.QueryParam("userId"), view, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ViewResponse{View: string(view), Data: data})
}

func (s *Server) handleDeleteUser(c echo.Context) error {
	if err := s.services.Items.DeleteAll(c.Request().Context(), c.Param("userId")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// statusFor maps domain sentinels to HTTP status codes.
func statusFor(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, memory.ErrInvalidAction),
		errors.Is(err, memory.ErrInvalidFilter),
		errors.Is(err, retrieval.ErrUnknownView):
		return http.StatusBadRequest
	case errors.Is(err, memory.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, memory.ErrEmbeddingUnavailable),
		errors.Is(err, memory.ErrStoreUnavailable),
		errors.Is(err, ingestion.ErrIngestFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorHandler renders handler errors as ErrorResponse. Server errors are
// logged and their detail withheld from the client.
func errorHandler(e *echo.Echo, logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := statusFor(err)

		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg = fmt.Sprint(he.Message)
		}
		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("route", c.Path()),
				zap.String("request_id", requestID(c)),
				zap.Error(err))
			if status == http.StatusInternalServerError {
				msg = http.StatusText(status)
			}
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, ErrorResponse{Error: msg})
		}
		if err != nil {
			e.Logger.Error(err)
		}
	}
}

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}
