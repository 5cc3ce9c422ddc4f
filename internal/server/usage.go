package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"docmind/internal/search"
)

const defaultStatsWindow = 30 * 24 * time.Hour

type quotaResponse struct {
	AccountID          string    `json:"account_id"`
	Tier               string    `json:"tier"`
	AITotal            int       `json:"ai_total"`
	AIUsed             int       `json:"ai_used"`
	AIRemaining        int       `json:"ai_remaining"`
	AIResetAt          time.Time `json:"ai_reset_at"`
	StorageTotalMB     int       `json:"storage_total_mb"`
	StorageUsedMB      int       `json:"storage_used_mb"`
	StorageRemainingMB int       `json:"storage_remaining_mb"`
}

func (s *Server) handleQuota(c echo.Context) error {
	snap, err := s.deps.Quota.Snapshot(c.Request().Context(), accountFrom(c).ID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, quotaResponse{
		AccountID:          snap.AccountID,
		Tier:               string(snap.Tier),
		AITotal:            snap.AITotal,
		AIUsed:             snap.AIUsed,
		AIRemaining:        snap.AIRemaining(),
		AIResetAt:          snap.AIResetAt.UTC(),
		StorageTotalMB:     snap.StorageTotalMB,
		StorageUsedMB:      snap.StorageUsedMB,
		StorageRemainingMB: snap.StorageRemainingMB(),
	})
}

// handleUsageStats aggregates [from, to). Both bounds are calendar dates in
// UTC; to is inclusive of the whole day named.
func (s *Server) handleUsageStats(c echo.Context) error {
	// event timestamps are stored at second precision; the default window
	// has to cover the current second
	to := time.Now().UTC().Truncate(time.Second).Add(time.Second)
	from := to.Add(-defaultStatsWindow)

	if raw := c.QueryParam("from"); raw != "" {
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return requestError{Status: http.StatusBadRequest, Message: "from must be YYYY-MM-DD", Type: "invalid_request_error"}
		}
		from = t
	}
	if raw := c.QueryParam("to"); raw != "" {
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return requestError{Status: http.StatusBadRequest, Message: "to must be YYYY-MM-DD", Type: "invalid_request_error"}
		}
		to = t.AddDate(0, 0, 1)
	}
	if !to.After(from) {
		return requestError{Status: http.StatusBadRequest, Message: "to must not be before from", Type: "invalid_request_error"}
	}

	stats, err := s.deps.Quota.Stats(c.Request().Context(), accountFrom(c).ID, from, to)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

type searchRequest struct {
	Query    string `json:"query"`
	Limit    int    `json:"limit"`
	Language string `json:"language"`
	Region   string `json:"region"`
}

func (s *Server) handleSearch(c echo.Context) error {
	if s.deps.Search == nil {
		return requestError{Status: http.StatusServiceUnavailable, Message: "search is not configured", Type: "unavailable_error"}
	}

	var req searchRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	resp, err := s.deps.Search.Search(c.Request().Context(), req.Query, search.Options{
		Limit:    req.Limit,
		Language: req.Language,
		Region:   req.Region,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, resp)
}
