package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"docmind/internal/quota"
	"docmind/internal/skill"
)

const maxBatchSize = 16

func (s *Server) handleListSkills(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"skills": s.deps.Skills.List()})
}

type selectRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleSelectSkills(c echo.Context) error {
	var req selectRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Query) == "" {
		return requestError{Status: http.StatusBadRequest, Message: "query must not be empty", Type: "invalid_request_error"}
	}
	return c.JSON(http.StatusOK, map[string]any{"matches": s.deps.Skills.Select(req.Query)})
}

type executeRequest struct {
	Input   string            `json:"input"`
	Options map[string]string `json:"options"`
}

func (s *Server) handleExecuteSkill(c echo.Context) error {
	var req executeRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	account := accountFrom(c)
	res := s.deps.Skills.Execute(c.Request().Context(), c.Param("id"), skill.Context{
		AccountID: account.ID,
		Tier:      account.Tier,
		Input:     req.Input,
		Options:   req.Options,
	})
	return c.JSON(skillStatus(res), res)
}

type batchRequest struct {
	Invocations []struct {
		SkillID string            `json:"skill_id"`
		Input   string            `json:"input"`
		Options map[string]string `json:"options"`
	} `json:"invocations"`
}

func (s *Server) handleExecuteBatch(c echo.Context) error {
	var req batchRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	if len(req.Invocations) == 0 {
		return requestError{Status: http.StatusBadRequest, Message: "invocations must not be empty", Type: "invalid_request_error"}
	}
	if len(req.Invocations) > maxBatchSize {
		return requestError{Status: http.StatusBadRequest, Message: "too many invocations in one batch", Type: "invalid_request_error"}
	}

	account := accountFrom(c)
	invocations := make([]skill.Invocation, 0, len(req.Invocations))
	for _, inv := range req.Invocations {
		invocations = append(invocations, skill.Invocation{
			SkillID: inv.SkillID,
			Context: skill.Context{
				AccountID: account.ID,
				Tier:      account.Tier,
				Input:     inv.Input,
				Options:   inv.Options,
			},
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"results": s.deps.Skills.ExecuteBatch(c.Request().Context(), invocations)})
}

// skillStatus picks the HTTP status for a single execution result. The body
// is always the Result itself.
func skillStatus(res skill.Result) int {
	if res.Success {
		return http.StatusOK
	}
	switch {
	case errors.Is(res.Err, skill.ErrSkillNotFound):
		return http.StatusNotFound
	case errors.Is(res.Err, skill.ErrTierTooLow):
		return http.StatusForbidden
	case errors.Is(res.Err, quota.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	default:
		var reqErr requestError
		if errors.As(toHTTPError(res.Err), &reqErr) && reqErr.Status != http.StatusInternalServerError {
			return reqErr.Status
		}
		return http.StatusUnprocessableEntity
	}
}
