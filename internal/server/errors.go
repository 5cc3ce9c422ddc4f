package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"docmind/internal/auth"
	"docmind/internal/provider"
	"docmind/internal/quota"
	"docmind/internal/search"
	"docmind/internal/skill"
	"docmind/internal/store"
	"docmind/internal/translator"
)

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		var verr *translator.ValidationError
		if errors.As(err, &verr) {
			return toHTTPError(verr)
		}
		if errors.Is(err, io.EOF) {
			return requestError{
				Status:  http.StatusBadRequest,
				Message: "request body is required",
				Type:    "invalid_request_error",
			}
		}
		return requestError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("invalid JSON payload: %v", err),
			Type:    "invalid_request_error",
		}
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "request body must contain a single JSON object",
			Type:    "invalid_request_error",
		}
	}
	return nil
}

type requestError struct {
	Status  int
	Message string
	Type    string
	Code    string
}

func (e requestError) Error() string {
	return e.Message
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

func writeError(c echo.Context, status int, message, errType, code string) error {
	var payload errorBody
	payload.Error.Message = message
	payload.Error.Type = errType
	payload.Error.Code = code
	return c.JSON(status, payload)
}

func jsonErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message, reqErr.Type, reqErr.Code)
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = writeError(c, he.Code, fmt.Sprint(he.Message), "invalid_request_error", "")
		return
	}

	_ = writeError(c, http.StatusInternalServerError, "internal server error", "server_error", "")
}

// toHTTPError maps domain failures onto status codes.
func toHTTPError(err error) error {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	var verr *translator.ValidationError
	if errors.As(err, &verr) {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: verr.Error(),
			Type:    "invalid_request_error",
			Code:    verr.Field,
		}
	}

	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return requestError{Status: http.StatusUnauthorized, Message: "invalid or missing credential", Type: "authentication_error"}
	case errors.Is(err, quota.ErrQuotaExceeded):
		return requestError{Status: http.StatusTooManyRequests, Message: err.Error(), Type: "quota_exceeded"}
	case errors.Is(err, skill.ErrSkillNotFound), errors.Is(err, store.ErrAccountNotFound):
		return requestError{Status: http.StatusNotFound, Message: err.Error(), Type: "not_found_error"}
	case errors.Is(err, skill.ErrTierTooLow):
		return requestError{Status: http.StatusForbidden, Message: err.Error(), Type: "permission_error"}
	case errors.Is(err, search.ErrEmptyQuery):
		return requestError{Status: http.StatusBadRequest, Message: err.Error(), Type: "invalid_request_error"}
	case errors.Is(err, search.ErrNoProviderAvailable):
		return requestError{Status: http.StatusServiceUnavailable, Message: "no search provider available", Type: "unavailable_error"}
	}

	if errors.Is(err, provider.ErrNoProviderAvailable) {
		return requestError{Status: http.StatusServiceUnavailable, Message: "no provider available", Type: "unavailable_error"}
	}
	var perr *provider.Error
	if errors.As(err, &perr) {
		return requestError{
			Status:  http.StatusBadGateway,
			Message: "upstream provider error",
			Type:    "upstream_error",
			Code:    perr.Provider,
		}
	}

	return requestError{
		Status:  http.StatusInternalServerError,
		Message: "internal server error",
		Type:    "server_error",
	}
}

func writeSSEEvent(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal SSE payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return fmt.Errorf("write SSE event name: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write SSE data: %w", err)
	}
	return nil
}
