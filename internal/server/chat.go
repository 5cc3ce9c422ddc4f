package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"docmind/internal/provider"
	"docmind/internal/router"
	"docmind/internal/translator"
)

func (s *Server) handleChat(c echo.Context) error {
	var req translator.ChatRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	account := accountFrom(c)
	reply, err := s.deps.Router.Chat(c.Request().Context(), router.Call{
		AccountID:        account.ID,
		Request:          req.ToRequestConfig(),
		ProviderOverride: req.Provider,
	})
	if err != nil {
		return toHTTPError(err)
	}

	if reply.Stream != nil {
		return writeChatStream(c, reply.ProviderID, reply.Stream)
	}
	if reply.Result == nil {
		return requestError{
			Status:  http.StatusBadGateway,
			Message: "upstream provider returned an empty response",
			Type:    "upstream_error",
		}
	}
	return c.JSON(http.StatusOK, translator.FromResult(reply.Result))
}

// writeChatStream relays deltas as server-sent events. Once the first event
// is written the status is committed, so later failures become an error event.
func writeChatStream(c echo.Context, providerID string, st provider.Stream) error {
	defer st.Close()

	ctx := c.Request().Context()
	res := c.Response()
	rc := http.NewResponseController(res.Writer)
	// Streams outlive the server write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		slog.Debug("could not clear write deadline", "err", err)
	}

	header := res.Header()
	header.Set(echo.HeaderContentType, "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	for {
		if ctx.Err() != nil {
			slog.Info("client disconnected mid-stream", "provider", providerID)
			return nil
		}

		delta, err := st.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			slog.Warn("stream failed", "provider", providerID, "err", err)
			ev := translator.ErrorEvent("stream interrupted", streamErrorType(err))
			if werr := writeSSEEvent(res, ev.Name, ev.Payload); werr == nil {
				_ = rc.Flush()
			}
			return nil
		}

		ev := translator.EventFor(delta, providerID)
		if err := writeSSEEvent(res, ev.Name, ev.Payload); err != nil {
			slog.Error("failed to write SSE event", "event", ev.Name, "err", err)
			return nil
		}
		if err := rc.Flush(); err != nil {
			slog.Error("failed to flush SSE event", "event", ev.Name, "err", err)
			return nil
		}
	}
}

func streamErrorType(err error) string {
	var perr *provider.Error
	if errors.As(err, &perr) {
		return "upstream_error"
	}
	return "server_error"
}

type providerStatus struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Available   bool   `json:"available"`
	Preferred   bool   `json:"preferred"`
}

func (s *Server) handleListProviders(c echo.Context) error {
	statuses := s.deps.Router.Manager().Providers(c.Request().Context())
	out := make([]providerStatus, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, providerStatus{
			ID:          st.ID,
			DisplayName: st.DisplayName,
			Available:   st.Available,
			Preferred:   st.Preferred,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"providers": out})
}

type preferredRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleSetPreferred(c echo.Context) error {
	var req preferredRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	if !s.deps.Router.Manager().SetPreferred(req.ID) {
		return requestError{
			Status:  http.StatusNotFound,
			Message: "unknown provider " + req.ID,
			Type:    "not_found_error",
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"preferred": req.ID})
}
