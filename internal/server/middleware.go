package server

import (
	"strings"

	"github.com/labstack/echo/v4"

	"docmind/internal/auth"
	"docmind/internal/models"
)

const accountKey = "account"

// anonymousAccount serves requests when no credential resolver is configured.
var anonymousAccount = auth.Account{ID: "anonymous", Tier: models.TierFree}

// authenticate resolves the caller and provisions its quota row.
func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		account := anonymousAccount
		if s.authRequired() {
			resolved, err := s.deps.Resolver.Resolve(ctx, credentialFrom(c))
			if err != nil {
				return toHTTPError(err)
			}
			account = resolved
		}

		if _, err := s.deps.Quota.EnsureAccount(ctx, account.ID, account.Tier); err != nil {
			return toHTTPError(err)
		}
		c.Set(accountKey, account)
		return next(c)
	}
}

func (s *Server) authRequired() bool {
	if s.deps.Resolver == nil {
		return false
	}
	if chain, ok := s.deps.Resolver.(auth.Chain); ok && len(chain) == 0 {
		return false
	}
	return true
}

func credentialFrom(c echo.Context) string {
	header := c.Request().Header
	if key := header.Get("X-API-Key"); key != "" {
		return key
	}
	if value, ok := strings.CutPrefix(header.Get(echo.HeaderAuthorization), "Bearer "); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func accountFrom(c echo.Context) auth.Account {
	if account, ok := c.Get(accountKey).(auth.Account); ok {
		return account
	}
	return anonymousAccount
}
