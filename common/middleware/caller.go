package middleware

import (
	"github.com/labstack/echo/v4"
)

// CallerIDKey is the context key the caller's identity is stored
// under. The engine never authenticates this value itself — it trusts
// whatever already-authorized caller sits in front of it and records
// the header purely for audit trails on workflows, runs, and memory
// writes; login/session/authorization are explicit Non-goals here.
const CallerIDKey = "caller_id"

// ExtractCallerID reads X-Caller-ID into the request context, the same
// shape as ExtractUsername elsewhere in this codebase but renamed for
// a system with no notion of per-user tag namespacing.
func ExtractCallerID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if callerID := c.Request().Header.Get("X-Caller-ID"); callerID != "" {
				c.Set(CallerIDKey, callerID)
			}
			return next(c)
		}
	}
}

// CallerID retrieves the caller ID set by ExtractCallerID, defaulting
// to "anonymous" when the header was absent.
func CallerID(c echo.Context) string {
	if v, ok := c.Get(CallerIDKey).(string); ok && v != "" {
		return v
	}
	return "anonymous"
}
