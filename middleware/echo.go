package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/MrEthical07/authcore"
)

// EchoClaimsKey is the echo.Context key holding *authcore.AccessClaims.
const EchoClaimsKey = "authcore.claims"

// EchoRequireAccess is [RequireAccess] for echo routers.
func EchoRequireAccess(engine *authcore.Engine) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			claims, status := authenticate(req.Context(), engine, req.Header.Get(echo.HeaderAuthorization))
			if status != 0 {
				return echo.NewHTTPError(status, http.StatusText(status))
			}

			c.Set(EchoClaimsKey, claims)
			return next(c)
		}
	}
}

// EchoClaims returns the claims stored by [EchoRequireAccess].
func EchoClaims(c echo.Context) (*authcore.AccessClaims, bool) {
	claims, ok := c.Get(EchoClaimsKey).(*authcore.AccessClaims)
	return claims, ok
}
