package httpguard

import (
	"context"

	"github.com/labstack/echo/v4"
)

// Echo returns echo middleware guarding the wrapped handler with route.
// Errors returned by the handler pass through unchanged.
func (g *Guard) Echo(route Route) echo.MiddlewareFunc {
	p := g.prepare(route)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			status, message, err := g.run(c.Request(), p, func(ctx context.Context) error {
				c.SetRequest(c.Request().WithContext(ctx))
				return next(c)
			})
			if status != 0 {
				return c.JSON(status, ErrorResponse{Error: message})
			}
			return err
		}
	}
}
