package httpguard

import (
	"context"

	"github.com/gin-gonic/gin"
)

// Gin returns gin middleware guarding the rest of the handler chain with route.
func (g *Guard) Gin(route Route) gin.HandlerFunc {
	p := g.prepare(route)
	return func(c *gin.Context) {
		status, message, _ := g.run(c.Request, p, func(ctx context.Context) error {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
			return nil
		})
		if status != 0 {
			c.AbortWithStatusJSON(status, ErrorResponse{Error: message})
		}
	}
}
