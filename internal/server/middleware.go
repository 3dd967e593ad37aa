package server

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/cirrus/internal/accessctx"
)

// HeaderActor carries the caller subject, e.g. "user:1234", "api_key:5678"
// or "system". Authentication happens at the gateway; the service only
// authorizes the asserted subject.
const HeaderActor = "X-Actor"

func (s *Server) ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if actor := strings.TrimSpace(c.GetHeader(HeaderActor)); actor != "" {
			ctx = accessctx.WithActor(ctx, actor)
		}
		ctx = accessctx.WithRequestMeta(ctx, accessctx.RequestMeta{
			RequestID: c.GetString("request_id"),
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := accessctx.ActorFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), actor, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
