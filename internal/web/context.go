package web

import (
	"context"
	"net/http"

	"github.com/and161185/fashion-nexus/internal/app"
	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

type ctxKey string

const viewerKey ctxKey = "nexus.viewer"

// WithViewer stores the viewer in ctx.
func WithViewer(ctx context.Context, v *app.Viewer) context.Context {
	return context.WithValue(ctx, viewerKey, v)
}

// ViewerFromCtx fetches the viewer from ctx.
func ViewerFromCtx(ctx context.Context) (*app.Viewer, bool) {
	v, ok := ctx.Value(viewerKey).(*app.Viewer)
	return v, ok && v != nil
}

// viewerOf returns the viewer attached by attachViewer.
func viewerOf(c *gin.Context) *app.Viewer {
	v, _ := ViewerFromCtx(c.Request.Context())
	return v
}

// cookieID opens the viewer cookie. ok is false for a missing or tampered cookie.
func (s *Server) cookieID(c *gin.Context) (uuid.UUID, bool) {
	raw, err := c.Cookie(viewerCookie)
	if err != nil || raw == "" {
		return uuid.Nil, false
	}
	b, err := s.sealer.Open(raw, []byte("viewer"))
	if err != nil {
		return uuid.Nil, false
	}
	id, err := uuid.FromBytes(b)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) setCookie(c *gin.Context, id uuid.UUID) error {
	sealed, err := s.sealer.Seal(id.Bytes(), []byte("viewer"))
	if err != nil {
		return err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(viewerCookie, sealed, cookieMaxAge, "/", "", s.opts.SecureCookies, true)
	return nil
}

// attachViewer resolves the browser's viewer, issuing a new cookie when it has none.
func (s *Server) attachViewer(c *gin.Context) {
	id, ok := s.cookieID(c)
	if !ok {
		var err error
		if id, err = uuid.NewV4(); err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		if err := s.setCookie(c, id); err != nil {
			s.log.Error("seal viewer cookie", zap.Error(err))
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
	}

	v, _ := s.reg.Get(id, c.ClientIP())
	if v == nil {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}
	c.Request = c.Request.WithContext(WithViewer(c.Request.Context(), v))
	c.Next()
}
