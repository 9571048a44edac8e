// Package web serves the HTML views, the form actions and the live featured
// feed over gin. Every browser gets a viewer from the registry, identified by
// a sealed cookie.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/and161185/fashion-nexus/internal/app"
	"github.com/and161185/fashion-nexus/internal/convert"
	pkgcrypto "github.com/and161185/fashion-nexus/internal/crypto"
	"github.com/and161185/fashion-nexus/internal/limiter"
	"github.com/and161185/fashion-nexus/internal/media"
	"github.com/and161185/fashion-nexus/internal/notify"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	viewerCookie  = "nexus_viewer"
	cookiePurpose = "viewer-cookie"
	cookieMaxAge  = 30 * 24 * 60 * 60

	// waitTimeout bounds how long a guard waits for the session determination.
	waitTimeout = 10 * time.Second
	// visitorIdle is how long an idle rate limiter bucket is kept.
	visitorIdle = 10 * time.Minute
)

// Options configures the server.
type Options struct {
	Secret        []byte // seals the viewer cookie
	SecureCookies bool
	// RequestsPerSecond and Burst limit each client address. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int
	// Objects serves /objects when storage is local.
	Objects     http.FileSystem
	MaxFileSize int64
}

// Server holds the router and its dependencies.
type Server struct {
	reg      *app.Registry
	sealer   *pkgcrypto.Sealer
	visitors *limiter.Visitors
	opts     Options
	log      *zap.Logger
	engine   *gin.Engine
}

// New builds the router.
func New(reg *app.Registry, opts Options, log *zap.Logger) (*Server, error) {
	sealer, err := pkgcrypto.NewSealer(opts.Secret, cookiePurpose)
	if err != nil {
		return nil, err
	}
	tmpl, err := template.New("").Funcs(template.FuncMap{"preview": previewURL}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = 5 * media.MB
	}

	s := &Server{reg: reg, sealer: sealer, opts: opts, log: log}
	if opts.RequestsPerSecond > 0 {
		s.visitors = limiter.NewVisitors(opts.RequestsPerSecond, opts.Burst, visitorIdle)
	}

	r := gin.New()
	r.Use(Recover(log), Logging(log))
	if s.visitors != nil {
		r.Use(RateLimit(s.visitors))
	}
	r.SetHTMLTemplate(tmpl)
	r.MaxMultipartMemory = 8 * media.MB

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	if opts.Objects != nil {
		r.StaticFS("/objects", opts.Objects)
	}

	v := r.Group("/", s.attachViewer)

	public := v.Group("/", s.publicOnly)
	public.GET("/login", s.loginPage)
	public.POST("/login", s.login)
	public.GET("/signup", s.signupPage)
	public.POST("/signup", s.signup)

	protected := v.Group("/", s.requireAuth)
	protected.GET("/", s.homePage)
	protected.GET("/about", s.aboutPage)
	protected.GET("/my-pics", s.myPicsPage)
	protected.GET("/account", s.accountPage)
	protected.POST("/logout", s.logout)

	protected.POST("/images/stage", s.stageImages)
	protected.POST("/images/stage/clear", s.clearStaged)
	protected.POST("/images/staged/:id/remove", s.removeStaged)
	protected.POST("/images/save", s.saveImages)
	protected.POST("/images/saved/:id/remove", s.removeSaved)
	protected.POST("/images/saved/:id/feature", s.featureImage)
	protected.POST("/featured/:id/vote", s.toggleVote)
	protected.POST("/account/avatar", s.uploadAvatar)
	protected.GET("/ws/featured", s.featuredFeed)

	r.NoRoute(s.attachViewer, s.notFound)

	s.engine = r
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run forgets idle rate limiter buckets every interval until ctx ends.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	if s.visitors == nil {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.visitors.Sweep(); n > 0 {
				s.log.Debug("rate limiter buckets swept", zap.Int("count", n))
			}
		}
	}
}

// page is the data every template receives.
type page struct {
	Title  string
	User   *convert.Identity
	Avatar string
	Toasts []notify.Toast

	Collection convert.Collection
	Featured   convert.Featured

	// auth forms
	Tab      string
	Error    string
	Email    string
	FullName string
}

// render fills the viewer-specific fields of p and drains pending toasts.
func (s *Server) render(c *gin.Context, code int, name string, p page) {
	v := viewerOf(c)
	if ident, ok := v.Session.Identity(); ok {
		id := convert.ToIdentity(ident)
		p.User = &id
	}
	if url, ok := v.Profile.AvatarURL(); ok {
		p.Avatar = url
	}
	p.Toasts = v.Toasts.Drain()
	c.HTML(code, name, p)
}

// previewURL lets inline thumbnails through html/template's URL filter.
func previewURL(u string) template.URL {
	if strings.HasPrefix(u, "data:image/") {
		return template.URL(u)
	}
	return ""
}

func (s *Server) notFound(c *gin.Context) {
	s.render(c, http.StatusNotFound, "notfound.html", page{Title: "Page Not Found"})
}

// detached returns a context for work that must finish even if the browser navigates away.
func detached(c *gin.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(c.Request.Context()), timeout)
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
