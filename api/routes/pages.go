package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"blogview/api/handlers"
	"blogview/api/middleware"
	"blogview/services"
	"blogview/web"
)

type PageOptions struct {
	Sessions   *services.SessionManager
	CookieName string
	CookieTTL  time.Duration
	APIBaseURL string
	Timestamps services.TimestampFormatter
}

// NewRouter builds the complete engine: middleware, templates and all routes.
func NewRouter(opts PageOptions) (*gin.Engine, error) {
	tmpl, err := web.Parse(opts.Timestamps.Format)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.PrometheusMiddleware("blogview"))
	router.SetHTMLTemplate(tmpl)

	OpsRoutes(router)
	PageRoutes(router, opts)
	return router, nil
}

// PageRoutes registers the session-bound page endpoints.
func PageRoutes(router *gin.Engine, opts PageOptions) *gin.RouterGroup {
	if opts.CookieName == "" {
		opts.CookieName = "blogview_session"
	}
	h := handlers.NewPageHandler(opts.APIBaseURL, opts.Sessions, opts.CookieName)

	pages := router.Group("/")
	pages.Use(middleware.SessionMiddleware(opts.Sessions, opts.CookieName, opts.CookieTTL))
	{
		pages.GET("", h.Index)
		pages.POST("form/toggle", h.ToggleForm)
		pages.POST("form/cancel", h.CancelForm)
		pages.POST("form/draft", h.SaveDraft)
		pages.POST("session/reset", h.Reset)
		pages.POST("posts", h.CreatePost)
		pages.GET("posts/:id/delete", h.ConfirmDelete)
		pages.POST("posts/:id/delete", h.DeletePost)
		pages.GET("state", h.State)
		pages.GET("ws", handlers.WSStateHandler)
	}
	return pages
}

// OpsRoutes registers endpoints that need no session.
func OpsRoutes(router *gin.Engine) {
	router.GET("/healthz", handlers.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.StaticFS("/static", http.FS(web.Static()))
}
