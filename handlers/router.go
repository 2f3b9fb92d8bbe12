package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mabletask/tracker/middleware"
)

// RouterConfig carries the route dependencies.
type RouterConfig struct {
	Track          *TrackHandlers
	Settings       *SettingsHandlers
	FrontendOrigin string
	JWTSecret      string
	AdminAPIKey    string
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// NewRouter wires the tracker API onto a gin engine.
func NewRouter(cfg RouterConfig, mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.Use(middleware.CORSMiddleware(cfg.FrontendOrigin))

	r.GET("/health", cfg.Track.HealthCheck)
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	api := r.Group("/api")
	api.Use(middleware.OptionalIdentity(cfg.JWTSecret, cfg.Track.log))
	{
		api.POST("/sessions", cfg.Track.StartSession)

		session := api.Group("/sessions/:id")
		{
			session.POST("/identify", cfg.Track.Identify)
			session.POST("/pageview", cfg.Track.PageView)
			session.POST("/product", cfg.Track.ProductView)
			session.POST("/cart", cfg.Track.CartAction)
			session.POST("/search", cfg.Track.Search)
			session.POST("/filter", cfg.Track.FilterUsage)
			session.POST("/reviews", cfg.Track.ReviewsRead)
			session.POST("/size-guide", cfg.Track.SizeGuideView)
			session.POST("/interaction", cfg.Track.Interaction)
			session.POST("/visibility", cfg.Track.Visibility)
			session.POST("/unload", cfg.Track.Unload)
			session.GET("/metrics", cfg.Track.Metrics)
		}

		admin := api.Group("/settings")
		admin.Use(middleware.AdminKeyRequired(cfg.AdminAPIKey))
		{
			admin.GET("", cfg.Settings.GetSettings)
			admin.PUT("", cfg.Settings.PutSettings)
		}
	}

	return r
}
