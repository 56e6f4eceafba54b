// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/zeizeiwaii/Datastar/internal/http/handlers"
	"github.com/zeizeiwaii/Datastar/internal/http/middleware"
	"github.com/zeizeiwaii/Datastar/internal/infra"
	"github.com/zeizeiwaii/Datastar/internal/modules/request"
)

type RouterDeps struct {
	Dispatch    handlers.DispatchDeps
	Requests    *request.Service
	Verifier    infra.TokenVerifier
	CORSOrigins []string
	Log         *zap.Logger
}

// NewRouter builds the gin engine behind a CORS handler. /health stays
// outside auth; everything under /api goes through it when a verifier is set.
func NewRouter(deps RouterDeps) http.Handler {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(middleware.Logging(log), middleware.Recovery(log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	deps.Dispatch.Log = log.Named("http.dispatch")
	dispatchHandler := handlers.NewDispatchHandler(deps.Dispatch)
	api.POST("/dispatch/plan", dispatchHandler.Plan)
	api.POST("/dispatch/decision", dispatchHandler.Decide)
	api.GET("/dispatch/decisions", dispatchHandler.DecideAll)
	api.POST("/dispatch/runs", dispatchHandler.Trigger)
	api.GET("/dispatch/runs/latest", dispatchHandler.Latest)
	api.GET("/dispatch/metrics", dispatchHandler.Metrics)

	if deps.Requests != nil {
		requestHandler := handlers.NewRequestHandler(deps.Requests)
		api.POST("/requests", requestHandler.Create)
		api.GET("/requests", requestHandler.ListPending)
		api.GET("/requests/:id", requestHandler.Get)
		api.POST("/requests/:id/cancel", requestHandler.Cancel)
	}

	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	return corsHandler.Handler(r)
}
