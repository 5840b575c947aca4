package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"analytics-sdk/internal/common/logging"
	"analytics-sdk/internal/common/ratelimit"
	"analytics-sdk/internal/handlers"
	"analytics-sdk/internal/server"
)

// Handler builds the HTTP handler for the agent API.
func (app *App) Handler() (http.Handler, error) {
	var limiter *ratelimit.Limiter
	if app.Config.IngestRateLimit > 0 {
		var err error
		limiter, err = ratelimit.NewLocalLimiter(ratelimit.Config{
			RequestsPerSecond: app.Config.IngestRateLimit,
			BurstSize:         app.Config.IngestRateBurst,
		})
		if err != nil {
			return nil, err
		}
		app.Logger.Info("Ingest rate limiting enabled",
			logging.Field{Key: "requests_per_second", Value: app.Config.IngestRateLimit},
			logging.Field{Key: "burst", Value: limiter.Config().BurstSize},
		)
	}

	router := mux.NewRouter()
	SetupRoutes(router, handlers.New(app), limiter)
	return router, nil
}

// RunServer creates the HTTP server with all handlers configured
func (app *App) RunServer() (*server.Server, error) {
	handler, err := app.Handler()
	if err != nil {
		return nil, err
	}
	return server.New(handler, app.Config.Port), nil
}
