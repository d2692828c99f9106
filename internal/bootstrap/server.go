package bootstrap

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/api"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/database"
)

const serviceName = "content-crawler"

// SetupHTTPServer builds the API server with readiness checks for every
// connected backend.
func SetupHTTPServer(app *App, version string) *api.Server {
	checks := map[string]api.Check{
		"database": func(ctx context.Context) error { return database.Ping(ctx, app.DB) },
	}
	if app.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return app.Redis.Ping(ctx).Err() }
	}

	routes := api.RouterConfig{
		Service:   serviceName,
		Version:   version,
		JWTSecret: app.Config.Auth.JWTSecret,
		Jobs:      app.Services.Orchestrator,
		Checks:    checks,
		Metrics:   app.Metrics.Handler(),
	}
	return api.NewServer(app.Config.Server, app.Logger, func(r *gin.Engine) {
		api.SetupRoutes(r, routes)
	})
}
