package handlers

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router groups every API handler.
type Router struct {
	Duplicates *DuplicatesHandler
	Merges     *MergesHandler
	Health     *HealthChecker
}

// Register mounts all routes on the echo instance.
func (r *Router) Register(e *echo.Echo) {
	r.Health.Register(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/api/v1")
	r.Duplicates.Register(v1.Group("/duplicates"))
	r.Duplicates.RegisterPersonRoutes(v1.Group("/people"))
	r.Merges.Register(v1.Group("/merges"))
}
