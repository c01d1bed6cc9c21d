// Package admin registers the admin API surface.
package admin

import (
	"time"

	"github.com/seedframe/adminapi/internal/aggregate"
	internalhttp "github.com/seedframe/adminapi/internal/http"
	"github.com/seedframe/adminapi/internal/http/api/admin/handlers"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RegisterAdminRoutes wires the admin endpoints onto the engine.
func RegisterAdminRoutes(engine *gin.Engine, conn *gorm.DB, agg aggregate.Engine, adminPassword string, requestTimeout time.Duration) {
	health := handlers.NewHealthHandler(conn)
	engine.GET("/healthz", health.Healthz)

	usageLogs := handlers.NewUsageLogsHandler(agg, requestTimeout)

	group := engine.Group("/v0/admin")
	group.Use(internalhttp.AdminAuthMiddleware(adminPassword))
	group.POST("/usage-logs/aggregated", usageLogs.Aggregated)
}
