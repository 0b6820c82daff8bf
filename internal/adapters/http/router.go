package http

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hsdfat8/fieldops/internal/domain/models"
	"github.com/hsdfat8/fieldops/internal/logger"
	"github.com/hsdfat8/fieldops/internal/observability"
)

// ginLogger returns a gin.HandlerFunc (middleware) that logs requests using our observability logger
func ginLogger() gin.HandlerFunc {
	log := observability.New("gin-http", "")

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		fields := []any{
			"status", statusCode,
			"method", c.Request.Method,
			"path", path,
			"ip", c.ClientIP(),
			"latency_ms", latency.Milliseconds(),
		}
		if query != "" {
			fields = append(fields, "query", query)
		}
		if errorMessage != "" {
			fields = append(fields, "error", errorMessage)
		}

		// Log based on status code
		switch {
		case statusCode >= 500:
			log.Errorw("HTTP request error", fields...)
		case statusCode >= 400:
			log.Warnw("HTTP request warning", fields...)
		default:
			log.Debugw("HTTP request", fields...)
		}
	}
}

// ginRecovery returns a gin.HandlerFunc (middleware) that recovers from panics and logs using our observability logger
func ginRecovery() gin.HandlerFunc {
	log := observability.New("gin-recovery", "")

	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Errorw("Panic recovered",
					"error", fmt.Sprint(err),
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
					"ip", c.ClientIP(),
					"stack", string(debug.Stack()),
				)
				problem(c, 500, "Internal Server Error", "unexpected server error")
				c.Abort()
			}
		}()
		c.Next()
	}
}

// SetupRouter creates and configures the HTTP router
func SetupRouter(deps Dependencies) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(ginRecovery())
	router.Use(ginLogger())

	h := NewHandler(deps)

	api := router.Group("/api/v1")
	{
		resources := api.Group("/resources")
		resources.GET("", listRecords[models.Resource](h, resourceFilter))
		resources.GET("/export", exportRecords[models.Resource](h, resourceFilter))
		resources.GET("/:id", getRecord[models.Resource](h))
		resources.POST("", createRecord[models.Resource](h))
		resources.PATCH("/:id", updateRecord[models.ResourcePatch](h))
		resources.DELETE("/:id", deleteRecord(h, models.CollectionResources))
		resources.POST("/:id/assign", h.AssignResource)
		resources.POST("/:id/return", h.ReturnResource)

		contacts := api.Group("/contacts")
		contacts.GET("", listRecords[models.Contact](h, contactFilter))
		contacts.GET("/export", exportRecords[models.Contact](h, contactFilter))
		contacts.GET("/:id", getRecord[models.Contact](h))
		contacts.POST("", createRecord[models.Contact](h))
		contacts.PATCH("/:id", updateRecord[models.ContactPatch](h))
		contacts.DELETE("/:id", deleteRecord(h, models.CollectionContacts))

		incidents := api.Group("/incidents")
		incidents.GET("", listRecords[models.Incident](h, incidentFilter))
		incidents.GET("/export", exportRecords[models.Incident](h, incidentFilter))
		incidents.GET("/:id", getRecord[models.Incident](h))
		incidents.POST("", createRecord[models.Incident](h))
		incidents.PATCH("/:id", updateRecord[models.IncidentPatch](h))
		incidents.PUT("/:id/status", h.UpdateIncidentStatus)

		personnel := api.Group("/personnel")
		personnel.GET("", listRecords[models.Personnel](h, personnelFilter))
		personnel.GET("/:id", getRecord[models.Personnel](h))
		personnel.POST("", createRecord[models.Personnel](h))
		personnel.PATCH("/:id", updateRecord[models.PersonnelPatch](h))
		personnel.DELETE("/:id", deleteRecord(h, models.CollectionPersonnel))

		api.GET("/assignments", listRecords[models.Assignment](h, assignmentFilter))

		locations := api.Group("/locations")
		locations.GET("/nearby", h.NearbyLocations)
		locations.GET("/:id", getRecord[models.Location](h))
		locations.POST("", createRecord[models.Location](h))
		locations.PATCH("/:id", updateRecord[models.LocationPatch](h))
		locations.DELETE("/:id", deleteRecord(h, models.CollectionLocations))

		facilities := api.Group("/facilities")
		facilities.GET("", h.ListFacilities)
		facilities.POST("", h.AddFacility)
		facilities.GET("/nearby", h.NearbyFacilities)
		facilities.GET("/nearest", h.NearestFacility)
		facilities.GET("/emergency", h.EmergencyFacilities)
		facilities.GET("/statistics", h.FacilityStatistics)
		facilities.GET("/export", h.ExportFacilities)
		facilities.POST("/import", h.ImportFacilities)
		facilities.GET("/:id", h.GetFacility)

		sim := api.Group("/simulator")
		sim.GET("/state", h.GetSimulatorState)
		sim.PUT("/mode", h.SetConnectivityMode)
		sim.PUT("/power", h.SetPowerMode)
		sim.GET("/connected", h.CheckConnectivity)
		sim.GET("/stats", h.GetSimulatorStats)
		sim.GET("/power-history", h.GetPowerHistory)
		sim.GET("/export", h.ExportSimulation)
		sim.POST("/start", h.StartSampler)
		sim.POST("/stop", h.StopSampler)

		api.POST("/harness/runs", h.RunHarness)
		api.GET("/harness/runs", h.ListHarnessRuns)
		api.GET("/harness/summary", h.HarnessSummary)

		api.GET("/database/info", h.GetDatabaseInfo)
		api.GET("/database/health", h.GetDatabaseHealth)
	}

	router.GET("/health", h.HealthCheck)
	if deps.MetricsPath != "" {
		logger.InitMetrics()
		router.GET(deps.MetricsPath, gin.WrapH(logger.MetricsHandler()))
	}

	return router
}
