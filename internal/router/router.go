package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/statusdeck-dev/statusdeck/internal/handlers"
	"github.com/statusdeck-dev/statusdeck/internal/incidents"
	"github.com/statusdeck-dev/statusdeck/internal/middleware"
	"github.com/statusdeck-dev/statusdeck/internal/types"
)

func NewRouter(service *incidents.Service) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.RequestID())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     types.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	incidentHandler := handlers.NewIncidentHandler(service)

	api := r.Group("/api")
	{
		api.GET("/health", handlers.HealthCheck)
		api.GET("/ws", middleware.AuthMiddleware(), handlers.WebSocket)

		auth := api.Group("/auth")
		{
			auth.POST("/register", handlers.CreateUser)
			auth.POST("/login", handlers.LoginUser)
			auth.POST("/logout", handlers.LogoutUser)
			auth.GET("/me", middleware.AuthMiddleware(), handlers.Me)
			auth.PATCH("/me", middleware.AuthMiddleware(), handlers.UpdateUser)
		}

		incidentRoutes := api.Group("/incidents", middleware.AuthMiddleware())
		{
			incidentRoutes.POST("", incidentHandler.CreateIncident)
			incidentRoutes.GET("", incidentHandler.ListIncidents)
			incidentRoutes.GET("/:incident_id", incidentHandler.GetIncident)
			incidentRoutes.DELETE("/:incident_id", incidentHandler.DeleteIncident)

			incidentRoutes.POST("/:incident_id/advance", incidentHandler.AdvanceIncident)
			incidentRoutes.POST("/:incident_id/resolve", incidentHandler.ResolveIncident)
			incidentRoutes.POST("/:incident_id/reopen", incidentHandler.ReopenIncident)
			incidentRoutes.PATCH("/:incident_id/severity", incidentHandler.UpdateSeverity)

			incidentRoutes.POST("/:incident_id/entities", incidentHandler.AddAffectedEntity)
			incidentRoutes.DELETE("/:incident_id/entities/:entity_type/:entity_id", incidentHandler.RemoveAffectedEntity)

			incidentRoutes.POST("/:incident_id/timeline", incidentHandler.AddTimelineNote)
			incidentRoutes.GET("/:incident_id/timeline", incidentHandler.ListTimeline)
		}

		entities := api.Group("/entities", middleware.AuthMiddleware())
		{
			entities.GET("/:entity_type/:entity_id/status", incidentHandler.GetEntityStatus)
		}
	}

	return r
}
