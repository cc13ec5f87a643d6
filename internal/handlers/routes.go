package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the query, ingestion and admin surfaces on router
func RegisterRoutes(router *gin.Engine, contests *ContestHandler, admin *AdminHandler) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	api := router.Group("/api")
	{
		api.GET("/contests", contests.ListContests)
		api.GET("/contests/:id", contests.GetContestStatus)
		api.GET("/contests/:id/transitions", contests.GetTransitions)
		api.GET("/contests/:id/settlements", contests.GetSettlements)
		api.GET("/contests/:id/standings", contests.GetStandings)
		api.GET("/templates/:id", contests.GetTemplate)
	}

	ingest := api.Group("/ingest")
	{
		ingest.POST("/contests/:id/standings", contests.IngestStandings)
		ingest.POST("/templates/:id/cancelled", contests.TemplateCancelled)
	}

	adminRoutes := api.Group("/admin")
	adminRoutes.Use(admin.OperatorMiddleware())
	{
		adminRoutes.POST("/contests", admin.CreateContest)
		adminRoutes.PUT("/contests/:id/times", admin.UpdateContestTimes)
		adminRoutes.POST("/contests/:id/force-lock", admin.ForceLock)
		adminRoutes.POST("/contests/:id/force-live", admin.ForceLive)
		adminRoutes.POST("/contests/:id/cancel", admin.CancelContest)
		adminRoutes.POST("/contests/:id/mark-error", admin.MarkError)
		adminRoutes.POST("/contests/:id/resolve-error", admin.ResolveError)
		adminRoutes.POST("/contests/:id/settle", admin.SettleContest)

		adminRoutes.GET("/templates", admin.ListTemplates)
		adminRoutes.POST("/templates", admin.CreateTemplate)
		adminRoutes.PATCH("/templates/:id", admin.UpdateTemplate)
		adminRoutes.POST("/templates/:id/cancel", admin.CancelTemplate)

		adminRoutes.GET("/logs", admin.GetAdminLogs)
	}
}
