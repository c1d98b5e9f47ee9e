package handler

import (
	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Documents *DocumentHandler
	Search    *SearchHandler
	Refresh   *RefreshHandler
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/documents", deps.Documents.Ingest)
	api.GET("/documents/:id", deps.Documents.Get)
	api.GET("/documents/:id/audit", deps.Documents.Audit)
	api.GET("/documents/:id/original", deps.Documents.Download)

	api.POST("/search", deps.Search.Search)

	api.POST("/admin/refresh", deps.Refresh.Trigger)
}
