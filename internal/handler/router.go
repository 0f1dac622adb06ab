package handler

import (
	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Documents *DocumentHandler
	Query     *QueryHandler
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/upload", deps.Documents.Upload)
	api.POST("/upload/url", deps.Documents.UploadURL)
	api.GET("/collections", deps.Documents.Collections)
	api.POST("/query", deps.Query.Query)
}
