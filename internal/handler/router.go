package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/notewise/notewise/internal/middleware"
)

type RouterDeps struct {
	QA              *QAHandler
	Vectors         *VectorHandler
	JWTSecret       []byte
	AskRateInterval time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))

	askGroup := authGroup.Group("")
	if deps.AskRateInterval > 0 {
		askGroup.Use(middleware.RateLimit(deps.AskRateInterval))
	}
	askGroup.POST("/qa/ask", deps.QA.Ask)
	askGroup.POST("/qa/ask/stream", deps.QA.AskStream)

	authGroup.POST("/vectorize", deps.Vectors.Vectorize)
	authGroup.GET("/vectorize/status", deps.Vectors.GetStatus)
	authGroup.GET("/vectorize/chunks", deps.Vectors.ListChunks)
	authGroup.POST("/library/reassociate", deps.Vectors.Reassociate)
}
