package handlers

import (
	"github.com/gin-gonic/gin"
)

// NewRouter returns a gin engine with the work order routes registered.
func NewRouter(cfg HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	RegisterRoutes(r, cfg)

	return r
}
