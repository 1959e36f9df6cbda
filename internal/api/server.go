// Package api exposes the conditioning core over REST. It builds the caller
// context from trusted identity headers, maps the core's error taxonomy to
// status codes and performs no business logic of its own.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulsetrack/conditioning/internal/conditioning"
	"github.com/pulsetrack/conditioning/pkg/common/apperrors"
	"github.com/pulsetrack/conditioning/pkg/logger"
)

// NewRouter builds the gin engine with all routes registered.
func NewRouter(svc *conditioning.Service) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestIDMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := &handlers{svc: svc}
	v1 := router.Group("/api/v1")
	{
		v1.GET("/users/:userID/logs", h.listLogs)
		v1.POST("/users/:userID/logs", h.createLog)
		v1.GET("/users/:userID/logs/:logID", h.fetchLog)
		v1.PATCH("/users/:userID/logs/:logID", h.updateLog)
		v1.DELETE("/users/:userID/logs/:logID", h.deleteLog)
		v1.POST("/users/:userID/logs/:logID/undelete", h.undeleteLog)
		v1.GET("/users/:userID/aggregations", h.aggregate)
	}
	return router
}

// respondError maps the core error taxonomy onto status codes.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperrors.IsUnauthorized(err):
		status = http.StatusForbidden
	case apperrors.IsNotFound(err):
		status = http.StatusNotFound
	case apperrors.IsPersistence(err):
		status = http.StatusInternalServerError
	}
	if status == http.StatusInternalServerError {
		logger.Logger(c.Request.Context()).WithError(err).Error("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func respondInvalid(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
