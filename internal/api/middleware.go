package api

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pulsetrack/conditioning/pkg/common/constants"
	"github.com/pulsetrack/conditioning/pkg/common/structs"
	"github.com/pulsetrack/conditioning/pkg/logger"
)

// Caller identity headers, filled in by the authenticating proxy in front of
// this service. The core trusts them as-is.
const (
	headerCallerID    = "X-Caller-Id"
	headerCallerRoles = "X-Caller-Roles"
	headerRequestID   = "X-Request-Id"
)

// requestIDMiddleware attaches a request id to the request context so every
// log line below carries it, generating one when the caller sent none.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Request = c.Request.WithContext(logger.WithRequestId(c.Request.Context(), requestID))
		c.Header(headerRequestID, requestID)
		c.Set(constants.RequestIdKey, requestID)
		c.Next()
	}
}

// callerFromRequest builds the caller identity from the request headers.
func callerFromRequest(c *gin.Context) structs.Caller {
	caller := structs.Caller{UserID: c.GetHeader(headerCallerID)}
	if raw := c.GetHeader(headerCallerRoles); raw != "" {
		for _, role := range strings.Split(raw, ",") {
			if role = strings.TrimSpace(role); role != "" {
				caller.Roles = append(caller.Roles, role)
			}
		}
	}
	return caller
}
