package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulsetrack/conditioning/internal/conditioning"
	"github.com/pulsetrack/conditioning/internal/timeseries"
	"github.com/pulsetrack/conditioning/pkg/common/structs"
	"github.com/pulsetrack/conditioning/pkg/query"
)

type handlers struct {
	svc *conditioning.Service
}

func (h *handlers) listLogs(c *gin.Context) {
	q, err := query.ParseQuery(c.Request.URL.Query())
	if err != nil {
		respondInvalid(c, err)
		return
	}

	logs, err := h.svc.ListLogs(c.Request.Context(), callerFromRequest(c), c.Param("userID"), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func (h *handlers) createLog(c *gin.Context) {
	var body structs.ConditioningLog
	if err := c.ShouldBindJSON(&body); err != nil {
		respondInvalid(c, err)
		return
	}

	id, err := h.svc.CreateLog(c.Request.Context(), callerFromRequest(c), c.Param("userID"), &body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *handlers) fetchLog(c *gin.Context) {
	log, err := h.svc.FetchLog(c.Request.Context(), callerFromRequest(c),
		c.Param("userID"), c.Param("logID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, log)
}

func (h *handlers) updateLog(c *gin.Context) {
	var patch structs.ConditioningLogPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondInvalid(c, err)
		return
	}
	patch.ID = c.Param("logID")

	if err := h.svc.UpdateLog(c.Request.Context(), callerFromRequest(c), c.Param("userID"), &patch); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) deleteLog(c *gin.Context) {
	err := h.svc.DeleteLog(c.Request.Context(), callerFromRequest(c),
		c.Param("userID"), c.Param("logID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) undeleteLog(c *gin.Context) {
	err := h.svc.UndeleteLog(c.Request.Context(), callerFromRequest(c),
		c.Param("userID"), c.Param("logID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) aggregate(c *gin.Context) {
	op, err := timeseries.ParseOperation(c.DefaultQuery("op", "sum"))
	if err != nil {
		respondInvalid(c, err)
		return
	}
	rate, err := timeseries.ParseSampleRate(c.DefaultQuery("sample_rate", "day"))
	if err != nil {
		respondInvalid(c, err)
		return
	}

	field := c.DefaultQuery("field", "duration")
	if field != "duration" {
		respondInvalid(c, fmt.Errorf("unsupported aggregation field %q", field))
		return
	}
	unit := c.DefaultQuery("unit", "min")

	q, err := query.ParseQuery(c.Request.URL.Query())
	if err != nil {
		respondInvalid(c, err)
		return
	}

	out, err := h.svc.Aggregate(c.Request.Context(), callerFromRequest(c), c.Param("userID"),
		timeseries.AggregationSpec{Operation: op, SampleRate: rate}, unit, q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"buckets": out})
}
