package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/decision-timeline-backend/internal/logger"
	"github.com/yungbote/decision-timeline-backend/internal/services"
)

type TraceHandler struct {
	log          *logger.Logger
	statsService services.TraceStatsService
}

func NewTraceHandler(log *logger.Logger, statsService services.TraceStatsService) *TraceHandler {
	return &TraceHandler{
		log:          log.With("handler", "TraceHandler"),
		statsService: statsService,
	}
}

func (h *TraceHandler) Stats(c *gin.Context) {
	days, err := parseIntParam(c, "days")
	if err != nil {
		RespondDomainError(c, h.log, "Stats", err)
		return
	}
	stats, err := h.statsService.Stats(c.Request.Context(), nil, days)
	if err != nil {
		RespondDomainError(c, h.log, "Stats", err)
		return
	}
	RespondOK(c, stats)
}

func (h *TraceHandler) Timeline(c *gin.Context) {
	days, err := parseIntParam(c, "days")
	if err != nil {
		RespondDomainError(c, h.log, "Timeline", err)
		return
	}
	timeline, err := h.statsService.Timeline(c.Request.Context(), nil, days)
	if err != nil {
		RespondDomainError(c, h.log, "Timeline", err)
		return
	}
	RespondOK(c, gin.H{"timeline": timeline})
}

func (h *TraceHandler) Search(c *gin.Context) {
	limit, err := parseIntParam(c, "limit")
	if err != nil {
		RespondDomainError(c, h.log, "Search", err)
		return
	}
	result, err := h.statsService.Search(c.Request.Context(), nil, c.Query("query"), limit)
	if err != nil {
		RespondDomainError(c, h.log, "Search", err)
		return
	}
	RespondOK(c, result)
}

func (h *TraceHandler) Tags(c *gin.Context) {
	result, err := h.statsService.Tags(c.Request.Context(), nil)
	if err != nil {
		RespondDomainError(c, h.log, "Tags", err)
		return
	}
	RespondOK(c, result)
}

func (h *TraceHandler) Overview(c *gin.Context) {
	days, err := parseIntParam(c, "days")
	if err != nil {
		RespondDomainError(c, h.log, "Overview", err)
		return
	}
	overview, err := h.statsService.Overview(c.Request.Context(), nil, days)
	if err != nil {
		RespondDomainError(c, h.log, "Overview", err)
		return
	}
	RespondOK(c, overview)
}
