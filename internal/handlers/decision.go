package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/decision-timeline-backend/internal/logger"
	"github.com/yungbote/decision-timeline-backend/internal/services"
)

type DecisionHandler struct {
	log             *logger.Logger
	decisionService services.DecisionService
	exportService   services.ExportService
}

func NewDecisionHandler(log *logger.Logger, decisionService services.DecisionService, exportService services.ExportService) *DecisionHandler {
	return &DecisionHandler{
		log:             log.With("handler", "DecisionHandler"),
		decisionService: decisionService,
		exportService:   exportService,
	}
}

func (h *DecisionHandler) Create(c *gin.Context) {
	var input services.CreateDecisionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusUnprocessableEntity, "invalid_body", err)
		return
	}
	decision, err := h.decisionService.Create(c.Request.Context(), nil, input)
	if err != nil {
		RespondDomainError(c, h.log, "Create", err)
		return
	}
	c.JSON(http.StatusCreated, decision)
}

func (h *DecisionHandler) List(c *gin.Context) {
	filter, err := parseListFilter(c)
	if err != nil {
		RespondDomainError(c, h.log, "List", err)
		return
	}
	result, err := h.decisionService.List(c.Request.Context(), nil, filter)
	if err != nil {
		RespondDomainError(c, h.log, "List", err)
		return
	}
	// Legacy consumers get the bare array; the rich shape is the
	// default and the only one the core produces.
	if c.Query("shape") == "array" {
		RespondOK(c, result.Decisions)
		return
	}
	RespondOK(c, result)
}

func (h *DecisionHandler) Get(c *gin.Context) {
	decision, err := h.decisionService.Get(c.Request.Context(), nil, c.Param("decision_id"))
	if err != nil {
		RespondDomainError(c, h.log, "Get", err)
		return
	}
	RespondOK(c, decision)
}

func (h *DecisionHandler) Replay(c *gin.Context) {
	replay, err := h.decisionService.Replay(c.Request.Context(), nil, c.Param("decision_id"))
	if err != nil {
		RespondDomainError(c, h.log, "Replay", err)
		return
	}
	RespondOK(c, replay)
}

type updateOutcomeRequest struct {
	Outcome     string                 `json:"outcome"`
	OutcomeData map[string]interface{} `json:"outcome_data"`
}

func (h *DecisionHandler) UpdateOutcome(c *gin.Context) {
	var req updateOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusUnprocessableEntity, "invalid_body", err)
		return
	}
	decision, err := h.decisionService.UpdateOutcome(c.Request.Context(), nil, c.Param("decision_id"), req.Outcome, req.OutcomeData)
	if err != nil {
		RespondDomainError(c, h.log, "UpdateOutcome", err)
		return
	}
	RespondOK(c, decision)
}

type updateTagsRequest struct {
	Tags []string `json:"tags"`
}

func (h *DecisionHandler) UpdateTags(c *gin.Context) {
	var req updateTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusUnprocessableEntity, "invalid_body", err)
		return
	}
	decision, err := h.decisionService.UpdateTags(c.Request.Context(), nil, c.Param("decision_id"), req.Tags)
	if err != nil {
		RespondDomainError(c, h.log, "UpdateTags", err)
		return
	}
	RespondOK(c, decision)
}

func (h *DecisionHandler) Delete(c *gin.Context) {
	if err := h.decisionService.Delete(c.Request.Context(), nil, c.Param("decision_id")); err != nil {
		RespondDomainError(c, h.log, "Delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DecisionHandler) ExportCSV(c *gin.Context) {
	filter, err := parseListFilter(c)
	if err != nil {
		RespondDomainError(c, h.log, "ExportCSV", err)
		return
	}
	data, err := h.exportService.ExportCSV(c.Request.Context(), nil, filter)
	if err != nil {
		RespondDomainError(c, h.log, "ExportCSV", err)
		return
	}
	filename := fmt.Sprintf("decisions_%s.csv", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "text/csv", data)
}

func (h *DecisionHandler) ExportJSON(c *gin.Context) {
	filter, err := parseListFilter(c)
	if err != nil {
		RespondDomainError(c, h.log, "ExportJSON", err)
		return
	}
	data, err := h.exportService.ExportJSON(c.Request.Context(), nil, filter)
	if err != nil {
		RespondDomainError(c, h.log, "ExportJSON", err)
		return
	}
	filename := fmt.Sprintf("decisions_%s.json", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "application/json", data)
}

func parseListFilter(c *gin.Context) (services.ListFilter, error) {
	filter := services.ListFilter{
		Source: c.Query("source"),
		Tag:    c.Query("tag"),
		Search: c.Query("search"),
		Sort:   c.Query("sort"),
	}

	var err error
	if filter.Limit, err = parseIntParam(c, "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = parseIntParam(c, "offset"); err != nil {
		return filter, err
	}
	if filter.MinConfidence, err = parseFloatParam(c, "min_confidence"); err != nil {
		return filter, err
	}
	if filter.MaxConfidence, err = parseFloatParam(c, "max_confidence"); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseIntParam(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, services.NewValidationError(name, "must be an integer")
	}
	return val, nil
}

func parseFloatParam(c *gin.Context, name string) (*float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, services.NewValidationError(name, "must be a number")
	}
	return &val, nil
}
