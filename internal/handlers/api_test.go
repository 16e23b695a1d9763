package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yungbote/decision-timeline-backend/internal/handlers"
	"github.com/yungbote/decision-timeline-backend/internal/logger"
	"github.com/yungbote/decision-timeline-backend/internal/repos"
	"github.com/yungbote/decision-timeline-backend/internal/server"
	"github.com/yungbote/decision-timeline-backend/internal/services"
	"github.com/yungbote/decision-timeline-backend/internal/types"
)

var testDBSeq int64

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:decisionapi%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.AutoMigrate(&types.Decision{}, &types.DecisionStep{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log := logger.NewNop()
	decisionRepo := repos.NewDecisionRepo(gdb, log)
	decisionService := services.NewDecisionService(gdb, log, decisionRepo)
	statsService := services.NewTraceStatsService(gdb, log, decisionRepo)
	exportService := services.NewExportService(gdb, log, decisionRepo)

	return server.NewRouter(server.RouterConfig{
		DecisionHandler: handlers.NewDecisionHandler(log, decisionService, exportService),
		TraceHandler:    handlers.NewTraceHandler(log, statsService),
	})
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func validCreateBody() map[string]interface{} {
	return map[string]interface{}{
		"input_data": map[string]interface{}{"user_id": "u1", "amount": 50},
		"reasoning":  "meets criteria",
		"decision":   "approve",
		"confidence": 0.92,
		"source":     "rule",
		"tags":       []string{"billing"},
	}
}

func TestDecisionLifecycle(t *testing.T) {
	router := newTestRouter(t)

	// Create
	rec := doJSON(t, router, http.MethodPost, "/api/decisions", validCreateBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var created struct {
		DecisionID string `json:"decision_id"`
		Confidence float64
		Steps      []map[string]interface{} `json:"steps"`
	}
	decodeBody(t, rec, &created)
	if created.DecisionID == "" || len(created.Steps) == 0 {
		t.Fatalf("created record incomplete: %s", rec.Body.String())
	}

	// Detail
	rec = doJSON(t, router, http.MethodGet, "/api/decisions/"+created.DecisionID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("detail: expected 200, got %d", rec.Code)
	}

	// Replay
	rec = doJSON(t, router, http.MethodGet, "/api/decisions/"+created.DecisionID+"/replay", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("replay: expected 200, got %d", rec.Code)
	}
	var replay struct {
		TotalSteps int `json:"total_steps"`
	}
	decodeBody(t, rec, &replay)
	if replay.TotalSteps != len(created.Steps) {
		t.Fatalf("replay step count mismatch: %d vs %d", replay.TotalSteps, len(created.Steps))
	}

	// Outcome update
	rec = doJSON(t, router, http.MethodPatch, "/api/decisions/"+created.DecisionID+"/outcome", map[string]interface{}{
		"outcome": "request approved",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update outcome: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	// Tag replacement
	rec = doJSON(t, router, http.MethodPut, "/api/decisions/"+created.DecisionID+"/tags", map[string]interface{}{
		"tags": []string{"fraud", "fraud", "escalation"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update tags: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var retagged struct {
		Tags []string `json:"tags"`
	}
	decodeBody(t, rec, &retagged)
	if len(retagged.Tags) != 2 {
		t.Fatalf("tags must replace the set with duplicates collapsed, got %v", retagged.Tags)
	}
	for _, tag := range retagged.Tags {
		if tag == "billing" {
			t.Fatalf("tag from create survived replacement: %v", retagged.Tags)
		}
	}
	rec = doJSON(t, router, http.MethodPut, "/api/decisions/dec_missing00000/tags", map[string]interface{}{
		"tags": []string{"x"},
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("tags on unknown id: expected 404, got %d", rec.Code)
	}

	// Delete
	rec = doJSON(t, router, http.MethodDelete, "/api/decisions/"+created.DecisionID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("delete body must be empty, got %q", rec.Body.String())
	}

	// Gone
	rec = doJSON(t, router, http.MethodGet, "/api/decisions/"+created.DecisionID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodDelete, "/api/decisions/"+created.DecisionID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rec.Code)
	}
}

func TestCreateValidationFailures(t *testing.T) {
	router := newTestRouter(t)

	cases := []struct {
		name   string
		mutate func(map[string]interface{})
	}{
		{"confidence too high", func(b map[string]interface{}) { b["confidence"] = 1.01 }},
		{"confidence negative", func(b map[string]interface{}) { b["confidence"] = -0.01 }},
		{"unknown source", func(b map[string]interface{}) { b["source"] = "oracle" }},
		{"missing decision", func(b map[string]interface{}) { delete(b, "decision") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := validCreateBody()
			tc.mutate(body)
			rec := doJSON(t, router, http.MethodPost, "/api/decisions", body)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d (%s)", rec.Code, rec.Body.String())
			}
			var envelope struct {
				Error struct {
					Code  string `json:"code"`
					Field string `json:"field"`
				} `json:"error"`
			}
			decodeBody(t, rec, &envelope)
			if envelope.Error.Code != "validation_failed" {
				t.Fatalf("expected validation_failed code, got %q", envelope.Error.Code)
			}
		})
	}
}

func TestListShapes(t *testing.T) {
	router := newTestRouter(t)

	for i := 0; i < 3; i++ {
		rec := doJSON(t, router, http.MethodPost, "/api/decisions", validCreateBody())
		if rec.Code != http.StatusCreated {
			t.Fatalf("seed create: %d", rec.Code)
		}
	}

	rec := doJSON(t, router, http.MethodGet, "/api/decisions?limit=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var rich struct {
		Decisions []json.RawMessage `json:"decisions"`
		Total     int               `json:"total"`
		HasMore   bool              `json:"has_more"`
	}
	decodeBody(t, rec, &rich)
	if rich.Total != 3 || len(rich.Decisions) != 2 || !rich.HasMore {
		t.Fatalf("unexpected rich shape: total=%d len=%d has_more=%v", rich.Total, len(rich.Decisions), rich.HasMore)
	}

	// Legacy boundary adapter.
	rec = doJSON(t, router, http.MethodGet, "/api/decisions?shape=array", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("legacy list: expected 200, got %d", rec.Code)
	}
	if !strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "[") {
		t.Fatalf("legacy shape must be a bare array, got %q", rec.Body.String())
	}
}

func TestTraceEndpoints(t *testing.T) {
	router := newTestRouter(t)

	body := validCreateBody()
	body["reasoning"] = "Refund processed"
	rec := doJSON(t, router, http.MethodPost, "/api/decisions", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed create: %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/traces/stats?days=7", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d", rec.Code)
	}
	var stats struct {
		TotalDecisions int `json:"total_decisions"`
	}
	decodeBody(t, rec, &stats)
	if stats.TotalDecisions != 1 {
		t.Fatalf("expected 1 decision in stats, got %d", stats.TotalDecisions)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/traces/timeline", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("timeline: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/traces/search?query=refund", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search: expected 200, got %d", rec.Code)
	}
	var search struct {
		TotalResults int `json:"total_results"`
	}
	decodeBody(t, rec, &search)
	if search.TotalResults != 1 {
		t.Fatalf("expected 1 search hit, got %d", search.TotalResults)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/traces/search", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("search without query: expected 422, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/traces/tags", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("tags: expected 200, got %d", rec.Code)
	}
	var tags struct {
		TotalUniqueTags int `json:"total_unique_tags"`
	}
	decodeBody(t, rec, &tags)
	if tags.TotalUniqueTags != 1 {
		t.Fatalf("expected 1 unique tag, got %d", tags.TotalUniqueTags)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/stats/overview", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("overview: expected 200, got %d", rec.Code)
	}
}

func TestExportEndpoints(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/decisions", validCreateBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed create: %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/decisions/export/csv", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("csv export: expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("csv content type: %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Fatalf("csv disposition: %q", cd)
	}
	if !strings.Contains(rec.Body.String(), "Decision ID") {
		t.Fatalf("csv header row missing: %q", rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/api/decisions/export/json", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("json export: expected 200, got %d", rec.Code)
	}
	var export struct {
		TotalDecisions int `json:"total_decisions"`
	}
	decodeBody(t, rec, &export)
	if export.TotalDecisions != 1 {
		t.Fatalf("expected 1 exported decision, got %d", export.TotalDecisions)
	}
}

func TestHealthcheck(t *testing.T) {
	router := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/healthcheck", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthcheck: expected 200, got %d", rec.Code)
	}
}
