package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/decision-timeline-backend/internal/logger"
	"github.com/yungbote/decision-timeline-backend/internal/repos"
	"github.com/yungbote/decision-timeline-backend/internal/types"
)

// ExportService renders read-only snapshots of a filtered list query.
// Exports ignore pagination: a snapshot covers every matching row.
type ExportService interface {
	ExportCSV(ctx context.Context, tx *gorm.DB, filter ListFilter) ([]byte, error)
	ExportJSON(ctx context.Context, tx *gorm.DB, filter ListFilter) ([]byte, error)
}

type exportService struct {
	db           *gorm.DB
	log          *logger.Logger
	decisionRepo repos.DecisionRepo
}

func NewExportService(db *gorm.DB, baseLog *logger.Logger, decisionRepo repos.DecisionRepo) ExportService {
	serviceLog := baseLog.With("service", "ExportService")
	return &exportService{db: db, log: serviceLog, decisionRepo: decisionRepo}
}

func (es *exportService) snapshot(ctx context.Context, tx *gorm.DB, filter ListFilter) ([]*types.Decision, error) {
	decisions, _, err := es.decisionRepo.List(ctx, tx, repos.DecisionFilter{
		Source:        filter.Source,
		MinConfidence: filter.MinConfidence,
		MaxConfidence: filter.MaxConfidence,
		Tag:           filter.Tag,
		Search:        filter.Search,
		Sort:          filter.Sort,
	})
	if err != nil {
		return nil, fmt.Errorf("load export snapshot: %w", err)
	}
	return decisions, nil
}

func (es *exportService) ExportCSV(ctx context.Context, tx *gorm.DB, filter ListFilter) ([]byte, error) {
	decisions, err := es.snapshot(ctx, tx, filter)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	header := []string{"Decision ID", "Timestamp", "Decision", "Confidence", "Source", "Reasoning", "Outcome", "Tags"}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, d := range decisions {
		outcome := ""
		if d.Outcome != nil {
			outcome = *d.Outcome
		}
		record := []string{
			d.ExternalID,
			d.Timestamp.Format(time.RFC3339),
			d.Decision,
			strconv.FormatFloat(d.Confidence, 'f', -1, 64),
			string(d.Source),
			d.Reasoning,
			outcome,
			strings.Join(d.TagList(), ","),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	es.log.Info("CSV export generated", "decisions", len(decisions))
	return buf.Bytes(), nil
}

func (es *exportService) ExportJSON(ctx context.Context, tx *gorm.DB, filter ListFilter) ([]byte, error) {
	decisions, err := es.snapshot(ctx, tx, filter)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"export_date":     time.Now().UTC().Format(time.RFC3339),
		"total_decisions": len(decisions),
		"decisions":       decisions,
	}
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	es.log.Info("JSON export generated", "decisions", len(decisions))
	return raw, nil
}
