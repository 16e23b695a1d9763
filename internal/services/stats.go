package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/decision-timeline-backend/internal/logger"
	"github.com/yungbote/decision-timeline-backend/internal/repos"
	"github.com/yungbote/decision-timeline-backend/internal/types"
)

const (
	defaultStatsDays    = 7
	defaultOverviewDays = 30
	maxWindowDays       = 365

	lowConfidenceThreshold  = 0.5
	highConfidenceThreshold = 0.8

	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

type TraceStats struct {
	PeriodDays              int              `json:"period_days"`
	TotalDecisions          int64            `json:"total_decisions"`
	DecisionsBySource       map[string]int64 `json:"decisions_by_source"`
	AverageConfidence       float64          `json:"average_confidence"`
	LowConfidenceCount      int64            `json:"low_confidence_count"`
	LowConfidencePercentage float64          `json:"low_confidence_percentage"`
}

type TimelinePoint struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type SearchHit struct {
	ExternalID string               `json:"decision_id"`
	Timestamp  time.Time            `json:"timestamp"`
	Decision   string               `json:"decision"`
	Reasoning  string               `json:"reasoning"`
	Confidence float64              `json:"confidence"`
	Source     types.DecisionSource `json:"source"`
}

type SearchResult struct {
	Query        string      `json:"query"`
	TotalResults int         `json:"total_results"`
	Results      []SearchHit `json:"results"`
}

type TagsResult struct {
	Tags            []string `json:"tags"`
	TotalUniqueTags int      `json:"total_unique_tags"`
}

type SourceShare struct {
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

type ConfidenceRanges struct {
	High   int64 `json:"high"`
	Medium int64 `json:"medium"`
	Low    int64 `json:"low"`
}

type Overview struct {
	PeriodDays         int                    `json:"period_days"`
	TotalDecisions     int64                  `json:"total_decisions"`
	AverageConfidence  float64                `json:"average_confidence"`
	LowestConfidence   float64                `json:"lowest_confidence"`
	SourceDistribution map[string]SourceShare `json:"source_distribution"`
	ConfidenceRanges   ConfidenceRanges       `json:"confidence_ranges"`
	DailyTrend         []TimelinePoint        `json:"daily_trend"`
}

type TraceStatsService interface {
	Stats(ctx context.Context, tx *gorm.DB, days int) (*TraceStats, error)
	Timeline(ctx context.Context, tx *gorm.DB, days int) ([]TimelinePoint, error)
	Search(ctx context.Context, tx *gorm.DB, query string, limit int) (*SearchResult, error)
	Tags(ctx context.Context, tx *gorm.DB) (*TagsResult, error)
	Overview(ctx context.Context, tx *gorm.DB, days int) (*Overview, error)
}

type traceStatsService struct {
	db           *gorm.DB
	log          *logger.Logger
	decisionRepo repos.DecisionRepo
}

func NewTraceStatsService(db *gorm.DB, baseLog *logger.Logger, decisionRepo repos.DecisionRepo) TraceStatsService {
	serviceLog := baseLog.With("service", "TraceStatsService")
	return &traceStatsService{db: db, log: serviceLog, decisionRepo: decisionRepo}
}

func (ts *traceStatsService) Stats(ctx context.Context, tx *gorm.DB, days int) (*TraceStats, error) {
	days = clampDays(days, defaultStatsDays)
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	aggregate, err := ts.decisionRepo.AggregateSince(ctx, tx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("aggregate decisions: %w", err)
	}
	sourceRows, err := ts.decisionRepo.CountBySourceSince(ctx, tx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("count by source: %w", err)
	}
	low := lowConfidenceThreshold
	lowCount, err := ts.decisionRepo.ConfidenceBandCountSince(ctx, tx, cutoff, nil, &low)
	if err != nil {
		return nil, fmt.Errorf("count low confidence: %w", err)
	}

	bySource := map[string]int64{}
	for _, row := range sourceRows {
		bySource[string(row.Source)] = row.Count
	}

	stats := &TraceStats{
		PeriodDays:         days,
		TotalDecisions:     aggregate.Total,
		DecisionsBySource:  bySource,
		LowConfidenceCount: lowCount,
	}
	// Empty window: averages and ratios are defined as zero, never a
	// division error.
	if aggregate.AvgConfidence != nil {
		stats.AverageConfidence = roundTo(*aggregate.AvgConfidence, 4)
	}
	if aggregate.Total > 0 {
		stats.LowConfidencePercentage = roundTo(float64(lowCount)/float64(aggregate.Total)*100, 2)
	}
	return stats, nil
}

func (ts *traceStatsService) Timeline(ctx context.Context, tx *gorm.DB, days int) ([]TimelinePoint, error) {
	days = clampDays(days, defaultStatsDays)
	now := time.Now().UTC()
	cutoff := now.AddDate(0, 0, -days)

	stamps, err := ts.decisionRepo.TimestampsSince(ctx, tx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("load timestamps: %w", err)
	}

	counts := map[string]int64{}
	for _, stamp := range stamps {
		counts[stamp.UTC().Format("2006-01-02")]++
	}

	// Every calendar day in the window appears, zero-count days included.
	var timeline []TimelinePoint
	for day := truncateToDay(cutoff); !day.After(now); day = day.AddDate(0, 0, 1) {
		key := day.Format("2006-01-02")
		timeline = append(timeline, TimelinePoint{Date: key, Count: counts[key]})
	}
	return timeline, nil
}

func (ts *traceStatsService) Search(ctx context.Context, tx *gorm.DB, query string, limit int) (*SearchResult, error) {
	if query == "" {
		return nil, NewValidationError("query", "is required")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	decisions, err := ts.decisionRepo.SearchContent(ctx, tx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search decisions: %w", err)
	}

	hits := make([]SearchHit, 0, len(decisions))
	for _, d := range decisions {
		reasoning := truncateRunes(d.Reasoning, 200)
		hits = append(hits, SearchHit{
			ExternalID: d.ExternalID,
			Timestamp:  d.Timestamp,
			Decision:   d.Decision,
			Reasoning:  reasoning,
			Confidence: d.Confidence,
			Source:     d.Source,
		})
	}

	return &SearchResult{
		Query:        query,
		TotalResults: len(hits),
		Results:      hits,
	}, nil
}

func (ts *traceStatsService) Tags(ctx context.Context, tx *gorm.DB) (*TagsResult, error) {
	tags, err := ts.decisionRepo.AllTags(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("load tags: %w", err)
	}
	sort.Strings(tags)
	if tags == nil {
		tags = []string{}
	}
	return &TagsResult{Tags: tags, TotalUniqueTags: len(tags)}, nil
}

func (ts *traceStatsService) Overview(ctx context.Context, tx *gorm.DB, days int) (*Overview, error) {
	days = clampDays(days, defaultOverviewDays)
	now := time.Now().UTC()
	cutoff := now.AddDate(0, 0, -days)

	aggregate, err := ts.decisionRepo.AggregateSince(ctx, tx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("aggregate decisions: %w", err)
	}
	sourceRows, err := ts.decisionRepo.CountBySourceSince(ctx, tx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("count by source: %w", err)
	}

	low := lowConfidenceThreshold
	high := highConfidenceThreshold
	highCount, err := ts.decisionRepo.ConfidenceBandCountSince(ctx, tx, cutoff, &high, nil)
	if err != nil {
		return nil, fmt.Errorf("count high confidence: %w", err)
	}
	mediumCount, err := ts.decisionRepo.ConfidenceBandCountSince(ctx, tx, cutoff, &low, &high)
	if err != nil {
		return nil, fmt.Errorf("count medium confidence: %w", err)
	}
	lowCount, err := ts.decisionRepo.ConfidenceBandCountSince(ctx, tx, cutoff, nil, &low)
	if err != nil {
		return nil, fmt.Errorf("count low confidence: %w", err)
	}

	distribution := map[string]SourceShare{}
	for _, row := range sourceRows {
		share := SourceShare{Count: row.Count}
		if aggregate.Total > 0 {
			share.Percentage = roundTo(float64(row.Count)/float64(aggregate.Total)*100, 2)
		}
		distribution[string(row.Source)] = share
	}

	trendStamps, err := ts.decisionRepo.TimestampsSince(ctx, tx, truncateToDay(now).AddDate(0, 0, -6))
	if err != nil {
		return nil, fmt.Errorf("load trend timestamps: %w", err)
	}
	trendCounts := map[string]int64{}
	for _, stamp := range trendStamps {
		trendCounts[stamp.UTC().Format("2006-01-02")]++
	}
	trend := make([]TimelinePoint, 0, 7)
	for i := 6; i >= 0; i-- {
		key := truncateToDay(now).AddDate(0, 0, -i).Format("2006-01-02")
		trend = append(trend, TimelinePoint{Date: key, Count: trendCounts[key]})
	}

	overview := &Overview{
		PeriodDays:         days,
		TotalDecisions:     aggregate.Total,
		SourceDistribution: distribution,
		ConfidenceRanges:   ConfidenceRanges{High: highCount, Medium: mediumCount, Low: lowCount},
		DailyTrend:         trend,
	}
	if aggregate.AvgConfidence != nil {
		overview.AverageConfidence = roundTo(*aggregate.AvgConfidence, 3)
	}
	if aggregate.MinConfidence != nil {
		overview.LowestConfidence = roundTo(*aggregate.MinConfidence, 3)
	}
	return overview, nil
}

// truncateRunes cuts at a rune boundary so multi-byte characters are
// never split mid-sequence.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

func clampDays(days, defaultDays int) int {
	if days <= 0 {
		return defaultDays
	}
	if days > maxWindowDays {
		return maxWindowDays
	}
	return days
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
