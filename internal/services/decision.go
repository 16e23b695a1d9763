package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/decision-timeline-backend/internal/logger"
	"github.com/yungbote/decision-timeline-backend/internal/repos"
	"github.com/yungbote/decision-timeline-backend/internal/types"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type StepInput struct {
	StepType types.StepType         `json:"step_type"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

type CreateDecisionInput struct {
	InputData   map[string]interface{} `json:"input_data"`
	SystemState map[string]interface{} `json:"system_state"`
	Reasoning   string                 `json:"reasoning"`
	Decision    string                 `json:"decision"`
	Confidence  *float64               `json:"confidence"`
	Source      types.DecisionSource   `json:"source"`
	Outcome     *string                `json:"outcome"`
	OutcomeData map[string]interface{} `json:"outcome_data"`
	Tags        []string               `json:"tags"`
	Steps       []StepInput            `json:"steps"`
}

type ListFilter struct {
	Source        string
	MinConfidence *float64
	MaxConfidence *float64
	Tag           string
	Search        string
	Sort          string
	Limit         int
	Offset        int
}

type DecisionSummary struct {
	ID         uint                 `json:"id"`
	ExternalID string               `json:"decision_id"`
	Timestamp  time.Time            `json:"timestamp"`
	Decision   string               `json:"decision"`
	Confidence float64              `json:"confidence"`
	Source     types.DecisionSource `json:"source"`
	Outcome    *string              `json:"outcome"`
	Tags       []string             `json:"tags"`
	StepCount  int                  `json:"step_count"`
}

type ListResult struct {
	Decisions []DecisionSummary `json:"decisions"`
	Total     int64             `json:"total"`
	Limit     int               `json:"limit"`
	Offset    int               `json:"offset"`
	HasMore   bool              `json:"has_more"`
}

type ReplayResult struct {
	Decision        *types.Decision `json:"decision"`
	TotalSteps      int             `json:"total_steps"`
	DurationSeconds *float64        `json:"duration_seconds"`
}

type DecisionService interface {
	Create(ctx context.Context, tx *gorm.DB, input CreateDecisionInput) (*types.Decision, error)
	Get(ctx context.Context, tx *gorm.DB, externalID string) (*types.Decision, error)
	List(ctx context.Context, tx *gorm.DB, filter ListFilter) (*ListResult, error)
	Replay(ctx context.Context, tx *gorm.DB, externalID string) (*ReplayResult, error)
	UpdateOutcome(ctx context.Context, tx *gorm.DB, externalID, outcome string, outcomeData map[string]interface{}) (*types.Decision, error)
	UpdateTags(ctx context.Context, tx *gorm.DB, externalID string, tags []string) (*types.Decision, error)
	Delete(ctx context.Context, tx *gorm.DB, externalID string) error
}

type decisionService struct {
	db           *gorm.DB
	log          *logger.Logger
	decisionRepo repos.DecisionRepo
	traceBuilder *TraceBuilder
}

func NewDecisionService(db *gorm.DB, baseLog *logger.Logger, decisionRepo repos.DecisionRepo) DecisionService {
	serviceLog := baseLog.With("service", "DecisionService")
	return &decisionService{
		db:           db,
		log:          serviceLog,
		decisionRepo: decisionRepo,
		traceBuilder: NewTraceBuilder(),
	}
}

func (ds *decisionService) Create(ctx context.Context, tx *gorm.DB, input CreateDecisionInput) (*types.Decision, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	confidence := roundTo(*input.Confidence, 4)

	inputData, err := marshalPayload(input.InputData)
	if err != nil {
		return nil, NewValidationError("input_data", "must be a JSON object")
	}
	systemState, err := marshalPayload(input.SystemState)
	if err != nil {
		return nil, NewValidationError("system_state", "must be a JSON object")
	}
	outcomeData, err := marshalPayload(input.OutcomeData)
	if err != nil {
		return nil, NewValidationError("outcome_data", "must be a JSON object")
	}
	tags, err := marshalTags(normalizeTags(input.Tags))
	if err != nil {
		return nil, NewValidationError("tags", "must be an array of strings")
	}

	stepInputs := input.Steps
	if len(stepInputs) == 0 {
		stepInputs = ds.traceBuilder.BuildSteps(input)
	}
	steps := make([]*types.DecisionStep, 0, len(stepInputs))
	for i, step := range stepInputs {
		metadata, err := marshalPayload(step.Metadata)
		if err != nil {
			return nil, NewValidationError("steps", fmt.Sprintf("step %d: metadata must be a JSON object", i))
		}
		steps = append(steps, &types.DecisionStep{
			StepOrder: i,
			StepType:  step.StepType,
			Timestamp: now,
			Content:   step.Content,
			Metadata:  metadata,
		})
	}

	decision := &types.Decision{
		ExternalID:  newExternalID(),
		Timestamp:   now,
		InputData:   inputData,
		SystemState: systemState,
		Reasoning:   input.Reasoning,
		Decision:    input.Decision,
		Confidence:  confidence,
		Source:      input.Source,
		Outcome:     input.Outcome,
		OutcomeData: outcomeData,
		Tags:        tags,
		Steps:       steps,
	}

	// Decision and steps commit or roll back together.
	err = ds.runInTransaction(tx, func(txn *gorm.DB) error {
		_, createErr := ds.decisionRepo.Create(ctx, txn, decision)
		return createErr
	})
	if err != nil {
		ds.log.Error("Create decision failed", "error", err)
		return nil, fmt.Errorf("create decision: %w", err)
	}
	ds.log.Info("Decision created", "decision_id", decision.ExternalID, "source", decision.Source, "steps", len(decision.Steps))
	return decision, nil
}

func (ds *decisionService) Get(ctx context.Context, tx *gorm.DB, externalID string) (*types.Decision, error) {
	decision, err := ds.decisionRepo.GetByExternalID(ctx, tx, externalID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return decision, nil
}

func (ds *decisionService) List(ctx context.Context, tx *gorm.DB, filter ListFilter) (*ListResult, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	decisions, total, err := ds.decisionRepo.List(ctx, tx, repos.DecisionFilter{
		Source:        filter.Source,
		MinConfidence: filter.MinConfidence,
		MaxConfidence: filter.MaxConfidence,
		Tag:           filter.Tag,
		Search:        filter.Search,
		Sort:          filter.Sort,
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}

	summaries := make([]DecisionSummary, 0, len(decisions))
	for _, d := range decisions {
		summaries = append(summaries, DecisionSummary{
			ID:         d.ID,
			ExternalID: d.ExternalID,
			Timestamp:  d.Timestamp,
			Decision:   d.Decision,
			Confidence: d.Confidence,
			Source:     d.Source,
			Outcome:    d.Outcome,
			Tags:       d.TagList(),
			StepCount:  len(d.Steps),
		})
	}

	return &ListResult{
		Decisions: summaries,
		Total:     total,
		Limit:     limit,
		Offset:    offset,
		HasMore:   int64(offset+len(summaries)) < total,
	}, nil
}

func (ds *decisionService) Replay(ctx context.Context, tx *gorm.DB, externalID string) (*ReplayResult, error) {
	decision, err := ds.Get(ctx, tx, externalID)
	if err != nil {
		return nil, err
	}

	result := &ReplayResult{
		Decision:   decision,
		TotalSteps: len(decision.Steps),
	}
	if len(decision.Steps) > 0 {
		first := decision.Steps[0].Timestamp
		last := decision.Steps[0].Timestamp
		for _, step := range decision.Steps {
			if step.Timestamp.Before(first) {
				first = step.Timestamp
			}
			if step.Timestamp.After(last) {
				last = step.Timestamp
			}
		}
		duration := last.Sub(first).Seconds()
		result.DurationSeconds = &duration
	}
	return result, nil
}

func (ds *decisionService) UpdateOutcome(ctx context.Context, tx *gorm.DB, externalID, outcome string, outcomeData map[string]interface{}) (*types.Decision, error) {
	if outcome == "" {
		return nil, NewValidationError("outcome", "is required")
	}
	payload, err := marshalPayload(outcomeData)
	if err != nil {
		return nil, NewValidationError("outcome_data", "must be a JSON object")
	}
	if err := ds.decisionRepo.UpdateOutcome(ctx, tx, externalID, outcome, payload); err != nil {
		return nil, mapNotFound(err)
	}
	ds.log.Info("Decision outcome updated", "decision_id", externalID)
	return ds.Get(ctx, tx, externalID)
}

func (ds *decisionService) UpdateTags(ctx context.Context, tx *gorm.DB, externalID string, tags []string) (*types.Decision, error) {
	payload, err := marshalTags(normalizeTags(tags))
	if err != nil {
		return nil, NewValidationError("tags", "must be an array of strings")
	}
	if err := ds.decisionRepo.UpdateTags(ctx, tx, externalID, payload); err != nil {
		return nil, mapNotFound(err)
	}
	return ds.Get(ctx, tx, externalID)
}

func (ds *decisionService) Delete(ctx context.Context, tx *gorm.DB, externalID string) error {
	err := ds.runInTransaction(tx, func(txn *gorm.DB) error {
		return ds.decisionRepo.Delete(ctx, txn, externalID)
	})
	if err != nil {
		return mapNotFound(err)
	}
	ds.log.Info("Decision deleted", "decision_id", externalID)
	return nil
}

func (ds *decisionService) runInTransaction(tx *gorm.DB, fn func(*gorm.DB) error) error {
	if tx != nil {
		return fn(tx)
	}
	return ds.db.Transaction(fn)
}

func validateCreateInput(input CreateDecisionInput) error {
	if input.InputData == nil {
		return NewValidationError("input_data", "is required")
	}
	if input.Decision == "" {
		return NewValidationError("decision", "is required")
	}
	if input.Confidence == nil {
		return NewValidationError("confidence", "is required")
	}
	if *input.Confidence < 0.0 || *input.Confidence > 1.0 {
		return NewValidationError("confidence", "must be between 0.0 and 1.0")
	}
	if input.Source == "" {
		return NewValidationError("source", "is required")
	}
	if !input.Source.Valid() {
		return NewValidationError("source", "must be one of rule, llm, hybrid, manual")
	}
	for i, step := range input.Steps {
		if !step.StepType.Valid() {
			return NewValidationError("steps", fmt.Sprintf("step %d: step_type must be one of input, reasoning, decision, action, outcome", i))
		}
		if step.Content == "" {
			return NewValidationError("steps", fmt.Sprintf("step %d: content is required", i))
		}
	}
	return nil
}

// newExternalID mints the stable public identifier. The uuid entropy
// makes reuse effectively impossible; the unique index on the column
// is the actual guarantee.
func newExternalID() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "dec_" + raw[:12]
}

func normalizeTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	seen := map[string]bool{}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

func marshalPayload(payload map[string]interface{}) (datatypes.JSON, error) {
	if payload == nil {
		return nil, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func marshalTags(tags []string) (datatypes.JSON, error) {
	if tags == nil {
		return nil, nil
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func roundTo(value float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(value*factor) / factor
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
