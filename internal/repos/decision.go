package repos

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/decision-timeline-backend/internal/logger"
	"github.com/yungbote/decision-timeline-backend/internal/types"
)

// DecisionFilter carries the recognized list/export filter options.
// Zero values mean "not set"; confidence bounds are pointers so 0.0 is
// a usable bound.
type DecisionFilter struct {
	Source        string
	MinConfidence *float64
	MaxConfidence *float64
	Tag           string
	Search        string
	Sort          string
	Limit         int
	Offset        int
}

// AggregateRow is the single-pass COUNT/AVG/MIN summary over a window.
type AggregateRow struct {
	Total         int64
	AvgConfidence *float64
	MinConfidence *float64
}

type SourceCountRow struct {
	Source types.DecisionSource
	Count  int64
}

type DecisionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, decision *types.Decision) (*types.Decision, error)
	GetByExternalID(ctx context.Context, tx *gorm.DB, externalID string) (*types.Decision, error)
	List(ctx context.Context, tx *gorm.DB, filter DecisionFilter) ([]*types.Decision, int64, error)
	UpdateOutcome(ctx context.Context, tx *gorm.DB, externalID string, outcome string, outcomeData datatypes.JSON) error
	UpdateTags(ctx context.Context, tx *gorm.DB, externalID string, tags datatypes.JSON) error
	Delete(ctx context.Context, tx *gorm.DB, externalID string) error

	AggregateSince(ctx context.Context, tx *gorm.DB, cutoff time.Time) (*AggregateRow, error)
	CountBySourceSince(ctx context.Context, tx *gorm.DB, cutoff time.Time) ([]SourceCountRow, error)
	ConfidenceBandCountSince(ctx context.Context, tx *gorm.DB, cutoff time.Time, min, max *float64) (int64, error)
	TimestampsSince(ctx context.Context, tx *gorm.DB, cutoff time.Time) ([]time.Time, error)
	SearchContent(ctx context.Context, tx *gorm.DB, query string, limit int) ([]*types.Decision, error)
	AllTags(ctx context.Context, tx *gorm.DB) ([]string, error)
}

type decisionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDecisionRepo(db *gorm.DB, baseLog *logger.Logger) DecisionRepo {
	repoLog := baseLog.With("repo", "DecisionRepo")
	return &decisionRepo{db: db, log: repoLog}
}

func (dr *decisionRepo) Create(ctx context.Context, tx *gorm.DB, decision *types.Decision) (*types.Decision, error) {
	transaction := tx
	if transaction == nil {
		transaction = dr.db
	}
	// Steps ride along through the association, so decision + steps are
	// one insert unit inside the caller's transaction.
	if err := transaction.WithContext(ctx).Create(decision).Error; err != nil {
		return nil, err
	}
	return decision, nil
}

func (dr *decisionRepo) GetByExternalID(ctx context.Context, tx *gorm.DB, externalID string) (*types.Decision, error) {
	transaction := tx
	if transaction == nil {
		transaction = dr.db
	}

	var result types.Decision
	if err := transaction.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order ASC")
		}).
		Where("decision_id = ?", externalID).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (dr *decisionRepo) List(ctx context.Context, tx *gorm.DB, filter DecisionFilter) ([]*types.Decision, int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = dr.db
	}

	query := dr.applyFilter(transaction.WithContext(ctx).Model(&types.Decision{}), filter)

	// Count on a branched session so the COUNT select does not leak
	// into the page query below.
	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Total, stable order: timestamp per sort direction, decision_id
	// ascending as tiebreak so pagination never skips or repeats rows.
	order := "timestamp DESC, decision_id ASC"
	if strings.EqualFold(filter.Sort, "asc") {
		order = "timestamp ASC, decision_id ASC"
	}

	var results []*types.Decision
	q := query.Order(order)
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if err := q.
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order ASC")
		}).
		Find(&results).Error; err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

func (dr *decisionRepo) applyFilter(query *gorm.DB, filter DecisionFilter) *gorm.DB {
	if filter.Source != "" {
		query = query.Where("source = ?", filter.Source)
	}
	if filter.MinConfidence != nil {
		query = query.Where("confidence >= ?", *filter.MinConfidence)
	}
	if filter.MaxConfidence != nil {
		query = query.Where("confidence <= ?", *filter.MaxConfidence)
	}
	if filter.Tag != "" {
		if dr.db.Dialector.Name() == "postgres" {
			member, _ := json.Marshal([]string{filter.Tag})
			query = query.Where("tags @> ?::jsonb", string(member))
		} else {
			query = query.Where("EXISTS (SELECT 1 FROM json_each(decision.tags) WHERE json_each.value = ?)", filter.Tag)
		}
	}
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where(
			"LOWER(decision) LIKE ? OR LOWER(reasoning) LIKE ? OR LOWER(COALESCE(outcome, '')) LIKE ?",
			pattern, pattern, pattern,
		)
	}
	return query
}

func (dr *decisionRepo) UpdateOutcome(ctx context.Context, tx *gorm.DB, externalID string, outcome string, outcomeData datatypes.JSON) error {
	transaction := tx
	if transaction == nil {
		transaction = dr.db
	}

	updates := map[string]interface{}{"outcome": outcome}
	if outcomeData != nil {
		updates["outcome_data"] = outcomeData
	}
	res := transaction.WithContext(ctx).
		Model(&types.Decision{}).
		Where("decision_id = ?", externalID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (dr *decisionRepo) UpdateTags(ctx context.Context, tx *gorm.DB, externalID string, tags datatypes.JSON) error {
	transaction := tx
	if transaction == nil {
		transaction = dr.db
	}

	res := transaction.WithContext(ctx).
		Model(&types.Decision{}).
		Where("decision_id = ?", externalID).
		Update("tags", tags)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (dr *decisionRepo) Delete(ctx context.Context, tx *gorm.DB, externalID string) error {
	transaction := tx
	if transaction == nil {
		transaction = dr.db
	}

	var decision types.Decision
	if err := transaction.WithContext(ctx).
		Select("id").
		Where("decision_id = ?", externalID).
		First(&decision).Error; err != nil {
		return err
	}

	// Steps are removed explicitly so cascade semantics hold on sqlite
	// too, where the migration does not install the FK constraint.
	if err := transaction.WithContext(ctx).
		Where("decision_row_id = ?", decision.ID).
		Delete(&types.DecisionStep{}).Error; err != nil {
		return err
	}
	return transaction.WithContext(ctx).
		Where("id = ?", decision.ID).
		Delete(&types.Decision{}).Error
}

func (dr *decisionRepo) AggregateSince(ctx context.Context, tx *gorm.DB, cutoff time.Time) (*AggregateRow, error) {
	transaction := tx
	if transaction == nil {
		transaction = dr.db
	}

	var row AggregateRow
	if err := transaction.WithContext(ctx).
		Model(&types.Decision{}).
		Select("COUNT(*) AS total, AVG(confidence) AS avg_confidence, MIN(confidence) AS min_confidence").
		Where("timestamp >= ?", cutoff).
		Scan(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (dr *decisionRepo) CountBySourceSince(ctx context.Context, tx *gorm.DB, cutoff time.Time) ([]SourceCountRow, error) {
	transaction := tx
	if transaction == nil {
		transaction = dr.db
	}

	var rows []SourceCountRow
	if err := transaction.WithContext(ctx).
		Model(&types.Decision{}).
		Select("source, COUNT(*) AS count").
		Where("timestamp >= ?", cutoff).
		Group("source").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (dr *decisionRepo) ConfidenceBandCountSince(ctx context.Context, tx *gorm.DB, cutoff time.Time, min, max *float64) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = dr.db
	}

	query := transaction.WithContext(ctx).
		Model(&types.Decision{}).
		Where("timestamp >= ?", cutoff)
	if min != nil {
		query = query.Where("confidence >= ?", *min)
	}
	if max != nil {
		query = query.Where("confidence < ?", *max)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// TimestampsSince feeds the per-day timeline. Bucketing happens in Go
// so the query stays identical across postgres and sqlite.
func (dr *decisionRepo) TimestampsSince(ctx context.Context, tx *gorm.DB, cutoff time.Time) ([]time.Time, error) {
	transaction := tx
	if transaction == nil {
		transaction = dr.db
	}

	var stamps []time.Time
	if err := transaction.WithContext(ctx).
		Model(&types.Decision{}).
		Where("timestamp >= ?", cutoff).
		Pluck("timestamp", &stamps).Error; err != nil {
		return nil, err
	}
	return stamps, nil
}

func (dr *decisionRepo) SearchContent(ctx context.Context, tx *gorm.DB, query string, limit int) ([]*types.Decision, error) {
	transaction := tx
	if transaction == nil {
		transaction = dr.db
	}

	pattern := "%" + strings.ToLower(query) + "%"
	var results []*types.Decision
	q := transaction.WithContext(ctx).
		Where("LOWER(reasoning) LIKE ? OR LOWER(decision) LIKE ?", pattern, pattern).
		Order("timestamp DESC, decision_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// AllTags merges the tag arrays of every decision in Go; json array
// explosion differs too much between dialects to be worth pushing down.
func (dr *decisionRepo) AllTags(ctx context.Context, tx *gorm.DB) ([]string, error) {
	transaction := tx
	if transaction == nil {
		transaction = dr.db
	}

	var columns []datatypes.JSON
	if err := transaction.WithContext(ctx).
		Model(&types.Decision{}).
		Where("tags IS NOT NULL").
		Pluck("tags", &columns).Error; err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var tags []string
	for _, col := range columns {
		if len(col) == 0 {
			continue
		}
		var parsed []string
		if err := json.Unmarshal(col, &parsed); err != nil {
			continue
		}
		for _, tag := range parsed {
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	return tags, nil
}
