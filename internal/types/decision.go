package types

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type DecisionSource string

const (
	SourceRule   DecisionSource = "rule"
	SourceLLM    DecisionSource = "llm"
	SourceHybrid DecisionSource = "hybrid"
	SourceManual DecisionSource = "manual"
)

func (s DecisionSource) Valid() bool {
	switch s {
	case SourceRule, SourceLLM, SourceHybrid, SourceManual:
		return true
	default:
		return false
	}
}

func AllSources() []DecisionSource {
	return []DecisionSource{SourceRule, SourceLLM, SourceHybrid, SourceManual}
}

// Decision is one recorded outcome-producing event. Everything except
// Outcome, OutcomeData and Tags is immutable after creation; ExternalID
// is the stable identifier exposed over the API and is never reused.
type Decision struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	ExternalID  string          `gorm:"column:decision_id;uniqueIndex;not null" json:"decision_id"`
	Timestamp   time.Time       `gorm:"column:timestamp;not null;index" json:"timestamp"`
	InputData   datatypes.JSON  `gorm:"column:input_data;type:jsonb" json:"input_data"`
	SystemState datatypes.JSON  `gorm:"column:system_state;type:jsonb" json:"system_state,omitempty"`
	Reasoning   string          `gorm:"column:reasoning;type:text" json:"reasoning"`
	Decision    string          `gorm:"column:decision;not null" json:"decision"`
	Confidence  float64         `gorm:"column:confidence;not null" json:"confidence"`
	Source      DecisionSource  `gorm:"column:source;not null;index" json:"source"`
	Outcome     *string         `gorm:"column:outcome" json:"outcome"`
	OutcomeData datatypes.JSON  `gorm:"column:outcome_data;type:jsonb" json:"outcome_data,omitempty"`
	Tags        datatypes.JSON  `gorm:"column:tags;type:jsonb" json:"tags"`
	Steps       []*DecisionStep `gorm:"constraint:OnDelete:CASCADE;foreignKey:DecisionRowID;references:ID" json:"steps,omitempty"`
}

func (Decision) TableName() string { return "decision" }

// TagList decodes the tags column into a plain slice. A missing or
// malformed column decodes to nil rather than an error.
func (d *Decision) TagList() []string {
	if len(d.Tags) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(d.Tags, &tags); err != nil {
		return nil
	}
	return tags
}
