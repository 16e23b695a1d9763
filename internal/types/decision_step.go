package types

import (
	"time"

	"gorm.io/datatypes"
)

type StepType string

const (
	StepInput     StepType = "input"
	StepReasoning StepType = "reasoning"
	StepDecision  StepType = "decision"
	StepAction    StepType = "action"
	StepOutcome   StepType = "outcome"
)

func (s StepType) Valid() bool {
	switch s {
	case StepInput, StepReasoning, StepDecision, StepAction, StepOutcome:
		return true
	default:
		return false
	}
}

// DecisionStep is one ordered stage within a decision's trace.
// StepOrder is authoritative for replay sequencing; Timestamp is not.
// Steps are immutable and cannot outlive their decision.
type DecisionStep struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	DecisionRowID uint           `gorm:"column:decision_row_id;not null;index" json:"-"`
	StepOrder     int            `gorm:"column:step_order;not null" json:"step_order"`
	StepType      StepType       `gorm:"column:step_type;not null" json:"step_type"`
	Timestamp     time.Time      `gorm:"column:timestamp;not null" json:"timestamp"`
	Content       string         `gorm:"column:content;type:text;not null" json:"content"`
	Metadata      datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
}

func (DecisionStep) TableName() string { return "decision_step" }
