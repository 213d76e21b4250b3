package types

import (
	"time"
)

// Invocation is a single execution record of a ProgramUnit version.
// Append-only: created once with its results and consumes edges, never
// mutated.
type Invocation struct {
	ID          string       `gorm:"column:id;primaryKey" json:"id"`
	UnitID      string       `gorm:"column:unit_id;not null;index" json:"unit_id"`
	Unit        *ProgramUnit `gorm:"constraint:OnDelete:RESTRICT;foreignKey:UnitID;references:ID" json:"unit,omitempty"`
	Name        string       `gorm:"column:name;not null" json:"name"`
	Description *string      `gorm:"column:description" json:"description,omitempty"`
	CreatedAt   time.Time    `gorm:"column:created_at;not null" json:"created_at"`
}

func (Invocation) TableName() string { return "invocation" }

// InvocationResult is an output artifact owned by exactly one invocation.
type InvocationResult struct {
	ID           string      `gorm:"column:id;primaryKey" json:"id"`
	InvocationID string      `gorm:"column:invocation_id;not null;index" json:"invocation_id"`
	Invocation   *Invocation `gorm:"constraint:OnDelete:CASCADE;foreignKey:InvocationID;references:ID" json:"invocation,omitempty"`
	Name         string      `gorm:"column:name;not null" json:"name"`
	Description  *string     `gorm:"column:description" json:"description,omitempty"`
}

func (InvocationResult) TableName() string { return "invocation_result" }

// ConsumesEdge records that an invocation read the results of another
// invocation. Identity-only, set semantics.
type ConsumesEdge struct {
	InvocationID string `gorm:"column:invocation_id;primaryKey" json:"invocation_id"`
	ConsumedID   string `gorm:"column:consumed_id;primaryKey" json:"consumed_id"`
}

func (ConsumesEdge) TableName() string { return "invocation_consumes" }
