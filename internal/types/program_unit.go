package types

import (
	"time"

	"gorm.io/datatypes"
)

// ProgramUnit is one immutable version of a named program unit. Rows are
// write-once: a second write with the same id is a no-op.
type ProgramUnit struct {
	ID                 string         `gorm:"column:id;primaryKey" json:"id"`
	Name               string         `gorm:"column:name;not null;index;uniqueIndex:idx_program_unit_name_version,priority:1" json:"name"`
	Source             string         `gorm:"column:source;not null" json:"source"`
	Dependencies       string         `gorm:"column:dependencies;not null" json:"dependencies"`
	ConfigParams       datatypes.JSON `gorm:"type:jsonb;column:config_params" json:"config_params,omitempty"`
	IsExecutable       bool           `gorm:"column:is_executable;not null" json:"is_executable"`
	VersionNumber      int            `gorm:"column:version_number;not null;uniqueIndex:idx_program_unit_name_version,priority:2" json:"version_number"`
	InitialGlobalState datatypes.JSON `gorm:"type:jsonb;column:initial_global_state" json:"initial_global_state,omitempty"`
	InitialFreeState   datatypes.JSON `gorm:"type:jsonb;column:initial_free_state" json:"initial_free_state,omitempty"`
	CommitMessage      *string        `gorm:"column:commit_message" json:"commit_message,omitempty"`
	CreatedAt          time.Time      `gorm:"column:created_at;not null" json:"created_at"`
}

func (ProgramUnit) TableName() string { return "program_unit" }

// UsesEdge records that one unit version statically references another.
// Identity-only with set semantics; the target is not required to exist
// (reference graph, not an enforced dependency graph).
type UsesEdge struct {
	UnitID string `gorm:"column:unit_id;primaryKey" json:"unit_id"`
	UsesID string `gorm:"column:uses_id;primaryKey" json:"uses_id"`
}

func (UsesEdge) TableName() string { return "program_unit_uses" }
