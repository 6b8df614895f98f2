// Package optoutgorm is the GORM-backed implementation of optout.Repository,
// a durable keyed set per §9 ("no need to mirror the source's relational
// table layout"), using a single-table repository per record type.
package optoutgorm

import "time"

// OptOutModel maps to the "opt_outs" table; unique index on phone per §6.
type OptOutModel struct {
	Phone     string `gorm:"size:32;primaryKey"`
	Reason    string `gorm:"size:255"`
	CreatedAt time.Time
}

func (OptOutModel) TableName() string { return "opt_outs" }

// ConsentModel maps to the "consents" table, backing ComplianceGate rule 3.
type ConsentModel struct {
	Phone     string `gorm:"size:32;primaryKey"`
	GrantedAt time.Time
}

func (ConsentModel) TableName() string { return "consents" }
