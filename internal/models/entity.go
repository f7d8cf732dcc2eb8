package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a record ID names nothing in its collection.
var ErrNotFound = errors.New("record not found")

// EntityKind identifies one of the four record collections managed by the CRM.
type EntityKind string

const (
	KindCompany     EntityKind = "companies"
	KindContact     EntityKind = "contacts"
	KindOpportunity EntityKind = "opportunities"
	KindTask        EntityKind = "tasks"
)

// ParseEntityKind maps a URL path segment to an EntityKind. The second return
// value is false when the segment names no known collection.
func ParseEntityKind(s string) (EntityKind, bool) {
	switch EntityKind(s) {
	case KindCompany, KindContact, KindOpportunity, KindTask:
		return EntityKind(s), true
	}
	return "", false
}

// Company represents an organization record.
type Company struct {
	ID        string
	Name      string
	Industry  string
	Website   string
	City      string
	CreatedAt time.Time
}

// Contact represents a person attached to a company.
type Contact struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Title     string
	CompanyID string
	CreatedAt time.Time
}

// Stage represents the pipeline stage of an opportunity.
type Stage string

const (
	StageLead      Stage = "lead"
	StageQualified Stage = "qualified"
	StageProposal  Stage = "proposal"
	StageWon       Stage = "won"
	StageLost      Stage = "lost"
)

// Opportunity represents a potential deal in the pipeline.
type Opportunity struct {
	ID        string
	Name      string
	CompanyID string
	Stage     Stage
	Amount    float64
	CloseDate time.Time
	CreatedAt time.Time
}

// Task represents a to-do item, optionally tied to another record.
type Task struct {
	ID        string
	Title     string
	Owner     string
	Due       time.Time
	Done      bool
	RelatedTo string
	CreatedAt time.Time
}
