package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/werkpilot/cost-model-service/utils"
	"gorm.io/gorm"
)

// ProcessingStatus represents the processing state of an article
type ProcessingStatus string

const (
	ProcessingStatusPending    ProcessingStatus = "pending"
	ProcessingStatusProcessing ProcessingStatus = "processing"
	ProcessingStatusCompleted  ProcessingStatus = "completed"
	ProcessingStatusFailed     ProcessingStatus = "failed"
)

// String returns the string representation of the status
func (s ProcessingStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s ProcessingStatus) Valid() bool {
	switch s {
	case ProcessingStatusPending, ProcessingStatusProcessing,
		ProcessingStatusCompleted, ProcessingStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status is a terminal pipeline state
func (s ProcessingStatus) IsTerminal() bool {
	return s == ProcessingStatusCompleted || s == ProcessingStatusFailed
}

// Scan implements the sql.Scanner interface for ProcessingStatus
func (s *ProcessingStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = ProcessingStatus(v)
	case []byte:
		*s = ProcessingStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ProcessingStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for ProcessingStatus
func (s ProcessingStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid ProcessingStatus: %s", s)
	}
	return string(s), nil
}

// ProcessingErrorKind classifies why article processing failed
type ProcessingErrorKind string

const (
	ProcessingErrorNoSpecFile          ProcessingErrorKind = "no_spec_file"
	ProcessingErrorExtractionFailed    ProcessingErrorKind = "extraction_failed"
	ProcessingErrorUpstreamUnavailable ProcessingErrorKind = "upstream_unavailable"
	ProcessingErrorPersistenceFailed   ProcessingErrorKind = "persistence_failed"
	ProcessingErrorWatchdogTimeout     ProcessingErrorKind = "watchdog_timeout"
	ProcessingErrorInternal            ProcessingErrorKind = "internal"
)

// String returns the string representation of the error kind
func (k ProcessingErrorKind) String() string {
	return string(k)
}

// Valid checks if the error kind is valid
func (k ProcessingErrorKind) Valid() bool {
	switch k {
	case ProcessingErrorNoSpecFile, ProcessingErrorExtractionFailed,
		ProcessingErrorUpstreamUnavailable, ProcessingErrorPersistenceFailed,
		ProcessingErrorWatchdogTimeout, ProcessingErrorInternal:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for ProcessingErrorKind
func (k *ProcessingErrorKind) Scan(value any) error {
	if value == nil {
		*k = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*k = ProcessingErrorKind(v)
	case []byte:
		*k = ProcessingErrorKind(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ProcessingErrorKind", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for ProcessingErrorKind
func (k ProcessingErrorKind) Value() (driver.Value, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid ProcessingErrorKind: %s", k)
	}
	return string(k), nil
}

// Article represents a manufactured product under cost analysis
type Article struct {
	ID                    uint                 `gorm:"primaryKey" json:"id"`
	UUID                  uuid.UUID            `gorm:"type:uuid;not null;uniqueIndex:uk_articles_uuid" json:"uuid"`
	Name                  string               `gorm:"type:varchar(255);not null;uniqueIndex:uk_articles_name" json:"name"`
	Description           *string              `gorm:"type:text" json:"description,omitempty"`
	UnitWeight            *float64             `gorm:"type:numeric(14,6)" json:"unit_weight,omitempty"`
	SpecFile              []byte               `gorm:"type:bytea" json:"-"`
	SpecFilename          *string              `gorm:"type:varchar(512)" json:"spec_filename,omitempty"`
	DrawingFile           []byte               `gorm:"type:bytea" json:"-"`
	DrawingFilename       *string              `gorm:"type:varchar(512)" json:"drawing_filename,omitempty"`
	Comment               *string              `gorm:"type:text" json:"comment,omitempty"`
	ProcessingStatus      ProcessingStatus     `gorm:"type:varchar(16);not null;default:'pending';index:idx_articles_processing_status" json:"processing_status"`
	ProcessingErrorKind   *ProcessingErrorKind `gorm:"type:varchar(32)" json:"processing_error_kind,omitempty"`
	ProcessingError       *string              `gorm:"type:text" json:"processing_error,omitempty"`
	ProcessingStartedAt   *time.Time           `gorm:"index:idx_articles_processing_started_at" json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time           `json:"processing_completed_at,omitempty"`
	SimilarArticles       pq.Int64Array        `gorm:"type:bigint[]" json:"similar_articles,omitempty"`
	CreatedAt             time.Time            `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_articles_created_at" json:"created_at"`
	UpdatedAt             *time.Time           `json:"updated_at,omitempty"`

	// Relations
	CostModels []CostModel `gorm:"foreignKey:ArticleID;constraint:OnDelete:CASCADE" json:"cost_models,omitempty"`
	Orders     []Order     `gorm:"foreignKey:ArticleID;constraint:OnDelete:SET NULL" json:"orders,omitempty"`
}

// TableName returns the table name for the model
func (Article) TableName() string {
	return "articles"
}

// BeforeCreate is called before creating a new record
func (a *Article) BeforeCreate(tx *gorm.DB) error {
	if a.UUID == uuid.Nil {
		a.UUID = uuid.New()
	}
	if a.ProcessingStatus == "" {
		a.ProcessingStatus = ProcessingStatusPending
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (a *Article) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	a.UpdatedAt = &now
	return nil
}

// CanTransitionTo checks if the article can transition to the given status.
// Terminal states only leave via a fresh processing request; nothing ever
// returns to pending.
func (a *Article) CanTransitionTo(newStatus ProcessingStatus) bool {
	switch a.ProcessingStatus {
	case ProcessingStatusPending:
		return newStatus == ProcessingStatusProcessing
	case ProcessingStatusProcessing:
		return newStatus == ProcessingStatusCompleted ||
			newStatus == ProcessingStatusFailed
	case ProcessingStatusCompleted, ProcessingStatusFailed:
		return newStatus == ProcessingStatusProcessing
	default:
		return false
	}
}

// IsProcessing reports whether a pipeline run is currently claimed
func (a *Article) IsProcessing() bool {
	return a.ProcessingStatus == ProcessingStatusProcessing
}

// ArticleFilter represents filter criteria for articles
type ArticleFilter struct {
	ID               *uint             `json:"id,omitempty"`
	UUID             *uuid.UUID        `json:"uuid,omitempty"`
	Name             *string           `json:"name,omitempty"`
	ProcessingStatus *ProcessingStatus `json:"processing_status,omitempty"`
	StartedBefore    *time.Time        `json:"started_before,omitempty"`
	CreatedAfter     *time.Time        `json:"created_after,omitempty"`
	CreatedBefore    *time.Time        `json:"created_before,omitempty"`
}
