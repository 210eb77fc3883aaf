package models

import (
	"time"
)

// Complaint statuses
const (
	ComplaintPending  = "Pending"
	ComplaintResolved = "Resolved"
)

// Complaint represents an entry in the dispute ledger. ComplaintID is the
// human-readable ticket ID (CMPLT-XXXXXX); the unique index on it is the
// correctness backstop for the collision-retry generation loop.
// SubmitterID is a plain string on purpose: disputes may reference custom
// IDs (e.g. F-123456) that never resolve to a users row.
type Complaint struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ComplaintID string    `gorm:"uniqueIndex;not null" json:"complaint_id"`
	SubmitterID string    `gorm:"not null" json:"submitter_id"`
	Complaint   string    `gorm:"type:text;not null" json:"complaint"`
	Remarks     string    `gorm:"not null;default:'No remarks yet.'" json:"remarks"`
	Status      string    `gorm:"not null;default:'Pending'" json:"status"` // Pending or Resolved
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for the Complaint model
func (Complaint) TableName() string {
	return "complaints"
}

// ValidComplaintStatus reports whether the given status is a known value
func ValidComplaintStatus(status string) bool {
	return status == ComplaintPending || status == ComplaintResolved
}
