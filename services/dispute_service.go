package services

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"gorm.io/gorm"

	"github.com/agriconnect/agriconnect-api/config"
	"github.com/agriconnect/agriconnect-api/models"
)

// ticketAttempts bounds the collision-retry loop. The generation loop is a
// best-effort fast path; the unique index on complaint_id is the actual
// uniqueness guarantee, so a duplicate insert is retried here too.
const ticketAttempts = 10

// DisputeService manages the append-only complaint ledger
type DisputeService struct{}

// NewDisputeService creates a new dispute service
func NewDisputeService() *DisputeService {
	return &DisputeService{}
}

// FileDispute records a complaint and returns its generated ticket ID
// (CMPLT-XXXXXX)
func (s *DisputeService) FileDispute(submitterID, body string) (*models.Complaint, error) {
	submitterID = strings.TrimSpace(submitterID)
	body = strings.TrimSpace(body)
	if submitterID == "" || body == "" {
		return nil, fmt.Errorf("%w: submitter id and complaint text are required", ErrValidation)
	}

	db := config.GetDB()

	for attempt := 0; attempt < ticketAttempts; attempt++ {
		ticketID := generateTicketID()

		// Fast path: skip IDs already taken.
		var count int64
		if err := db.Model(&models.Complaint{}).Where("complaint_id = ?", ticketID).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("failed to check ticket id: %w", err)
		}
		if count > 0 {
			continue
		}

		complaint := models.Complaint{
			ComplaintID: ticketID,
			SubmitterID: submitterID,
			Complaint:   body,
			Remarks:     "No remarks yet.",
			Status:      models.ComplaintPending,
		}
		err := db.Create(&complaint).Error
		if err == nil {
			return &complaint, nil
		}
		// A concurrent filing may have claimed the same ID between the
		// check and the insert; the unique index rejects it and we retry.
		if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
			continue
		}
		return nil, fmt.Errorf("failed to record dispute: %w", err)
	}

	return nil, fmt.Errorf("failed to generate a unique ticket id after %d attempts", ticketAttempts)
}

// UpdateDispute applies a partial update (remarks and/or status) to the
// complaint with the given ticket ID
func (s *DisputeService) UpdateDispute(ticketID string, remarks, status *string) (*models.Complaint, error) {
	if status != nil && !models.ValidComplaintStatus(*status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, *status)
	}

	db := config.GetDB()

	var complaint models.Complaint
	if err := db.Where("complaint_id = ?", ticketID).First(&complaint).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: ticket %s", ErrDisputeNotFound, ticketID)
		}
		return nil, err
	}

	updates := map[string]interface{}{}
	if remarks != nil {
		updates["remarks"] = *remarks
	}
	if status != nil {
		updates["status"] = *status
	}
	if len(updates) == 0 {
		return &complaint, nil
	}

	if err := db.Model(&complaint).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update dispute %s: %w", ticketID, err)
	}
	return &complaint, nil
}

// ListDisputes returns all complaints, newest first
func (s *DisputeService) ListDisputes() ([]models.Complaint, error) {
	db := config.GetDB()

	var complaints []models.Complaint
	if err := db.Order("created_at DESC").Find(&complaints).Error; err != nil {
		return nil, err
	}
	return complaints, nil
}

// generateTicketID produces a CMPLT-XXXXXX candidate with a random 6-digit
// suffix
func generateTicketID() string {
	return fmt.Sprintf("CMPLT-%06d", 100000+rand.Intn(900000))
}

// isUniqueViolation catches unique-constraint errors from drivers that gorm
// does not translate to ErrDuplicatedKey
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
