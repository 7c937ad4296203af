package dto

import (
	"time"

	"github.com/spec-kit/servicedesk-sla/internal/domain"
	"github.com/spec-kit/servicedesk-sla/internal/sla"
)

// CreatePriorityRequest payload. ResponseTargetTime takes "3d", "48h" or
// "2d4h".
type CreatePriorityRequest struct {
	UrgencyName        string `json:"urgency_name"`
	Description        string `json:"description"`
	ResponseTargetTime string `json:"response_target_time"`
}

// PriorityResponse renders the target as "<d>days HH:MM:SS".
type PriorityResponse struct {
	ID                 int64     `json:"id"`
	UrgencyName        string    `json:"urgency_name"`
	Description        string    `json:"description,omitempty"`
	ResponseTargetTime string    `json:"response_target_time"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// NewPriorityResponse maps a priority.
func NewPriorityResponse(p *domain.Priority) PriorityResponse {
	return PriorityResponse{
		ID:                 p.ID,
		UrgencyName:        p.UrgencyName,
		Description:        p.Description,
		ResponseTargetTime: sla.FormatTarget(p.ResponseTarget),
		IsActive:           p.IsActive,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}
