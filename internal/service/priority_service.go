package service

import (
	"context"
	"errors"
	"strings"

	"github.com/spec-kit/servicedesk-sla/internal/domain"
	"github.com/spec-kit/servicedesk-sla/internal/repository"
	"github.com/spec-kit/servicedesk-sla/internal/sla"
	apperrors "github.com/spec-kit/servicedesk-sla/pkg/util/errorutil"
)

// PriorityService administers the organisation's priorities, which carry
// the SLA response target.
type PriorityService struct {
	priorities repository.PriorityRepository
}

// PriorityCreateInput is the raw create payload. ResponseTarget uses the
// "[<N>d][<N>h]" form, e.g. "3d", "48h" or "2d4h".
type PriorityCreateInput struct {
	UrgencyName    string
	Description    string
	ResponseTarget string
}

// NewPriorityService constructs the service.
func NewPriorityService(store repository.Store) *PriorityService {
	return &PriorityService{priorities: store.Priorities()}
}

// Create parses the response target and stores the priority. A priority
// with the same urgency name and target already in the organisation is
// returned as is, with created false.
func (s *PriorityService) Create(ctx context.Context, actor *domain.Principal, input PriorityCreateInput) (*domain.Priority, bool, error) {
	if !actor.HasRole(domain.RoleManager, domain.RoleAdmin) {
		return nil, false, apperrors.NewForbidden("manager role required")
	}
	name := strings.TrimSpace(input.UrgencyName)
	if name == "" {
		return nil, false, apperrors.NewValidationError("urgency_name is required", map[string]any{"field": "urgency_name"})
	}
	target, err := sla.ParseTarget(input.ResponseTarget)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.priorities.FindByNameAndTarget(ctx, actor.OrganisationID, name, target)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	priority := &domain.Priority{
		OrganisationID: actor.OrganisationID,
		UrgencyName:    name,
		Description:    strings.TrimSpace(input.Description),
		ResponseTarget: target,
		IsActive:       true,
	}
	if err := s.priorities.Create(ctx, priority); err != nil {
		return nil, false, err
	}
	return priority, true, nil
}

// List returns the organisation's priorities.
func (s *PriorityService) List(ctx context.Context, actor *domain.Principal) ([]domain.Priority, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("employee required")
	}
	return s.priorities.ListByOrganisation(ctx, actor.OrganisationID)
}

// Get returns one priority of the caller's organisation.
func (s *PriorityService) Get(ctx context.Context, actor *domain.Principal, id int64) (*domain.Priority, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("employee required")
	}
	priority, err := s.priorities.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if priority.OrganisationID != actor.OrganisationID {
		return nil, apperrors.NewNotFound("priority", map[string]any{"priority_id": id})
	}
	return priority, nil
}
