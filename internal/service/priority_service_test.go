package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/servicedesk-sla/internal/domain"
	"github.com/spec-kit/servicedesk-sla/internal/sla"
)

func TestCreatePriorityParsesTarget(t *testing.T) {
	h := newHarness(t)
	svc := NewPriorityService(h.store)

	priority, created, err := svc.Create(context.Background(), h.actor, PriorityCreateInput{
		UrgencyName:    " High ",
		ResponseTarget: "2d4h",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "High", priority.UrgencyName)
	assert.Equal(t, 52*time.Hour, priority.ResponseTarget)
	assert.True(t, priority.IsActive)

	again, created, err := svc.Create(context.Background(), h.actor, PriorityCreateInput{
		UrgencyName:    "High",
		ResponseTarget: "52h",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, priority.ID, again.ID)

	list, err := svc.List(context.Background(), h.actor)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreatePriorityRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	svc := NewPriorityService(h.store)
	ctx := context.Background()

	_, _, err := svc.Create(ctx, h.actor, PriorityCreateInput{UrgencyName: "Low", ResponseTarget: "xyz"})
	var formatErr *sla.FormatError
	require.ErrorAs(t, err, &formatErr)
	assertDomainCode(t, err, "INVALID_DURATION")

	_, _, err = svc.Create(ctx, h.actor, PriorityCreateInput{ResponseTarget: "1d"})
	assertDomainCode(t, err, "VALIDATION_FAILED")

	agent := &domain.Principal{EmployeeID: "emp-2", OrganisationID: "org-1", Roles: []domain.Role{domain.RoleAgent}}
	_, _, err = svc.Create(ctx, agent, PriorityCreateInput{UrgencyName: "Low", ResponseTarget: "1d"})
	assertDomainCode(t, err, "FORBIDDEN")
}

func TestGetPriorityHidesOtherOrganisations(t *testing.T) {
	h := newHarness(t)
	svc := NewPriorityService(h.store)
	id := h.priority(time.Hour)

	got, err := svc.Get(context.Background(), h.actor, *id)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, got.ResponseTarget)

	outsider := &domain.Principal{EmployeeID: "emp-9", OrganisationID: "org-2", Roles: []domain.Role{domain.RoleAdmin}}
	_, err = svc.Get(context.Background(), outsider, *id)
	assertDomainCode(t, err, "NOT_FOUND")
}
