package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"contest-lifecycle/internal/lifecycle"
	"contest-lifecycle/internal/models"
	"contest-lifecycle/internal/repository"

	"github.com/google/uuid"
)

// Admin actions recorded in the admin log
const (
	ActionForceLock      = "FORCE_LOCK"
	ActionForceLive      = "FORCE_LIVE"
	ActionCancel         = "CANCEL"
	ActionMarkError      = "MARK_ERROR"
	ActionResolveError   = "RESOLVE_ERROR"
	ActionSettle         = "SETTLE"
	ActionCancelTemplate = "CANCEL_TEMPLATE"
)

// AdminService is the operator override surface. Every command goes through
// the lifecycle primitives and leaves an admin log row naming the operator.
type AdminService struct {
	machine *lifecycle.Machine
	repo    *repository.Repository
}

func NewAdminService(machine *lifecycle.Machine, repo *repository.Repository) *AdminService {
	return &AdminService{
		machine: machine,
		repo:    repo,
	}
}

// ForceLock locks a SCHEDULED contest ahead of its lock time
func (s *AdminService) ForceLock(ctx context.Context, operator string, id uuid.UUID, now time.Time) (*lifecycle.Result, error) {
	res, err := s.machine.ScheduleToLockForInstance(ctx, now, id)
	s.audit(ctx, operator, ActionForceLock, "CONTEST", id, nil, res, err)
	return res, err
}

// ForceLive starts a LOCKED contest ahead of its tournament start
func (s *AdminService) ForceLive(ctx context.Context, operator string, id uuid.UUID, now time.Time) (*lifecycle.Result, error) {
	res, err := s.machine.LockToLiveForInstance(ctx, now, id)
	s.audit(ctx, operator, ActionForceLive, "CONTEST", id, nil, res, err)
	return res, err
}

// Cancel cancels a single non-terminal contest
func (s *AdminService) Cancel(ctx context.Context, operator string, id uuid.UUID, now time.Time) (*lifecycle.Result, error) {
	res, err := s.machine.ToCancelled(ctx, now, lifecycle.InstanceScope(id))
	s.audit(ctx, operator, ActionCancel, "CONTEST", id, nil, res, err)
	return res, err
}

// MarkError parks a contest in ERROR
func (s *AdminService) MarkError(ctx context.Context, operator string, id uuid.UUID, reason string, now time.Time) (*lifecycle.Result, error) {
	res, err := s.machine.ToError(ctx, now, id)
	s.audit(ctx, operator, ActionMarkError, "CONTEST", id, models.JSONB{"reason": reason}, res, err)
	return res, err
}

// ResolveError moves a contest out of ERROR to COMPLETE or CANCELLED
func (s *AdminService) ResolveError(
	ctx context.Context,
	operator string,
	id uuid.UUID,
	target models.ContestStatus,
	now time.Time,
) (*lifecycle.Result, error) {
	res, err := s.machine.ErrorToTerminal(ctx, now, id, target)
	s.audit(ctx, operator, ActionResolveError, "CONTEST", id, models.JSONB{"target": string(target)}, res, err)
	return res, err
}

// Settle completes and settles a LIVE contest without waiting for its end time
func (s *AdminService) Settle(ctx context.Context, operator string, id uuid.UUID, now time.Time) (*lifecycle.Result, error) {
	res, err := s.machine.LiveToCompleteForInstance(ctx, now, id)
	s.audit(ctx, operator, ActionSettle, "CONTEST", id, nil, res, err)
	return res, err
}

// CancelTemplate relays a provider cancellation entered by an operator
func (s *AdminService) CancelTemplate(ctx context.Context, operator string, templateID uuid.UUID, now time.Time) (*lifecycle.Result, error) {
	res, err := s.machine.CancelTemplate(ctx, now, templateID)
	s.audit(ctx, operator, ActionCancelTemplate, "TEMPLATE", templateID, nil, res, err)
	return res, err
}

// GetAdminLogs returns the admin log, optionally for one resource
func (s *AdminService) GetAdminLogs(ctx context.Context, resourceID string, limit, offset int) ([]models.AdminLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.GetAdminLogs(ctx, resourceID, limit, offset)
}

// audit records the outcome of an admin command. A failed audit write is
// logged and does not undo the transition.
func (s *AdminService) audit(
	ctx context.Context,
	operator, action, resourceType string,
	id uuid.UUID,
	details models.JSONB,
	res *lifecycle.Result,
	opErr error,
) {
	if details == nil {
		details = models.JSONB{}
	}
	if res != nil {
		details["transitions"] = res.Count()
		if len(res.Skipped) > 0 {
			details["skipped"] = res.Skipped[0].Reason
		}
	}
	if opErr != nil {
		details["error"] = opErr.Error()
	}

	entry := &models.AdminLog{
		Operator:     operator,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   id.String(),
		Details:      details,
	}
	if err := s.repo.CreateAdminLog(ctx, entry); err != nil {
		log.Printf("[Admin] Failed to record %s on %s by %s: %v", action, id, operator, err)
		return
	}

	outcome := "ok"
	if opErr != nil {
		outcome = fmt.Sprintf("error: %v", opErr)
	} else if res != nil && !res.Transitioned() {
		outcome = "no-op"
	}
	log.Printf("[Admin] %s %s on %s: %s", operator, action, id, outcome)
}
