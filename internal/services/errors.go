package services

import (
	"errors"

	"contest-lifecycle/internal/lifecycle"
	"contest-lifecycle/internal/repository"
)

var (
	ErrTemplateBusy      = repository.ErrTemplateBusy
	ErrNotScheduled      = repository.ErrNotScheduled
	ErrTemplateCancelled = errors.New("template is cancelled")
	ErrStandingsRejected = errors.New("standings not accepted")
)

func invalid(field, reason string) error {
	return &lifecycle.ValidationError{Field: field, Reason: reason}
}
