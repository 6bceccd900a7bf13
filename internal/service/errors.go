package service

import (
	"fmt"
	"strings"

	"storyadmin/internal/models"
)

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// ValidationError represents a validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

// InvalidStateError is returned when a mutation is attempted outside the
// campaign status that permits it.
type InvalidStateError struct {
	Operation string
	Status    models.CampaignStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s campaign in %q status", e.Operation, e.Status)
}

// InvalidTransitionError is returned when a requested status transition is
// not in the lifecycle table.
type InvalidTransitionError struct {
	From models.CampaignStatus
	To   models.CampaignStatus
}

func (e *InvalidTransitionError) Error() string {
	allowed := e.From.AllowedTransitions()
	if len(allowed) == 0 {
		return fmt.Sprintf("cannot transition campaign from terminal status %q", e.From)
	}
	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = string(s)
	}
	return fmt.Sprintf("cannot transition campaign from %q to %q (allowed: %s)",
		e.From, e.To, strings.Join(names, ", "))
}

// BatchSetupError fails a whole batch before any recipient is processed:
// no assets, no eligible recipients when some were expected, or a
// persistence failure during setup.
type BatchSetupError struct {
	Message string
}

func (e *BatchSetupError) Error() string {
	return fmt.Sprintf("batch setup error: %s", e.Message)
}

// ConflictError represents a conflict error (e.g., duplicate)
type ConflictError struct {
	Resource string
	Message  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict with %s: %s", e.Resource, e.Message)
}
