package reconcile

import (
	"errors"
	"fmt"

	"github.com/yeremiapane/omnipos/ledger"
	"github.com/yeremiapane/omnipos/models"
	"github.com/yeremiapane/omnipos/workflow"
)

// Reason is the machine readable cause of a rejection.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonStale             Reason = models.SyncReasonStale
	ReasonTenantMismatch    Reason = "TenantMismatch"
	ReasonInvalidTransition Reason = "InvalidTransition"
	ReasonInvalid           Reason = "Invalid"
	ReasonIDConflict        Reason = "IdConflict"
	ReasonNotFound          Reason = "NotFound"
	ReasonInternal          Reason = "Internal"
)

var (
	ErrStale          = errors.New("incoming clock is older than the stored clock")
	ErrTenantMismatch = errors.New("order tenant does not match the caller")
	ErrInvalidOrder   = errors.New("invalid order")
)

// ValidationError names the offending field of a structurally invalid order.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order: %s %s", e.Field, e.Msg)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidOrder
}

// ReasonFor maps an error returned by the engine to its reason.
func ReasonFor(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrStale):
		return ReasonStale
	case errors.Is(err, ErrTenantMismatch):
		return ReasonTenantMismatch
	case errors.Is(err, workflow.ErrInvalidTransition):
		return ReasonInvalidTransition
	case errors.Is(err, ErrInvalidOrder):
		return ReasonInvalid
	case errors.Is(err, ledger.ErrIDConflict):
		return ReasonIDConflict
	case errors.Is(err, ledger.ErrNotFound):
		return ReasonNotFound
	}
	return ReasonInternal
}
