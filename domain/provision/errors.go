package provision

import (
	"errors"
	"fmt"
)

// Error kinds. Compare with errors.Is.
var (
	ErrAlreadyProvisioned = errors.New("already provisioned")
	ErrNotProvisioned     = errors.New("not provisioned")
	ErrExternalService    = errors.New("external key service failure")
	ErrInconsistentUpdate = errors.New("inconsistent update")
	ErrPersistence        = errors.New("persistence failure")
	ErrResetIncomplete    = errors.New("reset incomplete")
	ErrInvalidParams      = errors.New("invalid request parameters")
)

// Operations.
const (
	OpCreate    = "create"
	OpSuspend   = "suspend"
	OpUnsuspend = "unsuspend"
	OpTerminate = "terminate"
	OpReset     = "reset"
	OpDescribe  = "describe"
)

// Steps within an operation.
const (
	StepValidate  = "validate"
	StepClaim     = "claim"
	StepLookup    = "lookup"
	StepCreateKey = "create_key"
	StepUpdateKey = "update_key"
	StepDeleteKey = "delete_key"
	StepPersist   = "persist"
	StepDelete    = "delete_record"
	StepRecreate  = "recreate"
)

// Error is a lifecycle failure with its kind, operation, and failing step.
type Error struct {
	Kind      error
	Op        string
	ServiceID int64
	Step      string
	Err       error
}

// NewError builds an *Error.
func NewError(kind error, op string, serviceID int64, step string, err error) *Error {
	return &Error{Kind: kind, Op: op, ServiceID: serviceID, Step: step, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s service %d: %s: %v", e.Op, e.ServiceID, e.Step, e.Kind)
	}
	return fmt.Sprintf("%s service %d: %s: %v: %v", e.Op, e.ServiceID, e.Step, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindLabel returns a stable label for err, suitable for metrics.
func KindLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrResetIncomplete):
		return "reset_incomplete"
	case errors.Is(err, ErrAlreadyProvisioned):
		return "already_provisioned"
	case errors.Is(err, ErrNotProvisioned):
		return "not_provisioned"
	case errors.Is(err, ErrInconsistentUpdate):
		return "inconsistent_update"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrExternalService):
		return "external_service"
	case errors.Is(err, ErrInvalidParams):
		return "invalid_params"
	default:
		return "internal"
	}
}

// PartialAssociation records usage plans that could not be attached to a new key.
// It is informational only and never fails an operation.
type PartialAssociation struct {
	Requested []string
	Attached  []string
	Failed    map[string]error
}

// Partial reports whether at least one requested plan failed.
func (p PartialAssociation) Partial() bool {
	return len(p.Failed) > 0
}
