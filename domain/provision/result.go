package provision

import (
	"errors"
	"fmt"
)

// SuccessMarker is the literal the billing platform expects on success.
const SuccessMarker = "success"

// Result is what crosses the outward boundary: the success marker or a message.
type Result struct {
	OK      bool
	Message string
}

// Success returns the successful result.
func Success() Result {
	return Result{OK: true, Message: SuccessMarker}
}

// Render returns the string the caller displays.
func (r Result) Render() string {
	if r.OK {
		return SuccessMarker
	}
	return r.Message
}

// Rendered converts an operation error into a Result.
func Rendered(err error) Result {
	if err == nil {
		return Success()
	}
	return Result{Message: Message(err)}
}

// Message renders a human-readable explanation of why an operation failed.
func Message(err error) string {
	if err == nil {
		return SuccessMarker
	}

	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}

	switch {
	case errors.Is(e.Kind, ErrAlreadyProvisioned):
		if e.Step == StepClaim {
			return fmt.Sprintf("An API key for Service #%d is already being created. Wait for it to finish before retrying.", e.ServiceID)
		}
		return "The API key already exists. Use reset function to generate a new one. " +
			"In case the key is deleted externally, please invoke termination command to remove the old record stored in the database."

	case errors.Is(e.Kind, ErrNotProvisioned):
		return "The API key does not exist any more in the database. " +
			"It may be deleted externally and you must re-create the key to continue."

	case errors.Is(e.Kind, ErrInvalidParams):
		if e.Err != nil {
			return "Invalid request parameters: " + e.Err.Error()
		}
		return "Invalid request parameters"

	case errors.Is(e.Kind, ErrInconsistentUpdate):
		return fmt.Sprintf("The API key for Service #%d was updated but the gateway reports the wrong state: %v.", e.ServiceID, e.Err)

	case errors.Is(e.Kind, ErrResetIncomplete):
		return fmt.Sprintf("The API key for Service #%d was terminated but a new key could not be created (%s). "+
			"Run create, not reset, to provision a new key.", e.ServiceID, Message(e.Err))

	case errors.Is(e.Kind, ErrPersistence):
		switch e.Step {
		case StepClaim:
			return fmt.Sprintf("Failed to claim Service #%d for key creation: %v", e.ServiceID, e.Err)
		case StepPersist:
			return fmt.Sprintf("Failed to insert record for Service #%d: %v", e.ServiceID, e.Err)
		case StepDelete:
			return fmt.Sprintf("The API key for Service #%d was deleted but its record could not be removed: %v", e.ServiceID, e.Err)
		default:
			return fmt.Sprintf("Failed to read record for Service #%d: %v", e.ServiceID, e.Err)
		}

	case errors.Is(e.Kind, ErrExternalService):
		switch e.Op {
		case OpCreate:
			return fmt.Sprintf("Failed to create API key for Service #%d: %v", e.ServiceID, e.Err)
		case OpSuspend:
			return fmt.Sprintf("Failed to suspend the API key: %v", e.Err)
		case OpUnsuspend:
			return fmt.Sprintf("Failed to unsuspend the API key: %v", e.Err)
		case OpTerminate:
			return fmt.Sprintf("Failed to delete the API key for Service #%d, the local record was kept: %v", e.ServiceID, e.Err)
		default:
			return fmt.Sprintf("API gateway request failed: %v", e.Err)
		}
	}

	return err.Error()
}
