// Package provision provides the value types and pure functions behind API key
// provisioning for billed services.
// This package has NO dependencies on I/O or external packages.
package provision

import (
	"strconv"
	"time"
)

// Defaults carried over from the billing module configuration.
const (
	DefaultKeyNamePrefix = "whmcs_"
	DefaultRegion        = "us-east-1"
)

// Column limits of the service_keys table.
const (
	MaxKeyIDLen    = 100
	MaxKeyValueLen = 100
	MaxRegionLen   = 20
)

// Record is the local mirror of one provisioned external key (immutable value type).
// At most one Record exists per ServiceID.
type Record struct {
	ServiceID  int64
	KeyID      string
	KeyValue   string
	Region     string
	UsagePlans []string // plans that were attached successfully at creation
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// WithTimestamps returns a copy of r with mirrored timestamps replaced.
func (r Record) WithTimestamps(createdAt, updatedAt time.Time) Record {
	r.CreatedAt = createdAt
	r.UpdatedAt = updatedAt
	return r
}

// ExternalKey is the live view of a key as reported by the key service.
type ExternalKey struct {
	ID          string    `json:"id"`
	Value       string    `json:"value,omitempty"`
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Endpoint tells the key service client where and as whom to connect.
// It is supplied by the caller on every operation.
type Endpoint struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	EndpointURL     string // optional override of the regional endpoint
}

// WithRegion returns a copy of e targeting region. Empty regions are ignored.
func (e Endpoint) WithRegion(region string) Endpoint {
	if region != "" {
		e.Region = region
	}
	return e
}

// CreateParams contains parameters for provisioning a key.
type CreateParams struct {
	ServiceID     int64
	KeyNamePrefix string
	Region        string
	UsagePlans    []string
}

// KeyName derives the deterministic external key name for a service.
func KeyName(prefix string, serviceID int64) string {
	return prefix + "_serviceid_" + strconv.FormatInt(serviceID, 10)
}

// State is the lifecycle state of one service.
type State string

const (
	StateUnprovisioned State = "unprovisioned"
	StateActive        State = "active"
	StateSuspended     State = "suspended"
)

// StateOf derives the lifecycle state from record presence and the live enabled flag.
func StateOf(hasRecord, enabled bool) State {
	switch {
	case !hasRecord:
		return StateUnprovisioned
	case enabled:
		return StateActive
	default:
		return StateSuspended
	}
}
