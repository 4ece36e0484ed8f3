package provision

import (
	"strings"
	"time"
)

// Key status labels shown to operators.
const (
	StatusEnabled       = "Enabled"
	StatusDisabled      = "Disabled"
	StatusUnknown       = "Unknown / Error"
	StatusNotRegistered = "Not Registered"
)

// Source tells where the details of a Describe came from.
type Source string

const (
	SourceNone  Source = "none"
	SourceLive  Source = "live"
	SourceCache Source = "cache"
	SourceLocal Source = "local"
)

// DateLayout formats key timestamps for display.
const DateLayout = "2006-01-02 15:04:05"

// Details is the read view of one service's key.
type Details struct {
	ServiceID   int64
	Registered  bool
	Source      Source
	Stale       bool // live lookup failed, fields are last-known-good
	Region      string
	KeyID       string
	KeyValue    string
	KeyName     string
	Description string
	UsagePlans  []string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NotRegistered is the details of a service without a record.
func NotRegistered(serviceID int64) Details {
	return Details{ServiceID: serviceID, Source: SourceNone, Status: StatusNotRegistered}
}

// LocalDetails builds details from the local record only.
func LocalDetails(r Record) Details {
	return Details{
		ServiceID:  r.ServiceID,
		Registered: true,
		Source:     SourceLocal,
		Region:     r.Region,
		KeyID:      r.KeyID,
		KeyValue:   r.KeyValue,
		UsagePlans: r.UsagePlans,
		Status:     StatusUnknown,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// LiveDetails merges the local record with the live external view.
func LiveDetails(r Record, k ExternalKey, source Source) Details {
	d := LocalDetails(r)
	d.Source = source
	d.KeyName = k.Name
	d.Description = k.Description
	if !k.CreatedAt.IsZero() {
		d.CreatedAt = k.CreatedAt
	}
	if !k.UpdatedAt.IsZero() {
		d.UpdatedAt = k.UpdatedAt
	}
	if k.Enabled {
		d.Status = StatusEnabled
	} else {
		d.Status = StatusDisabled
	}
	return d
}

// Field is one label/value row.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Fields returns the ordered rows displayed on the admin services tab.
func (d Details) Fields(loc *time.Location) []Field {
	if !d.Registered {
		return []Field{{Label: "Key Status", Value: StatusNotRegistered}}
	}
	if loc == nil {
		loc = time.Local
	}

	fields := []Field{
		{Label: "Deployed Region", Value: d.Region},
		{Label: "API Key", Value: d.KeyValue},
	}
	if d.KeyName != "" {
		fields = append(fields, Field{Label: "Key Name", Value: d.KeyName + " (ID: " + d.KeyID + ")"})
	} else {
		fields = append(fields, Field{Label: "Key ID", Value: d.KeyID})
	}
	if d.Description != "" {
		fields = append(fields, Field{Label: "Key Description", Value: d.Description})
	}
	fields = append(fields,
		Field{Label: "Usage Plans", Value: strings.Join(d.UsagePlans, ", ")},
		Field{Label: "Key Status", Value: d.Status},
	)
	if !d.CreatedAt.IsZero() {
		fields = append(fields, Field{Label: "Key Created", Value: d.CreatedAt.In(loc).Format(DateLayout)})
	}
	if !d.UpdatedAt.IsZero() {
		fields = append(fields, Field{Label: "Key Last Updated", Value: d.UpdatedAt.In(loc).Format(DateLayout)})
	}
	return fields
}
