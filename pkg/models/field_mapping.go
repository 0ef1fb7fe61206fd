package models

import "strings"

// FieldMapping pairs an input column with a lead attribute. Transforms name
// normalizers applied to the raw value in order.
type FieldMapping struct {
	Column     string   `json:"column" yaml:"column" validate:"required"`
	Field      string   `json:"field" yaml:"field" validate:"required"`
	Transforms []string `json:"transforms,omitempty" yaml:"transforms,omitempty"`
}

// ImportDefaults are the user-chosen options applied to every incoming record.
type ImportDefaults struct {
	Source             string `json:"source" validate:"required,max=64"`
	DefaultCity        string `json:"default_city,omitempty" validate:"max=128"`
	DefaultState       string `json:"default_state,omitempty" validate:"max=64"`
	DefaultServiceType string `json:"default_service_type,omitempty" validate:"max=128"`
	OverrideLocation   bool   `json:"override_location"`
}

// Apply returns lead with the defaults applied. City and state are back-filled
// when blank, or forced when OverrideLocation is set. Source is always forced.
func (d ImportDefaults) Apply(lead Lead) Lead {
	if d.OverrideLocation {
		if d.DefaultCity != "" {
			lead.City = d.DefaultCity
		}
		if d.DefaultState != "" {
			lead.State = d.DefaultState
		}
	} else {
		if strings.TrimSpace(lead.City) == "" {
			lead.City = d.DefaultCity
		}
		if strings.TrimSpace(lead.State) == "" {
			lead.State = d.DefaultState
		}
	}
	if strings.TrimSpace(lead.ServiceType) == "" {
		lead.ServiceType = d.DefaultServiceType
	}
	if d.Source != "" {
		lead.Source = d.Source
	}
	return lead
}

// ForcedColumns lists the columns that must be written on update even when the
// merge kept the stored value.
func (d ImportDefaults) ForcedColumns() []string {
	var columns []string
	if d.Source != "" {
		columns = append(columns, "source")
	}
	if d.OverrideLocation {
		if d.DefaultCity != "" {
			columns = append(columns, "city")
		}
		if d.DefaultState != "" {
			columns = append(columns, "state")
		}
	}
	return columns
}
