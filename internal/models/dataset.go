package models

import (
	"sort"
	"time"
)

// FieldType is the declared type of a dataset field.
type FieldType string

// Supported dataset field types.
const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldDate    FieldType = "date"
	FieldBoolean FieldType = "boolean"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case FieldString, FieldNumber, FieldDate, FieldBoolean:
		return true
	}

	return false
}

// DatasetSchema describes the typed fields of a dataset and its temporal key.
type DatasetSchema struct {
	DateField string               `json:"dateField"`
	Fields    map[string]FieldType `json:"fields"`
}

// FieldNames returns the schema field names in stable order.
func (s DatasetSchema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

func (s DatasetSchema) validate(is *issues) {
	if len(s.Fields) == 0 {
		is.add("schema.fields", "at least one field is required")
	}
	for _, name := range s.FieldNames() {
		if name == "" {
			is.add("schema.fields", "field names must not be empty")
		}
		if !s.Fields[name].Valid() {
			is.add("schema.fields."+name, "must be one of string, number, date, boolean")
		}
	}
	if s.DateField == "" {
		is.add("schema.dateField", "is required")

		return
	}
	if t, ok := s.Fields[s.DateField]; !ok || t != FieldDate {
		is.add("schema.dateField", "dateField must exist in fields and be of type date")
	}
}

// Dataset is a typed collection of time-stamped records.
type Dataset struct {
	ID        string        `json:"id"`
	TenantID  string        `json:"tenantId"`
	Name      string        `json:"name"`
	Schema    DatasetSchema `json:"schema"`
	CreatedAt time.Time     `json:"createdAt"`
}

// CreateDatasetRequest is the payload for creating a dataset.
type CreateDatasetRequest struct {
	Name   string        `json:"name"`
	Schema DatasetSchema `json:"schema"`
}

// Validate checks the dataset payload.
func (r *CreateDatasetRequest) Validate() error {
	var is issues
	validateName(&is, "name", r.Name)
	r.Schema.validate(&is)

	return is.err()
}

// DatasetRecord is one append-only row of a dataset.
type DatasetRecord struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenantId"`
	DatasetID string         `json:"datasetId"`
	EventTime time.Time      `json:"eventTime"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"createdAt"`
}

// NewRecord is a mapped record ready to be stored.
type NewRecord struct {
	EventTime time.Time
	Data      map[string]any
}
