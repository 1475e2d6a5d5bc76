package models

import (
	"net/url"
	"time"
)

// DataSourceType identifies how records arrive.
type DataSourceType string

// Supported data source types.
const (
	SourceCSV      DataSourceType = "CSV"
	SourceWebhook  DataSourceType = "WEBHOOK"
	SourceRESTPoll DataSourceType = "REST_POLL"
)

// Valid reports whether t is a known data source type.
func (t DataSourceType) Valid() bool {
	switch t {
	case SourceCSV, SourceWebhook, SourceRESTPoll:
		return true
	}

	return false
}

const minWebhookSecretLen = 8

// DataSourceConfig maps an inbound integration onto a dataset.
type DataSourceConfig struct {
	DatasetID     string            `json:"datasetId"`
	FieldMapping  map[string]string `json:"fieldMapping"`
	DateField     string            `json:"dateField,omitempty"`
	WebhookSecret string            `json:"webhookSecret,omitempty"`
	RESTEndpoint  string            `json:"restEndpoint,omitempty"`
}

func (c DataSourceConfig) validate(is *issues, typ DataSourceType) {
	if c.DatasetID == "" {
		is.add("config.datasetId", "is required")
	}
	for src, dst := range c.FieldMapping {
		if src == "" || dst == "" {
			is.add("config.fieldMapping", "source and target field names must not be empty")

			break
		}
	}
	if c.WebhookSecret != "" && len(c.WebhookSecret) < minWebhookSecretLen {
		is.add("config.webhookSecret", "must be at least %d characters", minWebhookSecretLen)
	}
	if c.RESTEndpoint != "" && !isHTTPURL(c.RESTEndpoint) {
		is.add("config.restEndpoint", "must be a valid http(s) URL")
	}
	if typ != SourceWebhook && c.WebhookSecret != "" {
		is.add("config.webhookSecret", "only allowed for WEBHOOK sources")
	}
}

// DataSource is a configured inbound-data integration.
type DataSource struct {
	ID        string           `json:"id"`
	TenantID  string           `json:"tenantId"`
	Name      string           `json:"name"`
	Type      DataSourceType   `json:"type"`
	Config    DataSourceConfig `json:"config"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// Redacted returns a copy safe to return to API callers.
func (d DataSource) Redacted() DataSource {
	if d.Config.WebhookSecret != "" {
		d.Config.WebhookSecret = "********"
	}

	return d
}

// CreateDataSourceRequest is the payload for creating a data source.
type CreateDataSourceRequest struct {
	Name   string           `json:"name"`
	Type   DataSourceType   `json:"type"`
	Config DataSourceConfig `json:"config"`
}

// Validate checks the data source payload.
func (r *CreateDataSourceRequest) Validate() error {
	var is issues
	validateName(&is, "name", r.Name)
	if !r.Type.Valid() {
		is.add("type", "must be one of CSV, WEBHOOK, REST_POLL")
	}
	r.Config.validate(&is, r.Type)

	return is.err()
}

// UpdateDataSourceRequest is the payload for updating a data source.
type UpdateDataSourceRequest struct {
	Name   *string           `json:"name,omitempty"`
	Config *DataSourceConfig `json:"config,omitempty"`
}

// Validate checks the update payload against the existing source type.
func (r *UpdateDataSourceRequest) Validate(typ DataSourceType) error {
	var is issues
	if r.Name != nil {
		validateName(&is, "name", *r.Name)
	}
	if r.Config != nil {
		r.Config.validate(&is, typ)
	}

	return is.err()
}

// IngestionStatus is the outcome of an ingestion attempt.
type IngestionStatus string

// Ingestion outcomes.
const (
	IngestionSuccess IngestionStatus = "SUCCESS"
	IngestionFailed  IngestionStatus = "FAILED"
)

// IngestionSummary is the diagnostic snapshot stored with each ingestion log.
type IngestionSummary struct {
	Total    int      `json:"total"`
	Ingested int      `json:"ingested"`
	Errors   []string `json:"errors"`
}

// IngestionLog records one ingestion attempt. Append-only.
type IngestionLog struct {
	ID           string           `json:"id"`
	TenantID     string           `json:"tenantId"`
	DataSourceID string           `json:"dataSourceId"`
	Status       IngestionStatus  `json:"status"`
	Message      string           `json:"message"`
	RawPayload   IngestionSummary `json:"rawPayload"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// IngestionLogQuery filters ingestion log listings.
type IngestionLogQuery struct {
	DataSourceID string
	Status       IngestionStatus
	Page         Page
}

// IngestionResult is returned to callers after an ingestion attempt.
type IngestionResult struct {
	Ingested int      `json:"ingested"`
	Errors   []string `json:"errors"`
}

func isHTTPURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}

	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
