package service

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/persistorai/cadence/internal/domain"
	"github.com/persistorai/cadence/internal/ingest"
	"github.com/persistorai/cadence/internal/models"
)

const hookSecret = "whsec-0123456789"

var ingestNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type ingestionFixture struct {
	svc      *IngestionService
	datasets *mockDatasetStore
	logs     *mockLogStore
	fetcher  *mockFetcher
}

func newIngestionFixture() *ingestionFixture {
	sources := &mockDataSourceStore{sources: map[string]*models.DataSource{
		"csv":  {ID: "csv", TenantID: "t1", Type: models.SourceCSV, Config: models.DataSourceConfig{DatasetID: "d1"}},
		"hook": {ID: "hook", TenantID: "t1", Type: models.SourceWebhook, Config: models.DataSourceConfig{DatasetID: "d1", WebhookSecret: hookSecret}},
		"rest": {ID: "rest", TenantID: "t1", Type: models.SourceRESTPoll, Config: models.DataSourceConfig{
			DatasetID:    "d1",
			RESTEndpoint: "https://api.example.com/orders",
			FieldMapping: map[string]string{"total": "amount"},
		}},
	}}
	datasets := &mockDatasetStore{datasets: map[string]*models.Dataset{
		"d1": {ID: "d1", TenantID: "t1", Schema: models.DatasetSchema{
			DateField: "date",
			Fields:    map[string]models.FieldType{"date": models.FieldDate, "amount": models.FieldNumber},
		}},
	}}
	logs := &mockLogStore{}
	fetcher := &mockFetcher{}

	svc := NewIngestionService(sources, datasets, logs, fetcher, &mockReplay{}, WebhookConfig{}, testLogger())
	svc.now = func() time.Time { return ingestNow }

	return &ingestionFixture{svc: svc, datasets: datasets, logs: logs, fetcher: fetcher}
}

func TestIngestionService_Upload(t *testing.T) {
	f := newIngestionFixture()
	body := []byte("date,amount\n2024-04-01,10\nnot-a-date,5\n2024-04-02,7.5\n")

	res, err := f.svc.Upload(context.Background(), "t1", "csv", "text/csv", body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Ingested != 2 || len(res.Errors) != 1 {
		t.Errorf("result = %+v, want 2 ingested and 1 error", res)
	}
	if f.datasets.appended[0].Data["amount"] != 10.0 {
		t.Errorf("amount = %#v, want coerced number", f.datasets.appended[0].Data["amount"])
	}

	entry := f.logs.last()
	if entry.status != models.IngestionSuccess || entry.message != "Partial ingestion with errors" {
		t.Errorf("log = %+v", entry)
	}
	if entry.summary.Total != 3 || entry.summary.Ingested != 2 {
		t.Errorf("summary = %+v", entry.summary)
	}
}

func TestIngestionService_Upload_Rejections(t *testing.T) {
	f := newIngestionFixture()
	ctx := context.Background()

	_, err := f.svc.Upload(ctx, "t1", "csv", "application/json", []byte(`{"records":[]}`))
	wantInvalid(t, err, "records")

	_, err = f.svc.Upload(ctx, "t1", "hook", "text/csv", []byte("date\n2024-01-01\n"))
	wantInvalid(t, err, "type")

	_, err = f.svc.Upload(ctx, "t1", "missing", "text/csv", []byte("date\n2024-01-01\n"))
	if !errors.Is(err, models.ErrDataSourceNotFound) {
		t.Fatalf("err = %v, want ErrDataSourceNotFound", err)
	}
}

func TestIngestionService_Upload_NoValidRows(t *testing.T) {
	f := newIngestionFixture()

	res, err := f.svc.Upload(context.Background(), "t1", "csv", "text/csv", []byte("date,amount\nnope,1\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Ingested != 0 {
		t.Errorf("ingested = %d", res.Ingested)
	}
	if entry := f.logs.last(); entry.status != models.IngestionFailed {
		t.Errorf("status = %q, want FAILED", entry.status)
	}
}

func delivery(id string, ts time.Time, body string, sign bool) domain.WebhookDelivery {
	stamp := strconv.FormatInt(ts.Unix(), 10)
	d := domain.WebhookDelivery{DataSourceID: "hook", ID: id, Timestamp: stamp, Body: []byte(body)}
	if sign {
		d.Signature = ingest.Sign(hookSecret, stamp, d.Body)
	}
	return d
}

func TestIngestionService_Webhook(t *testing.T) {
	body := `[{"date":"2024-04-30","amount":"12"}]`

	tests := []struct {
		name    string
		d       domain.WebhookDelivery
		wantErr error
	}{
		{name: "accepted", d: delivery("evt-1", ingestNow, body, true)},
		{name: "replayed", d: delivery("evt-1", ingestNow, body, true), wantErr: models.ErrDuplicateWebhook},
		{name: "stale", d: delivery("evt-2", ingestNow.Add(-10*time.Minute), body, true), wantErr: models.ErrStaleWebhook},
		{name: "unsigned", d: delivery("evt-3", ingestNow, body, false), wantErr: models.ErrMissingSignature},
		{name: "tampered", d: func() domain.WebhookDelivery {
			d := delivery("evt-4", ingestNow, body, true)
			d.Body = []byte(`[{"date":"2024-04-30","amount":"999"}]`)
			return d
		}(), wantErr: models.ErrInvalidSignature},
	}

	f := newIngestionFixture()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := f.svc.Webhook(context.Background(), tc.d)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Ingested != 1 {
				t.Errorf("ingested = %d, want 1", res.Ingested)
			}
		})
	}

	if entry := f.logs.last(); entry.message != "Webhook ingestion complete" {
		t.Errorf("message = %q", entry.message)
	}
}

func TestIngestionService_Webhook_ForgedDoesNotBurnID(t *testing.T) {
	f := newIngestionFixture()
	body := `{"date":"2024-04-30","amount":1}`

	forged := delivery("evt-9", ingestNow, body, false)
	forged.Signature = "deadbeef"
	if _, err := f.svc.Webhook(context.Background(), forged); !errors.Is(err, models.ErrInvalidSignature) {
		t.Fatalf("forged err = %v", err)
	}

	if _, err := f.svc.Webhook(context.Background(), delivery("evt-9", ingestNow, body, true)); err != nil {
		t.Fatalf("legitimate delivery rejected: %v", err)
	}
}

func TestIngestionService_Webhook_MissingID(t *testing.T) {
	f := newIngestionFixture()

	_, err := f.svc.Webhook(context.Background(), delivery("", ingestNow, `[]`, true))
	wantInvalid(t, err, ingest.HeaderWebhookID)
}

func TestIngestionService_Poll(t *testing.T) {
	f := newIngestionFixture()
	f.fetcher.records = []map[string]any{{"date": "2024-04-29", "total": 42}}

	res, err := f.svc.Poll(context.Background(), "t1", "rest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Ingested != 1 || f.datasets.appended[0].Data["amount"] != 42.0 {
		t.Errorf("result = %+v, data = %v", res, f.datasets.appended[0].Data)
	}
	if entry := f.logs.last(); entry.message != "REST poll complete" {
		t.Errorf("message = %q", entry.message)
	}

	_, err = f.svc.Poll(context.Background(), "t1", "csv")
	wantInvalid(t, err, "type")
}

func TestIngestionService_PollScheduled(t *testing.T) {
	f := newIngestionFixture()
	ctx := context.Background()

	f.fetcher.err = errors.New("connection refused")
	if _, err := f.svc.PollScheduled(ctx, "t1", "rest"); err == nil {
		t.Fatal("expected fetch error")
	}
	if entry := f.logs.last(); entry.status != models.IngestionFailed || entry.message != "ETL poll failed" {
		t.Errorf("log = %+v", entry)
	}

	f.fetcher.err = nil
	f.fetcher.records = []map[string]any{{"date": "2024-04-29"}, {"amount": 1}}
	entry, err := f.svc.PollScheduled(ctx, "t1", "rest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Message != "ETL poll with errors" {
		t.Errorf("message = %q", entry.Message)
	}

	for _, id := range []string{"missing", "csv"} {
		entry, err := f.svc.PollScheduled(ctx, "t1", id)
		if err != nil || entry != nil {
			t.Errorf("%s: entry = %v, err = %v, want skipped", id, entry, err)
		}
	}
}
