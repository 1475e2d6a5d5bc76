package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/persistorai/cadence/internal/models"
)

var salesSchema = models.DatasetSchema{
	DateField: "date",
	Fields: map[string]models.FieldType{
		"date":   models.FieldDate,
		"amount": models.FieldNumber,
		"region": models.FieldString,
		"paid":   models.FieldBoolean,
	},
}

func TestMap_CoercesSchemaFields(t *testing.T) {
	res := Map([]map[string]any{{"date": "2024-01-01", "amount": "100"}}, Mapping{Schema: salesSchema})

	require.Empty(t, res.Errors)
	require.Len(t, res.Records, 1)
	assert.Equal(t, 100.0, res.Records[0].Data["amount"])
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), res.Records[0].EventTime)
}

func TestMap_PartialBatch(t *testing.T) {
	raw := []map[string]any{
		{"date": "2024-01-01", "amount": "1"},
		{"date": "not a date", "amount": "2"},
		{"date": "2024-01-03", "amount": "3"},
	}

	res := Map(raw, Mapping{Schema: salesSchema})

	assert.Len(t, res.Records, 2)
	assert.Equal(t, []string{"Row 2: invalid date field"}, res.Errors)
}

func TestMap_MissingDate(t *testing.T) {
	res := Map([]map[string]any{{"amount": 5}, {"date": ""}}, Mapping{Schema: salesSchema})

	assert.Empty(t, res.Records)
	assert.Equal(t, []string{"Row 1: invalid date field", "Row 2: invalid date field"}, res.Errors)
}

func TestMap_ExplicitMappingWins(t *testing.T) {
	raw := []map[string]any{{"ts": "2024-02-01T10:00:00Z", "total": "7.5", "amount": "1", "extra": "x"}}
	m := Mapping{
		Fields: map[string]string{"ts": "date", "total": "amount"},
		Schema: salesSchema,
	}

	res := Map(raw, m)

	require.Len(t, res.Records, 1)
	data := res.Records[0].Data
	assert.Equal(t, 7.5, data["amount"])
	assert.NotContains(t, data, "extra")
	assert.NotContains(t, data, "ts")
}

func TestMap_DateFieldOverride(t *testing.T) {
	raw := []map[string]any{{"date": "garbage", "created": "2024-03-01"}}
	res := Map(raw, Mapping{Fields: map[string]string{"created": "created"}, Schema: salesSchema, DateField: "created"})

	require.Len(t, res.Records, 1)
	assert.Equal(t, 2024, res.Records[0].EventTime.Year())
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name string
		in   any
		typ  models.FieldType
		want any
	}{
		{"number from string", "42.5", models.FieldNumber, 42.5},
		{"number unparsable passes through", "abc", models.FieldNumber, "abc"},
		{"number empty is zero", "", models.FieldNumber, 0.0},
		{"number blank is zero", "  ", models.FieldNumber, 0.0},
		{"number from bool", true, models.FieldNumber, 1.0},
		{"bool from string", "TRUE", models.FieldBoolean, true},
		{"bool false string", "yes", models.FieldBoolean, false},
		{"bool from zero", 0.0, models.FieldBoolean, false},
		{"date from epoch ms", float64(0), models.FieldDate, time.UnixMilli(0).UTC()},
		{"date unparsable passes through", "soon", models.FieldDate, "soon"},
		{"string untouched", 12.0, models.FieldString, 12.0},
		{"nil stays nil", nil, models.FieldNumber, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Coerce(tc.in, tc.typ))
		})
	}
}

func TestParseCSV(t *testing.T) {
	recs, err := ParseCSV("\n date , amount ,region\n2024-01-01, 10 ,eu\n2024-01-02,20\n")
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, map[string]any{"date": "2024-01-01", "amount": "10", "region": "eu"}, recs[0])
	assert.Equal(t, "", recs[1]["region"])

	recs, err = ParseCSV("   ")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestParseJSON(t *testing.T) {
	recs, err := ParseJSON([]byte(`[{"a":1},{"a":2}]`))
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = ParseJSON([]byte(`{"records":[{"a":1}, 3]}`))
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	recs, err = ParseJSON([]byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"a": 1.0}}, recs)

	_, err = ParseJSON([]byte(`{`))
	assert.Error(t, err)
}

func TestParseUpload(t *testing.T) {
	recs, err := ParseUpload("text/csv; charset=utf-8", []byte("a,b\n1,2"))
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	recs, err = ParseUpload("application/json", []byte(`{"csv":"a\n1\n2"}`))
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = ParseUpload("application/json", []byte(`{"records":[{"a":1}]}`))
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	_, err = ParseUpload("application/json", []byte(`{"records":[]}`))
	assert.ErrorIs(t, err, ErrNoRecords)

	_, err = ParseUpload("application/json", []byte(`{}`))
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestParseTimestamp(t *testing.T) {
	sec, err := ParseTimestamp("1700000000")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), sec.UnixMilli())

	ms, err := ParseTimestamp("1700000000123")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000123), ms.UnixMilli())

	for _, raw := range []string{"", "abc", "-5", "0"} {
		_, err := ParseTimestamp(raw)
		assert.Error(t, err, raw)
	}
}

func TestCheckFreshness(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tol := 5 * time.Minute

	assert.NoError(t, CheckFreshness(now.Add(-4*time.Minute), now, tol))
	assert.NoError(t, CheckFreshness(now.Add(4*time.Minute), now, tol))
	assert.ErrorIs(t, CheckFreshness(now.Add(-6*time.Minute), now, tol), models.ErrStaleWebhook)
	assert.ErrorIs(t, CheckFreshness(now.Add(6*time.Minute), now, tol), models.ErrUnauthorized)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"amount":1}`)
	sig := Sign("s3cretkey", "1700000000", body)

	assert.Len(t, sig, 64)
	assert.NoError(t, VerifySignature("s3cretkey", "1700000000", body, sig))
	assert.NoError(t, VerifySignature("s3cretkey", "1700000000", body, " "+sig+" "))
	assert.ErrorIs(t, VerifySignature("s3cretkey", "1700000001", body, sig), models.ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("other-key", "1700000000", body, sig), models.ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("s3cretkey", "1700000000", body, ""), models.ErrMissingSignature)
}

func TestReplayKey(t *testing.T) {
	assert.Equal(t, "webhook:ds-1:evt-9", ReplayKey("ds-1", "evt-9"))
}

func TestFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte(`{"records":[{"date":"2024-01-01","value":3}]}`))
		case "/single":
			_, _ = w.Write([]byte(`{"date":"2024-01-01","value":4}`))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	f := NewFetcher(2 * time.Second)

	recs, err := f.Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, 3.0, recs[0]["value"])

	recs, err = f.Fetch(context.Background(), srv.URL+"/single")
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	_, err = f.Fetch(context.Background(), srv.URL+"/fail")
	assert.ErrorIs(t, err, models.ErrUpstream)
}

func TestFetcher_Simulated(t *testing.T) {
	f := NewFetcher(time.Second)
	f.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	recs, err := f.Fetch(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "simulated", recs[0]["category"])
	assert.Equal(t, "2024-05-01T12:00:00Z", recs[0]["date"])

	v, ok := recs[0]["value"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, v, 0.0)
	assert.Less(t, v, 1000.0)
}
