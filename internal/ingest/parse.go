package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoRecords is returned when a payload yields no records at all.
var ErrNoRecords = errors.New("no records provided")

// ParseCSV reads a header row followed by data rows. Values are trimmed;
// short rows leave trailing fields empty and extra values are ignored.
func ParseCSV(content string) ([]map[string]any, error) {
	r := csv.NewReader(strings.NewReader(strings.TrimSpace(content)))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var out []map[string]any
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv row: %w", err)
		}

		rec := make(map[string]any, len(header))
		for i, h := range header {
			if i < len(row) {
				rec[h] = strings.TrimSpace(row[i])
			} else {
				rec[h] = ""
			}
		}
		out = append(out, rec)
	}

	return out, nil
}

// ParseJSON accepts a JSON array of objects, an object with a "records"
// array, or a single object that is treated as one record.
func ParseJSON(body []byte) ([]map[string]any, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}

	if body[0] == '[' {
		var arr []map[string]any
		if err := json.Unmarshal(body, &arr); err != nil {
			return nil, fmt.Errorf("decoding record array: %w", err)
		}

		return arr, nil
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("decoding record payload: %w", err)
	}

	if recs, ok := obj["records"].([]any); ok {
		return objects(recs), nil
	}

	return []map[string]any{obj}, nil
}

// ParseUpload extracts records from a manual CSV upload: a text/csv body,
// or JSON with either a "records" array or a "csv" string.
func ParseUpload(contentType string, body []byte) ([]map[string]any, error) {
	var (
		recs []map[string]any
		err  error
	)

	if strings.HasPrefix(strings.ToLower(contentType), "text/csv") {
		recs, err = ParseCSV(string(body))
	} else {
		var in struct {
			Records []map[string]any `json:"records"`
			CSV     *string          `json:"csv"`
		}
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, fmt.Errorf("decoding upload: %w", err)
		}

		switch {
		case in.Records != nil:
			recs = in.Records
		case in.CSV != nil:
			recs, err = ParseCSV(*in.CSV)
		}
	}

	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNoRecords
	}

	return recs, nil
}

// objects keeps the elements of arr that are JSON objects.
func objects(arr []any) []map[string]any {
	out := make([]map[string]any, 0, len(arr))
	for _, v := range arr {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}

	return out
}
