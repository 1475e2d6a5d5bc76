package automation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/persistorai/cadence/internal/daterange"
	"github.com/persistorai/cadence/internal/models"
)

type memRules struct {
	mu         sync.Mutex
	rules      map[string]*models.AutomationRule
	runs       map[string]*models.AutomationRun
	raceWinner *models.AutomationRun
	failed     map[string]string
	nextID     int
}

func newMemRules(rules ...*models.AutomationRule) *memRules {
	m := &memRules{
		rules:  map[string]*models.AutomationRule{},
		runs:   map[string]*models.AutomationRun{},
		failed: map[string]string{},
	}
	for _, r := range rules {
		m.rules[r.ID] = r
	}

	return m
}

func runKey(ruleID string, start time.Time) string {
	return ruleID + "@" + start.UTC().Format(time.RFC3339Nano)
}

func (m *memRules) GetRule(_ context.Context, _, id string) (*models.AutomationRule, error) {
	r, ok := m.rules[id]
	if !ok {
		return nil, models.ErrRuleNotFound
	}

	return r, nil
}

func (m *memRules) ListRules(_ context.Context, _ string, status models.RuleStatus, _ models.Page) ([]models.AutomationRule, error) {
	var out []models.AutomationRule
	for _, r := range m.rules {
		if r.Status == status {
			out = append(out, *r)
		}
	}

	return out, nil
}

func (m *memRules) FindRun(_ context.Context, _, ruleID string, start time.Time) (*models.AutomationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.runs[runKey(ruleID, start)], nil
}

func (m *memRules) InsertRun(_ context.Context, tenantID string, run models.AutomationRun) (*models.AutomationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := runKey(run.RuleID, run.WindowStart)
	if m.raceWinner != nil {
		m.runs[k] = m.raceWinner
		m.raceWinner = nil

		return nil, models.ErrDuplicateKey
	}
	if _, ok := m.runs[k]; ok {
		return nil, models.ErrDuplicateKey
	}

	m.nextID++
	run.ID = "run-" + strconv.Itoa(m.nextID)
	run.TenantID = tenantID
	m.runs[k] = &run

	return &run, nil
}

func (m *memRules) MarkRunFailed(_ context.Context, _, runID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[runID] = reason

	return nil
}

type fixedValue struct {
	value float64
	err   error
	calls int
}

func (f *fixedValue) Value(_ context.Context, _, metricID string, _ daterange.Spec, now time.Time) (*models.MetricValue, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	return &models.MetricValue{MetricID: metricID, Value: f.value, End: now}, nil
}

type recordingNotifier struct {
	sent []models.NewNotification
}

func (r *recordingNotifier) Send(_ context.Context, _ string, n models.NewNotification) (models.FanoutResult, error) {
	r.sent = append(r.sent, n)
	return models.FanoutResult{Delivered: 1}, nil
}

type stubDeliverer struct {
	err     error
	targets []string
}

func (s *stubDeliverer) Deliver(_ context.Context, target string, _ WebhookPayload) error {
	s.targets = append(s.targets, target)
	return s.err
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

var fixedNow = time.Date(2024, 5, 1, 10, 7, 30, 0, time.UTC)

func newTestEngine(rules *memRules, values *fixedValue, n *recordingNotifier, d *stubDeliverer) *Engine {
	e := NewEngine(rules, values, n, d, 5*time.Minute, quietLogger())
	e.now = func() time.Time { return fixedNow }

	return e
}

func gtRule(id string, action models.Action) *models.AutomationRule {
	return &models.AutomationRule{
		ID:        id,
		Name:      "High revenue",
		MetricID:  "m1",
		Status:    models.RuleEnabled,
		Condition: models.Condition{Operator: models.OpGt, Threshold: 100},
		Action:    action,
	}
}

func TestWindow(t *testing.T) {
	start, end := Window(fixedNow, 5*time.Minute)

	assert.Equal(t, time.Date(2024, 5, 1, 10, 5, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 10, 0, 0, time.UTC), end)

	s2, _ := Window(fixedNow.Add(2*time.Minute), 5*time.Minute)
	assert.Equal(t, start, s2, "times in the same interval share a window")
}

func TestEvaluateRule_InAppTriggersOncePerWindow(t *testing.T) {
	rules := newMemRules(gtRule("r1", models.Action{Type: models.ActionInApp}))
	values := &fixedValue{value: 150}
	n := &recordingNotifier{}
	e := newTestEngine(rules, values, n, &stubDeliverer{})

	out, err := e.EvaluateRule(context.Background(), "t1", "r1")
	require.NoError(t, err)

	assert.True(t, out.Triggered)
	assert.False(t, out.Skipped)
	assert.Equal(t, models.RunSuccess, out.Run.Status)
	require.Len(t, n.sent, 1)
	assert.Equal(t, "High revenue", n.sent[0].Title)
	assert.Equal(t, "Rule triggered with value 150", n.sent[0].Body)
	assert.Equal(t, models.NotifyInApp, n.sent[0].Type)

	again, err := e.EvaluateRule(context.Background(), "t1", "r1")
	require.NoError(t, err)

	assert.True(t, again.Skipped)
	assert.True(t, again.Triggered)
	assert.Equal(t, out.Run.ID, again.Run.ID)
	assert.Len(t, n.sent, 1, "second evaluation in the window must not notify")
	assert.Equal(t, 1, values.calls)
}

func TestEvaluateRule_EmailUsesCustomText(t *testing.T) {
	rules := newMemRules(gtRule("r1", models.Action{Type: models.ActionEmail, Title: "Alert", Message: "Look"}))
	n := &recordingNotifier{}
	e := newTestEngine(rules, &fixedValue{value: 101.5}, n, &stubDeliverer{})

	_, err := e.EvaluateRule(context.Background(), "t1", "r1")
	require.NoError(t, err)

	require.Len(t, n.sent, 1)
	assert.Equal(t, models.NewNotification{Type: models.NotifyEmail, Title: "Alert", Body: "Look"}, n.sent[0])
}

func TestEvaluateRule_NotTriggered(t *testing.T) {
	rules := newMemRules(gtRule("r1", models.Action{Type: models.ActionInApp}))
	n := &recordingNotifier{}
	e := newTestEngine(rules, &fixedValue{value: 50}, n, &stubDeliverer{})

	out, err := e.EvaluateRule(context.Background(), "t1", "r1")
	require.NoError(t, err)

	assert.False(t, out.Triggered)
	assert.Equal(t, 50.0, out.Run.Result.Value)
	assert.Empty(t, n.sent)
}

func TestEvaluateRule_WebhookMissingTarget(t *testing.T) {
	rules := newMemRules(gtRule("r1", models.Action{Type: models.ActionWebhook}))
	d := &stubDeliverer{}
	e := newTestEngine(rules, &fixedValue{value: 500}, &recordingNotifier{}, d)

	out, err := e.EvaluateRule(context.Background(), "t1", "r1")
	require.NoError(t, err)

	assert.Equal(t, models.RunFailed, out.Run.Status)
	assert.Equal(t, "Webhook target missing", out.Run.Error)
	assert.Equal(t, "Webhook target missing", rules.failed[out.Run.ID])
	assert.Empty(t, d.targets)
}

func TestEvaluateRule_WebhookDeliveryFailureNotRetried(t *testing.T) {
	rules := newMemRules(gtRule("r1", models.Action{Type: models.ActionWebhook, Target: "https://hooks.example.com/x"}))
	d := &stubDeliverer{err: errors.New("connection refused")}
	e := newTestEngine(rules, &fixedValue{value: 500}, &recordingNotifier{}, d)

	out, err := e.EvaluateRule(context.Background(), "t1", "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, out.Run.Status)
	assert.Equal(t, "connection refused", out.Run.Error)

	again, err := e.EvaluateRule(context.Background(), "t1", "r1")
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.Len(t, d.targets, 1)
}

func TestEvaluateRule_MissingMetricRecordsFailure(t *testing.T) {
	rules := newMemRules(gtRule("r1", models.Action{Type: models.ActionInApp}))
	e := newTestEngine(rules, &fixedValue{err: models.ErrMetricNotFound}, &recordingNotifier{}, &stubDeliverer{})

	out, err := e.EvaluateRule(context.Background(), "t1", "r1")
	require.NoError(t, err)

	assert.Equal(t, models.RunFailed, out.Run.Status)
	assert.False(t, out.Triggered)
}

func TestEvaluateRule_MetricErrorReturned(t *testing.T) {
	boom := errors.New("db down")
	rules := newMemRules(gtRule("r1", models.Action{Type: models.ActionInApp}))
	e := newTestEngine(rules, &fixedValue{err: boom}, &recordingNotifier{}, &stubDeliverer{})

	_, err := e.EvaluateRule(context.Background(), "t1", "r1")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, rules.runs, "no run is recorded when evaluation errors")
}

func TestEvaluateRule_LostInsertRaceReturnsWinner(t *testing.T) {
	rules := newMemRules(gtRule("r1", models.Action{Type: models.ActionInApp}))
	start, end := Window(fixedNow, 5*time.Minute)
	rules.raceWinner = &models.AutomationRun{
		ID: "winner", RuleID: "r1", Status: models.RunSuccess, WindowStart: start, WindowEnd: end,
		Result: models.RunResult{Triggered: true, Value: 150},
	}
	n := &recordingNotifier{}
	e := newTestEngine(rules, &fixedValue{value: 150}, n, &stubDeliverer{})

	out, err := e.EvaluateRule(context.Background(), "t1", "r1")
	require.NoError(t, err)

	assert.True(t, out.Skipped)
	assert.Equal(t, "winner", out.Run.ID)
	assert.Empty(t, n.sent, "the loser must not deliver actions")
}

func TestEvaluateRule_UnknownRule(t *testing.T) {
	e := newTestEngine(newMemRules(), &fixedValue{}, &recordingNotifier{}, &stubDeliverer{})

	_, err := e.EvaluateRule(context.Background(), "t1", "missing")
	assert.ErrorIs(t, err, models.ErrRuleNotFound)
}

func TestEvaluateTenant_SkipsDisabledAndContinuesPastErrors(t *testing.T) {
	ok := gtRule("ok", models.Action{Type: models.ActionInApp})
	disabled := gtRule("off", models.Action{Type: models.ActionInApp})
	disabled.Status = models.RuleDisabled
	rules := newMemRules(ok, disabled)
	e := newTestEngine(rules, &fixedValue{value: 1}, &recordingNotifier{}, &stubDeliverer{})

	outs, err := e.EvaluateTenant(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, "ok", outs[0].Run.RuleID)

	failing := newTestEngine(rules, &fixedValue{err: errors.New("boom")}, &recordingNotifier{}, &stubDeliverer{})
	rules.runs = map[string]*models.AutomationRun{}

	outs, err = failing.EvaluateTenant(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Contains(t, outs[0].Error, "boom")
}

func TestHTTPDeliverer(t *testing.T) {
	var got WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewHTTPDeliverer(time.Second)
	err := d.Deliver(context.Background(), srv.URL, WebhookPayload{RuleID: "r1", MetricValue: 12.5, Triggered: true})
	require.NoError(t, err)
	assert.Equal(t, WebhookPayload{RuleID: "r1", MetricValue: 12.5, Triggered: true}, got)
}

func TestHTTPDeliverer_Non2xxIsUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewHTTPDeliverer(time.Second).Deliver(context.Background(), srv.URL, WebhookPayload{})
	assert.ErrorIs(t, err, models.ErrUpstream)
}
