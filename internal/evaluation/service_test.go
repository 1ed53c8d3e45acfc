package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ricesearch/fairrank/internal/bus"
	"github.com/ricesearch/fairrank/internal/config"
	"github.com/ricesearch/fairrank/internal/dataset"
	"github.com/ricesearch/fairrank/internal/fairness"
	"github.com/ricesearch/fairrank/internal/metrics"
	apperrors "github.com/ricesearch/fairrank/internal/pkg/errors"
	"github.com/ricesearch/fairrank/internal/pkg/logger"
	"github.com/ricesearch/fairrank/internal/report"
)

const hiringYAML = `
name: %s
relevance: [0.82, 0.81, 0.80, 0.79, 0.78, 0.77]
ranking: %s
sensitive_features:
  gender: [Man, Man, Man, Woman, Woman, Woman]
metrics:
  exposure: exposure
  utility: utility
`

func hiring(t *testing.T, name string) *dataset.Dataset {
	t.Helper()
	return parse(t, name, "[1, 2, 3, 4, 5, 6]")
}

func parse(t *testing.T, name, ranking string) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.Parse([]byte(fmt.Sprintf(hiringYAML, name, ranking)), dataset.FormatYAML)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return ds
}

type fixture struct {
	svc      *Service
	store    *report.MemoryStore
	bus      *bus.MemoryBus
	registry *prometheus.Registry
}

func newFixture(t *testing.T, cfg config.EvaluationConfig) *fixture {
	t.Helper()

	m := metrics.New()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		store:    report.NewMemoryStore(0, 0),
		bus:      bus.NewMemoryBus(logger.Discard()),
		registry: reg,
	}
	t.Cleanup(func() { f.bus.Close() })
	f.svc = NewService(f.store, f.bus, m, logger.Discard(), cfg)
	return f
}

func TestService_Evaluate(t *testing.T) {
	f := newFixture(t, config.EvaluationConfig{Workers: 2})
	ctx := context.Background()

	events := make(chan bus.Event, 1)
	f.bus.Subscribe(ctx, bus.TopicReportCreated, func(_ context.Context, e bus.Event) error {
		events <- e
		return nil
	})

	ds := hiring(t, "hiring")
	rep, err := f.svc.Evaluate(ctx, ds)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if rep.Dataset != "hiring" || rep.Items != 6 || rep.Fingerprint != ds.Fingerprint() {
		t.Errorf("report header = %+v", rep)
	}

	stored, err := f.store.Get(ctx, rep.ID)
	if err != nil || stored.ID != rep.ID {
		t.Errorf("stored report = %v, %v", stored, err)
	}

	select {
	case e := <-events:
		var got report.Report
		if err := e.Decode(&got); err != nil {
			t.Fatal(err)
		}
		if got.ID != rep.ID || e.Type != bus.EventReportCreated || e.Source != Source {
			t.Errorf("event = %+v (report %s)", e, got.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("no report.created event")
	}

	gender, _ := rep.Feature("gender")
	exposure, _ := gender.Metric("exposure")
	if got, ok := gaugeValue(t, f.registry, metrics.MetricGroupRatio, "exposure"); !ok || got != *exposure.Ratio {
		t.Errorf("ratio gauge = %v (found %v), want %v", got, ok, *exposure.Ratio)
	}
	if n, err := testutil.GatherAndCount(f.registry, metrics.MetricEvaluationsTotal); err != nil || n != 1 {
		t.Errorf("evaluation series = %d, %v", n, err)
	}
}

// gaugeValue finds the gauge of the named family whose metric label matches.
func gaugeValue(t *testing.T, reg *prometheus.Registry, family, metric string) (float64, bool) {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range families {
		if mf.GetName() != family {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "metric" && l.GetValue() == metric {
					return m.GetGauge().GetValue(), true
				}
			}
		}
	}
	return 0, false
}

func TestService_EvaluateErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.EvaluationConfig
		ds   func(t *testing.T) *dataset.Dataset
		want error
	}{
		{
			name: "nil dataset",
			ds:   func(t *testing.T) *dataset.Dataset { return nil },
			want: apperrors.New(apperrors.CodeValidation, ""),
		},
		{
			name: "too many items",
			cfg:  config.EvaluationConfig{MaxItems: 5},
			ds:   func(t *testing.T) *dataset.Dataset { return hiring(t, "big") },
			want: apperrors.New(apperrors.CodeValidation, ""),
		},
		{
			name: "ranking mutated after parse",
			ds: func(t *testing.T) *dataset.Dataset {
				ds := hiring(t, "broken")
				ds.Ranking[0] = 2
				return ds
			},
			want: fairness.ErrInvalidRanking,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.cfg)
			_, err := f.svc.Evaluate(context.Background(), tt.ds(t))
			if !errors.Is(err, tt.want) {
				t.Errorf("Evaluate() error = %v, want %v", err, tt.want)
			}
			if list, _ := f.store.List(context.Background(), 0); len(list) != 0 {
				t.Errorf("failed evaluation stored %d reports", len(list))
			}
		})
	}
}

func TestService_EvaluateCancelled(t *testing.T) {
	f := newFixture(t, config.EvaluationConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.svc.Evaluate(ctx, hiring(t, "x")); !errors.Is(err, context.Canceled) {
		t.Errorf("Evaluate() error = %v, want context.Canceled", err)
	}
}

func TestService_WithoutCollaborators(t *testing.T) {
	svc := NewService(nil, nil, nil, logger.Discard(), config.EvaluationConfig{})

	rep, err := svc.Evaluate(context.Background(), hiring(t, "bare"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if _, err := svc.Report(context.Background(), rep.ID); !apperrors.IsNotFound(err) {
		t.Errorf("Report() error = %v, want NOT_FOUND", err)
	}
	if list, err := svc.Reports(context.Background(), 10); err != nil || len(list) != 0 {
		t.Errorf("Reports() = %v, %v", list, err)
	}
}

func TestService_EvaluateBatch(t *testing.T) {
	f := newFixture(t, config.EvaluationConfig{Workers: 3})

	datasets := make([]*dataset.Dataset, 8)
	for i := range datasets {
		datasets[i] = hiring(t, fmt.Sprintf("ds-%d", i))
	}

	reports, err := f.svc.EvaluateBatch(context.Background(), datasets)
	if err != nil {
		t.Fatalf("EvaluateBatch() error = %v", err)
	}
	if len(reports) != len(datasets) {
		t.Fatalf("got %d reports, want %d", len(reports), len(datasets))
	}
	for i, rep := range reports {
		if rep.Dataset != datasets[i].Name {
			t.Errorf("reports[%d].Dataset = %s, want %s", i, rep.Dataset, datasets[i].Name)
		}
	}
}

func TestService_EvaluateBatchFailure(t *testing.T) {
	f := newFixture(t, config.EvaluationConfig{Workers: 2})

	bad := hiring(t, "bad")
	bad.Ranking = []int{1, 1, 2, 3, 4, 5}
	datasets := []*dataset.Dataset{hiring(t, "a"), bad, hiring(t, "c")}

	_, err := f.svc.EvaluateBatch(context.Background(), datasets)

	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("EvaluateBatch() error = %v, want *BatchError", err)
	}
	if batchErr.Index != 1 {
		t.Errorf("Index = %d, want 1", batchErr.Index)
	}
	if !errors.Is(err, fairness.ErrInvalidRanking) {
		t.Errorf("error %v does not match ErrInvalidRanking", err)
	}
	if !IsInputError(err) {
		t.Error("IsInputError() = false for an invalid ranking")
	}
}

func TestService_EvaluateBatchLimits(t *testing.T) {
	f := newFixture(t, config.EvaluationConfig{Workers: 1, MaxBatch: 2})

	if _, err := f.svc.EvaluateBatch(context.Background(), nil); !apperrors.IsValidation(err) {
		t.Errorf("empty batch error = %v, want VALIDATION_ERROR", err)
	}

	three := []*dataset.Dataset{hiring(t, "a"), hiring(t, "b"), hiring(t, "c")}
	if _, err := f.svc.EvaluateBatch(context.Background(), three); !apperrors.IsValidation(err) {
		t.Errorf("oversized batch error = %v, want VALIDATION_ERROR", err)
	}
}

type countingStore struct {
	report.Store
	mu      sync.Mutex
	active  int
	maxSeen int
}

func (c *countingStore) Save(ctx context.Context, r *report.Report) error {
	c.mu.Lock()
	c.active++
	c.maxSeen = max(c.maxSeen, c.active)
	c.mu.Unlock()

	time.Sleep(10 * time.Millisecond)

	c.mu.Lock()
	c.active--
	c.mu.Unlock()
	return c.Store.Save(ctx, r)
}

func TestService_EvaluateBatchRespectsWorkers(t *testing.T) {
	store := &countingStore{Store: report.NewMemoryStore(0, 0)}
	svc := NewService(store, nil, nil, logger.Discard(), config.EvaluationConfig{Workers: 2})

	datasets := make([]*dataset.Dataset, 6)
	for i := range datasets {
		datasets[i] = hiring(t, fmt.Sprintf("ds-%d", i))
	}
	if _, err := svc.EvaluateBatch(context.Background(), datasets); err != nil {
		t.Fatal(err)
	}
	if store.maxSeen > 2 {
		t.Errorf("saw %d concurrent evaluations, limit is 2", store.maxSeen)
	}
}

func TestService_Restore(t *testing.T) {
	f := newFixture(t, config.EvaluationConfig{})
	ctx := context.Background()

	source := NewService(nil, nil, nil, logger.Discard(), config.EvaluationConfig{})
	rep, err := source.Evaluate(ctx, hiring(t, "journaled"))
	if err != nil {
		t.Fatal(err)
	}
	good, err := bus.NewEvent(bus.EventReportCreated, Source, rep)
	if err != nil {
		t.Fatal(err)
	}
	other, _ := bus.NewEvent("other.type", Source, map[string]string{"x": "y"})
	broken := bus.Event{ID: "broken", Type: bus.EventReportCreated, Payload: []byte(`"nope"`)}

	n, err := f.svc.Restore(ctx, []bus.LoggedEvent{
		{Event: good, Topic: bus.TopicReportCreated},
		{Event: other, Topic: bus.TopicReportCreated},
		{Event: broken, Topic: bus.TopicReportCreated},
	})
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Restore() = %d, want 1", n)
	}

	got, err := f.svc.Report(ctx, rep.ID)
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if got.Dataset != "journaled" {
		t.Errorf("restored Dataset = %s", got.Dataset)
	}
}
