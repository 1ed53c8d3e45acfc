// Package evaluation runs fairness evaluations end to end: it evaluates a
// dataset, builds the report, stores it and announces it on the bus.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ricesearch/fairrank/internal/bus"
	"github.com/ricesearch/fairrank/internal/config"
	"github.com/ricesearch/fairrank/internal/dataset"
	"github.com/ricesearch/fairrank/internal/metrics"
	apperrors "github.com/ricesearch/fairrank/internal/pkg/errors"
	"github.com/ricesearch/fairrank/internal/pkg/logger"
	"github.com/ricesearch/fairrank/internal/report"
)

// Source is the event source name used for published events.
const Source = "fairrank"

// Service orchestrates fairness evaluations.
type Service struct {
	store   report.Store
	bus     bus.Bus
	metrics *metrics.Metrics
	log     *logger.Logger
	cfg     config.EvaluationConfig
}

// NewService creates an evaluation service. store, b and m may be nil, in
// which case reports are not kept, not announced or not measured.
func NewService(store report.Store, b bus.Bus, m *metrics.Metrics, log *logger.Logger, cfg config.EvaluationConfig) *Service {
	if log == nil {
		log = logger.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Service{
		store:   store,
		bus:     b,
		metrics: m,
		log:     log,
		cfg:     cfg,
	}
}

// Evaluate evaluates one dataset and returns its report.
func (s *Service) Evaluate(ctx context.Context, ds *dataset.Dataset) (*report.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ds == nil {
		return nil, apperrors.ValidationError("dataset is required")
	}
	if s.cfg.MaxItems > 0 && ds.Items() > s.cfg.MaxItems {
		return nil, apperrors.ValidationError(
			fmt.Sprintf("dataset has %d items, limit is %d", ds.Items(), s.cfg.MaxItems)).
			WithDetail("items", strconv.Itoa(ds.Items())).
			WithDetail("max_items", strconv.Itoa(s.cfg.MaxItems))
	}

	log := s.log.WithContext(ctx).WithDataset(ds.Name)
	start := time.Now()

	rep, err := s.compute(ds)
	s.metrics.ObserveEvaluation(time.Since(start), ds.Items(), err)
	if err != nil {
		log.Debug("Evaluation failed", "error", err)
		return nil, err
	}

	log = log.WithReport(rep.ID)

	if s.store != nil {
		if err := s.store.Save(ctx, rep); err != nil {
			return nil, err
		}
	}

	s.publish(ctx, rep, log)
	s.recordRatios(rep)

	log.Info("Evaluation complete",
		"items", rep.Items,
		"features", len(rep.Features),
		"duration", time.Since(start),
	)

	return rep, nil
}

func (s *Service) compute(ds *dataset.Dataset) (*report.Report, error) {
	frame, err := ds.Frame()
	if err != nil {
		return nil, err
	}
	res, err := frame.Evaluate()
	if err != nil {
		return nil, err
	}
	return report.Build(ds.Name, ds.Fingerprint(), ds.Items(), res)
}

// publish announces a report. The report is already stored, so a bus failure
// is logged and not returned.
func (s *Service) publish(ctx context.Context, rep *report.Report, log *logger.Logger) {
	if s.bus == nil {
		return
	}

	event, err := bus.NewEvent(bus.EventReportCreated, Source, rep)
	if err == nil {
		err = s.bus.Publish(ctx, bus.TopicReportCreated, event)
	}
	if err != nil {
		log.Warn("Failed to publish report event", "error", err)
	}
}

func (s *Service) recordRatios(rep *report.Report) {
	for _, f := range rep.Features {
		for _, m := range f.Metrics {
			if m.Ratio != nil {
				s.metrics.SetGroupRatio(f.Name, m.Name, *m.Ratio)
			}
		}
	}
}

// EvaluateBatch evaluates datasets concurrently, at most Workers at a time.
// Reports are returned in input order. The first failure cancels the
// remaining evaluations and is returned with the dataset's position.
func (s *Service) EvaluateBatch(ctx context.Context, datasets []*dataset.Dataset) ([]*report.Report, error) {
	if len(datasets) == 0 {
		return nil, apperrors.ValidationError("batch has no datasets")
	}
	if s.cfg.MaxBatch > 0 && len(datasets) > s.cfg.MaxBatch {
		return nil, apperrors.ValidationError(
			fmt.Sprintf("batch has %d datasets, limit is %d", len(datasets), s.cfg.MaxBatch)).
			WithDetail("max_batch", strconv.Itoa(s.cfg.MaxBatch))
	}

	reports := make([]*report.Report, len(datasets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for i, ds := range datasets {
		g.Go(func() error {
			rep, err := s.Evaluate(gctx, ds)
			if err != nil {
				return &BatchError{Index: i, Err: err}
			}
			reports[i] = rep
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// BatchError reports which dataset of a batch failed.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("dataset %d: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Restore saves reports recovered from an event journal into the store,
// skipping events that do not decode. It returns how many were restored.
func (s *Service) Restore(ctx context.Context, events []bus.LoggedEvent) (int, error) {
	if s.store == nil {
		return 0, nil
	}

	restored := 0
	for _, le := range events {
		if le.Event.Type != bus.EventReportCreated {
			continue
		}
		var rep report.Report
		if err := le.Event.Decode(&rep); err != nil || rep.ID == "" {
			s.log.Warn("Skipping undecodable journal event", "event_id", le.Event.ID)
			continue
		}
		if err := s.store.Save(ctx, &rep); err != nil {
			return restored, err
		}
		restored++
	}
	return restored, nil
}

// Report returns a stored report.
func (s *Service) Report(ctx context.Context, id string) (*report.Report, error) {
	if s.store == nil {
		return nil, apperrors.NotFoundError("report").WithDetail("id", id)
	}
	return s.store.Get(ctx, id)
}

// Reports lists stored reports, newest first.
func (s *Service) Reports(ctx context.Context, limit int) ([]report.Summary, error) {
	if s.store == nil {
		return []report.Summary{}, nil
	}
	return s.store.List(ctx, limit)
}

// IsInputError reports whether err was caused by the submitted data rather
// than by the service.
func IsInputError(err error) bool {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	status := appErr.HTTPStatus()
	return status >= 400 && status < 500
}
