// Package dataset reads and writes ranking datasets: relevance scores, a
// ranking, the sensitive features of every item and the metrics to audit.
//
// Sensitive features and metrics are ordered mappings. Their order in the
// source document is the order of the evaluation result, so both YAML and
// JSON decoding keep it.
package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ricesearch/fairrank/internal/fairness"
	apperrors "github.com/ricesearch/fairrank/internal/pkg/errors"
	"github.com/ricesearch/fairrank/internal/pkg/hash"
	"github.com/ricesearch/fairrank/internal/pkg/security"
)

// Format is a dataset serialization format.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseFormat resolves a format name.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", apperrors.InvalidRequestError(fmt.Sprintf("unsupported dataset format %q (must be yaml or json)", name))
	}
}

// Feature is one sensitive feature: a group label per item, kept as text.
type Feature struct {
	Name   string
	Labels []string
}

// MetricSpec reports a built-in metric under a display name.
type MetricSpec struct {
	Name string
	Kind fairness.Kind
}

// Dataset is one ranking to audit. Every slice is indexed by item.
type Dataset struct {
	Name              string
	Relevance         []float64
	Ranking           []int
	SensitiveFeatures []Feature
	// Metrics lists the metrics to compute. Empty means every built-in
	// metric under its canonical name.
	Metrics []MetricSpec
}

// Load reads a dataset file, choosing the format by extension. A dataset
// without a name is named after the file.
func Load(path string) (*Dataset, error) {
	ext := filepath.Ext(path)
	format, err := ParseFormat(ext)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidRequest, "reading dataset", err).
			WithDetail("path", path)
	}

	d, err := Parse(data, format)
	if err != nil {
		return nil, err
	}
	if d.Name == "" {
		d.Name = strings.TrimSuffix(filepath.Base(path), ext)
	}
	return d, nil
}

// Read decodes and validates a dataset from r.
func Read(r io.Reader, format Format) (*Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidRequest, "reading dataset", err)
	}
	return Parse(data, format)
}

// Parse decodes and validates a dataset.
func Parse(data []byte, format Format) (*Dataset, error) {
	d := &Dataset{}

	var err error
	switch format {
	case FormatYAML:
		err = unmarshalYAML(data, d)
	case FormatJSON:
		err = d.UnmarshalJSON(data)
	default:
		return nil, apperrors.InvalidRequestError(fmt.Sprintf("unsupported dataset format %q", format))
	}
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperrors.Wrap(apperrors.CodeInvalidRequest, fmt.Sprintf("decoding %s dataset", format), err)
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Encode writes the dataset to w.
func (d *Dataset) Encode(w io.Writer, format Format) error {
	switch format {
	case FormatYAML:
		return encodeYAML(w, d)
	case FormatJSON:
		data, err := d.MarshalJSON()
		if err != nil {
			return err
		}
		_, err = w.Write(append(data, '\n'))
		return err
	default:
		return apperrors.InvalidRequestError(fmt.Sprintf("unsupported dataset format %q", format))
	}
}

// Validate reports whether the dataset can be evaluated and whether its
// names and labels are acceptable text.
func (d *Dataset) Validate() error {
	if _, err := d.Frame(); err != nil {
		return err
	}
	return d.validateText()
}

func (d *Dataset) validateText() error {
	check := func(err error, detail, value string) error {
		if err == nil {
			return nil
		}
		return apperrors.ValidationError(err.Error()).
			WithDetail(detail, security.SanitizeForLogWithLength(value, 64))
	}

	if d.Name != "" {
		if err := check(security.ValidateName("dataset name", d.Name), "dataset", d.Name); err != nil {
			return err
		}
	}
	for _, f := range d.SensitiveFeatures {
		if err := check(security.ValidateName("feature name", f.Name), "feature", f.Name); err != nil {
			return err
		}
		for _, label := range f.Labels {
			if err := check(security.ValidateLabel("label", label), "feature", f.Name); err != nil {
				return err
			}
		}
	}
	for _, m := range d.Metrics {
		if err := check(security.ValidateName("metric name", m.Name), "metric", m.Name); err != nil {
			return err
		}
	}
	return nil
}

// Items returns the number of ranked items.
func (d *Dataset) Items() int { return len(d.Ranking) }

// NamedMetrics returns the metrics to evaluate.
func (d *Dataset) NamedMetrics() []fairness.NamedMetric[string] {
	specs := d.metricSpecs()
	metrics := make([]fairness.NamedMetric[string], len(specs))
	for i, m := range specs {
		metrics[i] = fairness.NamedMetric[string]{Name: m.Name, Metric: fairness.Builtin[string](m.Kind)}
	}
	return metrics
}

// Frame builds an unevaluated metric frame over the dataset.
func (d *Dataset) Frame() (*fairness.Frame[string], error) {
	features := make([]fairness.Feature[string], len(d.SensitiveFeatures))
	for i, f := range d.SensitiveFeatures {
		features[i] = fairness.Feature[string]{Name: f.Name, Labels: f.Labels}
	}

	return fairness.NewFrame(fairness.Input[string]{
		Relevance: d.Relevance,
		Ranking:   d.Ranking,
		Features:  features,
	}, d.NamedMetrics())
}

// Fingerprint identifies the dataset content. The name does not take part, so
// the same ranking submitted under two names shares a fingerprint.
func (d *Dataset) Fingerprint() string {
	fields := make([]string, 0, 8+len(d.Relevance)+len(d.Ranking))

	fields = append(fields, "relevance", strconv.Itoa(len(d.Relevance)))
	for _, r := range d.Relevance {
		fields = append(fields, strconv.FormatFloat(r, 'g', -1, 64))
	}
	fields = append(fields, "ranking", strconv.Itoa(len(d.Ranking)))
	for _, p := range d.Ranking {
		fields = append(fields, strconv.Itoa(p))
	}
	for _, f := range d.SensitiveFeatures {
		fields = append(fields, "feature", f.Name, strconv.Itoa(len(f.Labels)))
		fields = append(fields, f.Labels...)
	}
	for _, m := range d.metricSpecs() {
		fields = append(fields, "metric", m.Name, m.Kind.String())
	}

	return hash.Fields(fields...)
}

func (d *Dataset) metricSpecs() []MetricSpec {
	if len(d.Metrics) > 0 {
		return d.Metrics
	}
	kinds := fairness.Kinds()
	specs := make([]MetricSpec, len(kinds))
	for i, k := range kinds {
		specs[i] = MetricSpec{Name: k.String(), Kind: k}
	}
	return specs
}

func parseMetricKind(metric, kind string) (MetricSpec, error) {
	k, err := fairness.ParseKind(kind)
	if err != nil {
		return MetricSpec{}, apperrors.ValidationError(fmt.Sprintf("metric %q: unknown kind %q", metric, kind)).
			WithDetail("metric", metric)
	}
	return MetricSpec{Name: metric, Kind: k}, nil
}
