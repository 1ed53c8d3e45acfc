package dataset

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/ricesearch/fairrank/internal/fairness"
	apperrors "github.com/ricesearch/fairrank/internal/pkg/errors"
)

var hiringMetricNames = []string{
	"exposure (allocation harm)",
	"average utility",
	"proportional exposure (quality-of-service)",
}

func checkHiring(t *testing.T, d *Dataset) {
	t.Helper()

	if d.Name != "hiring" {
		t.Errorf("Name = %q, want hiring", d.Name)
	}
	if d.Items() != 6 {
		t.Errorf("Items() = %d, want 6", d.Items())
	}
	if len(d.SensitiveFeatures) != 1 || d.SensitiveFeatures[0].Name != "gender" {
		t.Fatalf("SensitiveFeatures = %+v", d.SensitiveFeatures)
	}
	if got := d.SensitiveFeatures[0].Labels[3]; got != "Woman" {
		t.Errorf("label[3] = %q, want Woman", got)
	}

	var names []string
	for _, m := range d.Metrics {
		names = append(names, m.Name)
	}
	if !slices.Equal(names, hiringMetricNames) {
		t.Errorf("metric names = %v, want %v", names, hiringMetricNames)
	}
	if d.Metrics[2].Kind != fairness.KindProportionalExposure {
		t.Errorf("third metric kind = %v, want proportional_exposure", d.Metrics[2].Kind)
	}
}

func TestLoad(t *testing.T) {
	for _, file := range []string{"hiring.yaml", "hiring.json"} {
		t.Run(file, func(t *testing.T) {
			d, err := Load(filepath.Join("testdata", file))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			checkHiring(t, d)
		})
	}
}

func TestLoad_NameFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "search-audit.yml")
	content := "relevance: [1, 0.5]\nranking: [2, 1]\nsensitive_features:\n  region: [eu, us]\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	d, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if d.Name != "search-audit" {
		t.Errorf("Name = %q, want search-audit", d.Name)
	}
	if len(d.NamedMetrics()) != 3 {
		t.Errorf("NamedMetrics() = %d metrics, want the 3 built-ins", len(d.NamedMetrics()))
	}
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	_, err := Load("dataset.csv")
	if apperrors.CodeOf(err) != apperrors.CodeInvalidRequest {
		t.Errorf("Load(.csv) code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeInvalidRequest)
	}
}

func TestParse_YAMLKeepsOrder(t *testing.T) {
	data := []byte(`
relevance: [0.3, 0.2, 0.1]
ranking: [1, 2, 3]
sensitive_features:
  zeta: [a, b, a]
  alpha: [x, x, y]
  mid: [1, 2, yes]
metrics:
  - utility
  - exposure
`)
	d, err := Parse(data, FormatYAML)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	var names []string
	for _, f := range d.SensitiveFeatures {
		names = append(names, f.Name)
	}
	if want := []string{"zeta", "alpha", "mid"}; !slices.Equal(names, want) {
		t.Errorf("feature order = %v, want %v", names, want)
	}
	if want := []string{"1", "2", "yes"}; !slices.Equal(d.SensitiveFeatures[2].Labels, want) {
		t.Errorf("scalar labels = %v, want %v", d.SensitiveFeatures[2].Labels, want)
	}
	if d.Metrics[0].Name != "utility" || d.Metrics[1].Kind != fairness.KindExposure {
		t.Errorf("Metrics = %+v", d.Metrics)
	}
}

func TestParse_JSONKeepsOrder(t *testing.T) {
	data := []byte(`{
		"relevance": [0.3, 0.2, 0.1],
		"ranking": [3, 1, 2],
		"sensitive_features": {"zeta": ["a", "b", "a"], "alpha": [1, 2, true]},
		"metrics": {"pe": "proportional-exposure", "exp": "Exposure"}
	}`)
	d, err := Parse(data, FormatJSON)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if d.SensitiveFeatures[0].Name != "zeta" || d.SensitiveFeatures[1].Name != "alpha" {
		t.Errorf("feature order = %+v", d.SensitiveFeatures)
	}
	if want := []string{"1", "2", "true"}; !slices.Equal(d.SensitiveFeatures[1].Labels, want) {
		t.Errorf("labels = %v, want %v", d.SensitiveFeatures[1].Labels, want)
	}
	if d.Metrics[0].Name != "pe" || d.Metrics[0].Kind != fairness.KindProportionalExposure {
		t.Errorf("Metrics[0] = %+v", d.Metrics[0])
	}
	if d.Metrics[1].Kind != fairness.KindExposure {
		t.Errorf("Metrics[1] = %+v", d.Metrics[1])
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name     string
		format   Format
		data     string
		wantCode string
	}{
		{
			name:     "malformed json",
			format:   FormatJSON,
			data:     `{"relevance": [1,`,
			wantCode: apperrors.CodeInvalidRequest,
		},
		{
			name:     "malformed yaml",
			format:   FormatYAML,
			data:     "relevance: [1, 2\n",
			wantCode: apperrors.CodeInvalidRequest,
		},
		{
			name:     "features not a mapping",
			format:   FormatYAML,
			data:     "relevance: [1]\nranking: [1]\nsensitive_features: [a]\n",
			wantCode: apperrors.CodeInvalidRequest,
		},
		{
			name:     "null label",
			format:   FormatJSON,
			data:     `{"relevance": [1], "ranking": [1], "sensitive_features": {"g": [null]}}`,
			wantCode: apperrors.CodeInvalidRequest,
		},
		{
			name:     "repeated feature",
			format:   FormatJSON,
			data:     `{"relevance": [1], "ranking": [1], "sensitive_features": {"g": ["a"], "g": ["b"]}}`,
			wantCode: apperrors.CodeInvalidRequest,
		},
		{
			name:     "unknown metric kind",
			format:   FormatYAML,
			data:     "relevance: [1]\nranking: [1]\nsensitive_features:\n  g: [a]\nmetrics:\n  ndcg: ndcg\n",
			wantCode: apperrors.CodeValidation,
		},
		{
			name:     "duplicate rank",
			format:   FormatYAML,
			data:     "relevance: [1, 2]\nranking: [1, 1]\nsensitive_features:\n  g: [a, b]\n",
			wantCode: apperrors.CodeInvalidRanking,
		},
		{
			name:     "label count mismatch",
			format:   FormatYAML,
			data:     "relevance: [1, 2]\nranking: [1, 2]\nsensitive_features:\n  g: [a]\n",
			wantCode: apperrors.CodeLengthMismatch,
		},
		{
			name:     "control character in feature name",
			format:   FormatJSON,
			data:     `{"relevance": [1], "ranking": [1], "sensitive_features": {"g\u0007": ["a"]}}`,
			wantCode: apperrors.CodeValidation,
		},
		{
			name:     "label with newline",
			format:   FormatJSON,
			data:     `{"relevance": [1], "ranking": [1], "sensitive_features": {"g": ["a\nb"]}}`,
			wantCode: apperrors.CodeValidation,
		},
		{
			name:     "no sensitive features",
			format:   FormatJSON,
			data:     `{"relevance": [1], "ranking": [1]}`,
			wantCode: apperrors.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.format)
			if err == nil {
				t.Fatal("Parse() error = nil")
			}
			if got := apperrors.CodeOf(err); got != tt.wantCode {
				t.Errorf("code = %s, want %s (err: %v)", got, tt.wantCode, err)
			}
		})
	}
}

func TestParse_InvalidRankingIsSentinel(t *testing.T) {
	_, err := Parse([]byte("relevance: [1, 2]\nranking: [0, 1]\nsensitive_features:\n  g: [a, b]\n"), FormatYAML)
	if !errors.Is(err, fairness.ErrInvalidRanking) {
		t.Errorf("errors.Is(err, ErrInvalidRanking) = false, err = %v", err)
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	original, err := Load(filepath.Join("testdata", "hiring.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	original.SensitiveFeatures = append(original.SensitiveFeatures, Feature{
		Name:   "age band",
		Labels: []string{"1", "yes", "2", "null", "1", "no"},
	})

	for _, format := range []Format{FormatYAML, FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := original.Encode(&buf, format); err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			decoded, err := Parse(buf.Bytes(), format)
			if err != nil {
				t.Fatalf("Parse() error = %v\n%s", err, buf.String())
			}
			if decoded.Fingerprint() != original.Fingerprint() {
				t.Errorf("fingerprint changed after %s round trip:\n%s", format, buf.String())
			}
			if got := decoded.SensitiveFeatures[1].Labels; !slices.Equal(got, original.SensitiveFeatures[1].Labels) {
				t.Errorf("labels = %v, want %v", got, original.SensitiveFeatures[1].Labels)
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	a, err := Load(filepath.Join("testdata", "hiring.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Load(filepath.Join("testdata", "hiring.json"))
	if err != nil {
		t.Fatal(err)
	}

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("same content in two formats has different fingerprints")
	}

	b.Name = "renamed"
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("name changed the fingerprint")
	}

	b.Relevance[0] = 0.83
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("relevance change kept the fingerprint")
	}

	c := *a
	c.SensitiveFeatures = []Feature{{Name: "gender", Labels: []string{"Man", "Man", "Woman", "Man", "Woman", "Woman"}}}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("label change kept the fingerprint")
	}
}

func TestFrame(t *testing.T) {
	d, err := Load(filepath.Join("testdata", "hiring.json"))
	if err != nil {
		t.Fatal(err)
	}

	frame, err := d.Frame()
	if err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	res, err := frame.Evaluate()
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if !slices.Equal(res.Metrics(), hiringMetricNames) {
		t.Errorf("result metrics = %v", res.Metrics())
	}
	ratios, err := res.Ratio("gender")
	if err != nil {
		t.Fatal(err)
	}
	if r := ratios["exposure (allocation harm)"]; r <= 0 || r >= 1 {
		t.Errorf("exposure ratio = %v, want in (0, 1)", r)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"yaml", FormatYAML, false},
		{".yml", FormatYAML, false},
		{"JSON", FormatJSON, false},
		{".csv", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRead(t *testing.T) {
	d, err := Read(strings.NewReader(`{"relevance":[1],"ranking":[1],"sensitive_features":{"g":["a"]}}`), FormatJSON)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if d.Items() != 1 {
		t.Errorf("Items() = %d, want 1", d.Items())
	}
}
