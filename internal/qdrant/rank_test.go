package qdrant

import (
	"context"
	"errors"
	"testing"

	"github.com/qdrant/go-client/qdrant"

	apperrors "github.com/ricesearch/fairrank/internal/pkg/errors"
)

type fakeQuerier struct {
	points []*qdrant.ScoredPoint
	err    error
	got    *qdrant.QueryPoints
}

func (f *fakeQuerier) Query(_ context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.got = req
	return f.points, f.err
}

func str(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func num(v float64) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: v}}
}

func integer(v int64) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: v}}
}

func object(fields map[string]*qdrant.Value) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{Fields: fields}}}
}

func point(id uint64, score float32, payload map[string]*qdrant.Value) *qdrant.ScoredPoint {
	return &qdrant.ScoredPoint{
		Id:      &qdrant.PointId{PointIdOptions: &qdrant.PointId_Num{Num: id}},
		Score:   score,
		Payload: payload,
	}
}

func candidates() []*qdrant.ScoredPoint {
	return []*qdrant.ScoredPoint{
		point(1, 0.9, map[string]*qdrant.Value{"gender": str("Man"), "rating": num(0.82), "meta": object(map[string]*qdrant.Value{"age": integer(30)})}),
		point(2, 0.8, map[string]*qdrant.Value{"gender": str("Woman"), "rating": integer(1)}),
		point(3, 0.5, map[string]*qdrant.Value{"meta": object(map[string]*qdrant.Value{"age": integer(41)})}),
	}
}

func TestToDataset(t *testing.T) {
	ds, err := ToDataset("jobs", candidates(), "rating", []string{"gender", "meta.age"})
	if err != nil {
		t.Fatalf("ToDataset() error = %v", err)
	}

	if ds.Name != "jobs" {
		t.Errorf("Name = %s", ds.Name)
	}
	wantRanking := []int{1, 2, 3}
	for i, want := range wantRanking {
		if ds.Ranking[i] != want {
			t.Errorf("Ranking = %v, want %v", ds.Ranking, wantRanking)
			break
		}
	}

	// The third point has no rating and falls back to its score.
	wantRelevance := []float64{0.82, 1, float64(float32(0.5))}
	for i, want := range wantRelevance {
		if ds.Relevance[i] != want {
			t.Errorf("Relevance[%d] = %v, want %v", i, ds.Relevance[i], want)
		}
	}

	tests := []struct {
		feature string
		want    []string
	}{
		{"gender", []string{"Man", "Woman", UnknownLabel}},
		{"meta.age", []string{"30", UnknownLabel, "41"}},
	}
	for i, tt := range tests {
		t.Run(tt.feature, func(t *testing.T) {
			f := ds.SensitiveFeatures[i]
			if f.Name != tt.feature {
				t.Fatalf("feature %d = %s, want %s", i, f.Name, tt.feature)
			}
			for j, want := range tt.want {
				if f.Labels[j] != want {
					t.Errorf("Labels = %v, want %v", f.Labels, tt.want)
					break
				}
			}
		})
	}
}

func TestToDataset_Errors(t *testing.T) {
	if _, err := ToDataset("x", nil, "", []string{"gender"}); apperrors.CodeOf(err) != apperrors.CodeInvalidRequest {
		t.Errorf("empty result error = %v, want INVALID_REQUEST", err)
	}

	if _, err := ToDataset("x", candidates(), "", nil); !apperrors.IsValidation(err) {
		t.Errorf("no features error = %v, want VALIDATION_ERROR", err)
	}
}

func TestLabel(t *testing.T) {
	tests := []struct {
		name string
		v    *qdrant.Value
		want string
	}{
		{"nil", nil, UnknownLabel},
		{"string", str("a"), "a"},
		{"integer", integer(-3), "-3"},
		{"double", num(2.5), "2.5"},
		{"bool", &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: true}}, "true"},
		{"null", &qdrant.Value{Kind: &qdrant.Value_NullValue{}}, UnknownLabel},
		{"struct", object(nil), UnknownLabel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := label(tt.v); got != tt.want {
				t.Errorf("label() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRank(t *testing.T) {
	fake := &fakeQuerier{points: candidates()}
	c := &Client{points: fake, config: ClientConfig{CollectionPrefix: "fr_", Timeout: DefaultTimeout}}

	ds, err := c.Rank(context.Background(), RankRequest{
		Collection:     "jobs",
		Vector:         []float32{0.1, 0.2},
		Using:          "dense",
		Limit:          3,
		Match:          map[string]string{"region": "eu", "lang": "en"},
		RelevanceField: "rating",
		Features:       []string{"gender"},
	})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if ds.Name != "jobs" || ds.Items() != 3 {
		t.Errorf("dataset = %s with %d items", ds.Name, ds.Items())
	}

	req := fake.got
	if req.GetCollectionName() != "fr_jobs" {
		t.Errorf("collection = %s, want fr_jobs", req.GetCollectionName())
	}
	if req.GetLimit() != 3 || req.GetUsing() != "dense" {
		t.Errorf("limit = %d, using = %q", req.GetLimit(), req.GetUsing())
	}
	must := req.GetFilter().GetMust()
	if len(must) != 2 || must[0].GetField().GetKey() != "lang" || must[1].GetField().GetKey() != "region" {
		t.Errorf("filter = %v, want sorted lang, region", must)
	}

	// The ranking evaluates end to end.
	frame, err := ds.Frame()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := frame.Evaluate(); err != nil {
		t.Errorf("Evaluate() error = %v", err)
	}
}

func TestRank_Errors(t *testing.T) {
	valid := RankRequest{Collection: "jobs", Vector: []float32{1}, Features: []string{"gender"}}

	tests := []struct {
		name    string
		req     func() RankRequest
		querier *fakeQuerier
		check   func(error) bool
	}{
		{
			name:  "missing collection",
			req:   func() RankRequest { r := valid; r.Collection = ""; return r },
			check: apperrors.IsValidation,
		},
		{
			name:  "missing vector",
			req:   func() RankRequest { r := valid; r.Vector = nil; return r },
			check: apperrors.IsValidation,
		},
		{
			name:  "missing features",
			req:   func() RankRequest { r := valid; r.Features = nil; return r },
			check: apperrors.IsValidation,
		},
		{
			name:    "query failure",
			req:     func() RankRequest { return valid },
			querier: &fakeQuerier{err: errors.New("unavailable")},
			check:   func(err error) bool { return apperrors.CodeOf(err) == apperrors.CodeQdrantError },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.querier
			if q == nil {
				q = &fakeQuerier{points: candidates()}
			}
			c := &Client{points: q, config: DefaultClientConfig()}

			_, err := c.Rank(context.Background(), tt.req())
			if !tt.check(err) {
				t.Errorf("Rank() error = %v", err)
			}
		})
	}
}

func TestRank_Closed(t *testing.T) {
	c := &Client{points: &fakeQuerier{}, config: DefaultClientConfig()}
	c.Close()

	if _, err := c.Rank(context.Background(), RankRequest{Collection: "a", Vector: []float32{1}, Features: []string{"g"}}); err == nil {
		t.Error("Rank() on closed client should fail")
	}
}
