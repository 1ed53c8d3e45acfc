package qdrant

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/ricesearch/fairrank/internal/dataset"
	apperrors "github.com/ricesearch/fairrank/internal/pkg/errors"
)

// UnknownLabel is the group label of points that lack a feature field.
const UnknownLabel = "unknown"

// DefaultRankLimit is the ranking depth when RankRequest.Limit is zero.
const DefaultRankLimit = 100

// RankRequest describes a ranking to read out of a collection.
type RankRequest struct {
	// Name names the resulting dataset. Default: the collection name.
	Name string

	// Collection is the collection name (without prefix).
	Collection string

	// Vector is the dense query vector.
	Vector []float32

	// Using selects a named vector. Empty uses the default vector.
	Using string

	// Limit is the ranking depth.
	Limit uint64

	// Match restricts the ranking to points whose payload keyword fields
	// equal the given values.
	Match map[string]string

	// RelevanceField is a numeric payload field holding the item's true
	// relevance. Points without it, or an empty field name, use the
	// similarity score.
	RelevanceField string

	// Features are payload fields used as sensitive features. Nested fields
	// are addressed with dots.
	Features []string
}

func (r RankRequest) validate() error {
	switch {
	case r.Collection == "":
		return apperrors.ValidationError("collection is required")
	case len(r.Vector) == 0:
		return apperrors.ValidationError("query vector is required")
	case len(r.Features) == 0:
		return apperrors.ValidationError("at least one sensitive feature field is required")
	}
	return nil
}

// Rank runs a dense query and returns the result list as a dataset: items
// are ranked in result order and grouped by the requested payload fields.
func (c *Client) Rank(ctx context.Context, req RankRequest) (*dataset.Dataset, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, fmt.Errorf("client is closed")
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	limit := req.Limit
	if limit == 0 {
		limit = DefaultRankLimit
	}

	query := &qdrant.QueryPoints{
		CollectionName: c.collectionName(req.Collection),
		Query:          qdrant.NewQueryDense(req.Vector),
		Limit:          qdrant.PtrOf(limit),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         buildMatchFilter(req.Match),
	}
	if req.Using != "" {
		query.Using = qdrant.PtrOf(req.Using)
	}

	points, err := c.points.Query(ctx, query)
	if err != nil {
		return nil, apperrors.QdrantError("ranking query failed", err).
			WithDetail("collection", req.Collection)
	}

	name := req.Name
	if name == "" {
		name = req.Collection
	}
	return ToDataset(name, points, req.RelevanceField, req.Features)
}

// ToDataset converts scored points, best first, into a dataset.
func ToDataset(name string, points []*qdrant.ScoredPoint, relevanceField string, features []string) (*dataset.Dataset, error) {
	if len(points) == 0 {
		return nil, apperrors.InvalidRequestError("query returned no points")
	}

	ds := &dataset.Dataset{
		Name:              name,
		Relevance:         make([]float64, len(points)),
		Ranking:           make([]int, len(points)),
		SensitiveFeatures: make([]dataset.Feature, len(features)),
	}
	for j, field := range features {
		ds.SensitiveFeatures[j] = dataset.Feature{Name: field, Labels: make([]string, len(points))}
	}

	for i, p := range points {
		ds.Ranking[i] = i + 1
		ds.Relevance[i] = float64(p.GetScore())
		if relevanceField != "" {
			if v, ok := number(lookup(p.GetPayload(), relevanceField)); ok {
				ds.Relevance[i] = v
			}
		}
		for j, field := range features {
			ds.SensitiveFeatures[j].Labels[i] = label(lookup(p.GetPayload(), field))
		}
	}

	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

// buildMatchFilter builds a must-match keyword filter. Keys are sorted so the
// filter is deterministic.
func buildMatchFilter(match map[string]string) *qdrant.Filter {
	if len(match) == 0 {
		return nil
	}

	keys := make([]string, 0, len(match))
	for k := range match {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	conditions := make([]*qdrant.Condition, 0, len(keys))
	for _, k := range keys {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: k,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{
							Keyword: match[k],
						},
					},
				},
			},
		})
	}

	return &qdrant.Filter{
		Must: conditions,
	}
}

// lookup resolves a dotted field path in a payload.
func lookup(payload map[string]*qdrant.Value, path string) *qdrant.Value {
	head, rest, nested := strings.Cut(path, ".")
	v, ok := payload[head]
	if !ok {
		return nil
	}
	if !nested {
		return v
	}
	sv, ok := v.GetKind().(*qdrant.Value_StructValue)
	if !ok {
		return nil
	}
	return lookup(sv.StructValue.GetFields(), rest)
}

// label renders a scalar payload value as a group label.
func label(v *qdrant.Value) string {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return strconv.FormatInt(k.IntegerValue, 10)
	case *qdrant.Value_DoubleValue:
		return strconv.FormatFloat(k.DoubleValue, 'g', -1, 64)
	case *qdrant.Value_BoolValue:
		return strconv.FormatBool(k.BoolValue)
	default:
		return UnknownLabel
	}
}

func number(v *qdrant.Value) (float64, bool) {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_IntegerValue:
		return float64(k.IntegerValue), true
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue, true
	default:
		return 0, false
	}
}
